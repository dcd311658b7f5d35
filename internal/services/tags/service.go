// Package tags manages the per-user tag registry and the auto-attach path
// used by the proxy to label usage rows from the X-LLMLab-Tags header.
package tags

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/logger"
	"github.com/llmlab/llmlab/internal/models"
	"go.uber.org/zap"
)

// TagsHeader carries comma-separated tag names on proxy requests.
const TagsHeader = "X-LLMLab-Tags"

var ErrTagNotFound = errors.New("tag not found")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(userID uuid.UUID) ([]models.Tag, error) {
	var out []models.Tag
	if err := s.db.Where("user_id = ?", userID).
		Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return out, nil
}

// Create adds a tag, or returns the existing one when the name is already
// registered for the user.
func (s *Service) Create(userID uuid.UUID, name, color string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name is required")
	}
	if color == "" {
		color = models.DefaultTagColor
	}

	tag := &models.Tag{UserID: userID, Name: name, Color: color}
	if err := s.db.Create(tag).Error; err != nil {
		// Unique violation on (user_id, name): hand back the existing row.
		var existing models.Tag
		if lookupErr := s.db.Where("user_id = ? AND name = ?", userID, name).
			First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return tag, nil
}

func (s *Service) Update(userID, tagID uuid.UUID, name, color string) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.Where("id = ? AND user_id = ?", tagID, userID).First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tag: %w", err)
	}

	if name = strings.TrimSpace(name); name != "" {
		tag.Name = name
	}
	if color != "" {
		tag.Color = color
	}
	if err := s.db.Save(&tag).Error; err != nil {
		return nil, fmt.Errorf("failed to update tag: %w", err)
	}
	return &tag, nil
}

func (s *Service) Delete(userID, tagID uuid.UUID) error {
	res := s.db.Where("id = ? AND user_id = ?", tagID, userID).Delete(&models.Tag{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTagNotFound
	}
	return nil
}

// ParseHeader splits the tags header into trimmed, de-duplicated names.
func ParseHeader(header string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, part := range strings.Split(header, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// AutoAttach resolves each name to a tag (creating missing ones with the
// default color) and links them to the usage log. Failures are logged and
// skipped; tagging never fails a metered request.
func (s *Service) AutoAttach(userID uuid.UUID, log *models.UsageLog, names []string) {
	for _, name := range names {
		tag, err := s.Create(userID, name, "")
		if err != nil {
			logger.Warn("failed to resolve tag",
				zap.String("tag", name),
				zap.Error(err))
			continue
		}
		if err := s.Attach(userID, log, tag.ID); err != nil && !errors.Is(err, ErrTagNotFound) {
			logger.Warn("failed to attach tag",
				zap.String("tag", name),
				zap.Error(err))
		}
	}
}

// Attach links an existing tag to a usage log. Re-attaching is a no-op.
func (s *Service) Attach(userID uuid.UUID, log *models.UsageLog, tagID uuid.UUID) error {
	var tag models.Tag
	err := s.db.Where("id = ? AND user_id = ?", tagID, userID).First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTagNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load tag: %w", err)
	}

	var count int64
	if err := s.db.Table("usage_log_tags").
		Where("usage_log_id = ? AND tag_id = ?", log.ID, tag.ID).
		Count(&count).Error; err == nil && count > 0 {
		return nil
	}

	if err := s.db.Model(log).Association("Tags").Append(&tag); err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// Detach unlinks a tag from a usage log.
func (s *Service) Detach(userID uuid.UUID, log *models.UsageLog, tagID uuid.UUID) error {
	var tag models.Tag
	err := s.db.Where("id = ? AND user_id = ?", tagID, userID).First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTagNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load tag: %w", err)
	}

	if err := s.db.Model(log).Association("Tags").Delete(&tag); err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}
