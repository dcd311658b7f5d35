package models

import (
	"github.com/google/uuid"
)

// DefaultTagColor is applied to tags auto-created from request headers.
const DefaultTagColor = "#6366f1"

type Tag struct {
	BaseModel
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tags_user_name,priority:1" json:"user_id"`
	Name   string    `gorm:"size:100;not null;uniqueIndex:idx_tags_user_name,priority:2" json:"name"`
	Color  string    `gorm:"size:20;not null" json:"color"`

	UsageLogs []UsageLog `gorm:"many2many:usage_log_tags" json:"-"`
}
