// Package keys manages the tenant credential vault: provider keys are
// encrypted at rest and addressed through opaque proxy keys.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/crypto"
	"github.com/llmlab/llmlab/internal/models"
)

const proxyKeyPrefix = "llmlab_pk_"

var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrKeyNotFound     = errors.New("api key not found")
)

type Service struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewService(db *gorm.DB, encryptor *crypto.Encryptor) *Service {
	return &Service{db: db, encryptor: encryptor}
}

// GenerateProxyKey mints an opaque key with 128 bits of entropy.
func GenerateProxyKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate proxy key: %w", err)
	}
	return proxyKeyPrefix + hex.EncodeToString(raw), nil
}

// Store encrypts and saves a provider credential, returning the minted
// proxy key. Any previous active key for the same (user, provider) is
// deactivated so exactly one key resolves per provider.
func (s *Service) Store(userID uuid.UUID, provider, plaintextKey string) (*models.APIKey, error) {
	if !models.ValidProvider(provider) {
		return nil, ErrInvalidProvider
	}
	if plaintextKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	encrypted, err := s.encryptor.Encrypt(plaintextKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt api key: %w", err)
	}
	proxyKey, err := GenerateProxyKey()
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		UserID:       userID,
		Provider:     provider,
		EncryptedKey: encrypted,
		ProxyKey:     proxyKey,
		IsActive:     true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.APIKey{}).
			Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate previous key: %w", err)
		}
		if err := tx.Create(key).Error; err != nil {
			return fmt.Errorf("failed to store api key: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return key, nil
}

// Resolve looks up an active key by its proxy key and returns the
// decrypted provider credential.
func (s *Service) Resolve(proxyKey string) (*models.APIKey, string, error) {
	var key models.APIKey
	err := s.db.Where("proxy_key = ? AND is_active = ?", proxyKey, true).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrKeyNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up api key: %w", err)
	}

	secret, err := s.encryptor.Decrypt(key.EncryptedKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decrypt api key: %w", err)
	}
	return &key, secret, nil
}

// List returns the user's keys, newest first. Encrypted material never
// leaves this package; callers render the proxy key and a masked form.
func (s *Service) List(userID uuid.UUID) ([]models.APIKey, error) {
	var out []models.APIKey
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return out, nil
}

func (s *Service) Deactivate(userID, keyID uuid.UUID) error {
	res := s.db.Model(&models.APIKey{}).
		Where("id = ? AND user_id = ?", keyID, userID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate api key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *Service) Delete(userID, keyID uuid.UUID) error {
	res := s.db.Where("id = ? AND user_id = ?", keyID, userID).Delete(&models.APIKey{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete api key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// TouchLastUsed records key activity; failures are not fatal to a request.
func (s *Service) TouchLastUsed(keyID uuid.UUID) error {
	now := time.Now().UTC()
	return s.db.Model(&models.APIKey{}).
		Where("id = ?", keyID).
		Update("last_used_at", &now).Error
}
