package models

import (
	"time"

	"github.com/google/uuid"
)

// Supported upstream providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

func ValidProvider(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return true
	}
	return false
}

// APIKey stores a user's encrypted provider credential. The user never
// sends the real key to us again; they use the opaque proxy key instead.
type APIKey struct {
	BaseModel
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider     string     `gorm:"size:50;not null;index" json:"provider"`
	EncryptedKey string     `gorm:"type:text;not null" json:"-"`
	ProxyKey     string     `gorm:"size:50;uniqueIndex;not null" json:"proxy_key"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	IsActive     bool       `gorm:"default:true;not null" json:"is_active"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
