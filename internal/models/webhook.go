package models

import (
	"github.com/google/uuid"
)

type Webhook struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	URL       string    `gorm:"size:500;not null" json:"url"`
	EventType string    `gorm:"size:50;not null" json:"event_type"`
	IsActive  bool      `gorm:"default:true;not null" json:"is_active"`
}

func ValidWebhookEvent(eventType string) bool {
	switch eventType {
	case AlertBudgetWarning, AlertBudgetExceeded, AlertAnomaly:
		return true
	}
	return false
}
