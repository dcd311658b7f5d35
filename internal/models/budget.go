package models

import (
	"time"

	"github.com/google/uuid"
)

const BudgetPeriodMonthly = "monthly"

// Budget alert statuses, also used as webhook event types.
const (
	AlertBudgetWarning  = "budget_warning"
	AlertBudgetExceeded = "budget_exceeded"
	AlertAnomaly        = "anomaly"
)

type Budget struct {
	BaseModel
	UserID            uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	AmountUSD         float64   `gorm:"not null" json:"amount_usd"`
	Period            string    `gorm:"size:20;not null;default:monthly" json:"period"`
	AlertThresholdPct float64   `gorm:"not null;default:80" json:"alert_threshold_pct"`
	UpdatedAt         time.Time `json:"updated_at"`
}
