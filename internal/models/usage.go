package models

import (
	"github.com/google/uuid"
)

// UsageLog is one metered proxy request. Rows are append-only; cache hits
// are recorded with zero cost and zero latency.
type UsageLog struct {
	BaseModel
	UserID       uuid.UUID `gorm:"type:uuid;not null;index:idx_usage_user_created,priority:1;index:idx_usage_user_provider_created,priority:1" json:"user_id"`
	Provider     string    `gorm:"size:50;not null;index:idx_usage_user_provider_created,priority:2" json:"provider"`
	Model        string    `gorm:"size:100;not null;index" json:"model"`
	InputTokens  int       `gorm:"default:0;not null" json:"input_tokens"`
	OutputTokens int       `gorm:"default:0;not null" json:"output_tokens"`
	CostUSD      float64   `gorm:"default:0;not null" json:"cost_usd"`
	LatencyMS    int64     `gorm:"default:0;not null" json:"latency_ms"`
	CacheHit     bool      `gorm:"default:false;not null" json:"cache_hit"`
	RequestID    string    `gorm:"size:100" json:"request_id,omitempty"`

	Tags []Tag `gorm:"many2many:usage_log_tags;constraint:OnDelete:CASCADE" json:"tags,omitempty"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}
