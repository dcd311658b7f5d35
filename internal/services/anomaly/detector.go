// Package anomaly flags unusual daily spend and token volume using a
// Z-score over the user's trailing two weeks of traffic.
package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/logger"
	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/pricing"
	"go.uber.org/zap"
)

const (
	warningZScore  = 2.0
	criticalZScore = 3.0

	// Degenerate history (constant spend) still alerts when today is more
	// than double the historical mean.
	degenerateFactor = 2.0

	// Token volume surge threshold relative to the historical daily mean.
	tokenSurgeFactor = 3.0

	historyDays = 14
)

type Anomaly struct {
	Type            string  `json:"type"`
	Message         string  `json:"message"`
	Severity        string  `json:"severity"`
	CurrentValue    float64 `json:"current_value"`
	ExpectedValue   float64 `json:"expected_value"`
	DeviationFactor float64 `json:"deviation_factor"`
}

// Detector scans a user's recent daily series after each metered request.
// Alert-worthy findings are delivered at most once per (user, UTC day).
type Detector struct {
	db     *gorm.DB
	client *http.Client

	mu    sync.Mutex
	fired map[string]bool

	now func() time.Time
}

func NewDetector(db *gorm.DB, webhookTimeout time.Duration) *Detector {
	if webhookTimeout <= 0 {
		webhookTimeout = 10 * time.Second
	}
	return &Detector{
		db:     db,
		client: &http.Client{Timeout: webhookTimeout},
		fired:  make(map[string]bool),
		now:    time.Now,
	}
}

type dailyStat struct {
	CostUSD float64
	Tokens  float64
}

// dailySeries builds the zero-filled per-day cost/token series for the
// trailing historyDays days, oldest first. The last entry is today.
func (d *Detector) dailySeries(userID uuid.UUID) ([]dailyStat, error) {
	now := d.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(historyDays - 1))

	type row struct {
		Day     string
		CostUSD float64
		Tokens  float64
	}
	var rows []row
	err := d.db.Model(&models.UsageLog{}).
		Select("DATE(created_at) AS day, COALESCE(SUM(cost_usd), 0) AS cost_usd, COALESCE(SUM(input_tokens + output_tokens), 0) AS tokens").
		Where("user_id = ? AND created_at >= ?", userID, start).
		Group("DATE(created_at)").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load daily series: %w", err)
	}

	byDay := make(map[string]row, len(rows))
	for _, r := range rows {
		day := r.Day
		if len(day) > 10 {
			day = day[:10]
		}
		byDay[day] = r
	}

	series := make([]dailyStat, historyDays)
	for i := 0; i < historyDays; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		r := byDay[day]
		series[i] = dailyStat{CostUSD: r.CostUSD, Tokens: r.Tokens}
	}
	return series, nil
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// Detect compares today against the preceding thirteen days and returns
// any findings. Results are not persisted; the webhook path dedups.
func (d *Detector) Detect(userID uuid.UUID) ([]Anomaly, error) {
	series, err := d.dailySeries(userID)
	if err != nil {
		return nil, err
	}

	history := series[:historyDays-1]
	today := series[historyDays-1]

	costs := make([]float64, len(history))
	tokens := make([]float64, len(history))
	for i, s := range history {
		costs[i] = s.CostUSD
		tokens[i] = s.Tokens
	}
	costMean, costStd := meanStd(costs)
	tokenMean, _ := meanStd(tokens)

	var out []Anomaly

	switch {
	case costStd > 0:
		z := (today.CostUSD - costMean) / costStd
		if z >= criticalZScore {
			out = append(out, costAnomaly(today.CostUSD, costMean, "critical"))
		} else if z >= warningZScore {
			out = append(out, costAnomaly(today.CostUSD, costMean, "warning"))
		}
	case costMean > 0 && today.CostUSD > degenerateFactor*costMean:
		out = append(out, costAnomaly(today.CostUSD, costMean, "warning"))
	}

	if tokenMean > 0 && today.Tokens >= tokenSurgeFactor*tokenMean {
		factor := today.Tokens / tokenMean
		out = append(out, Anomaly{
			Type:            "token_surge",
			Severity:        "info",
			Message:         fmt.Sprintf("token volume is %.1fx the recent daily average", factor),
			CurrentValue:    today.Tokens,
			ExpectedValue:   pricing.Round6(tokenMean),
			DeviationFactor: pricing.Round6(factor),
		})
	}

	return out, nil
}

func costAnomaly(current, expected float64, severity string) Anomaly {
	factor := 0.0
	if expected > 0 {
		factor = current / expected
	}
	return Anomaly{
		Type:            "spend_spike",
		Severity:        severity,
		Message:         fmt.Sprintf("today's spend $%.4f is well above the recent daily average $%.4f", current, expected),
		CurrentValue:    pricing.Round6(current),
		ExpectedValue:   pricing.Round6(expected),
		DeviationFactor: pricing.Round6(factor),
	}
}

// HasActiveAnomaly reports whether today currently looks anomalous.
func (d *Detector) HasActiveAnomaly(userID uuid.UUID) (bool, error) {
	found, err := d.Detect(userID)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// Check runs the post-request anomaly sweep. Only warning and critical
// findings are pushed to webhooks; the day is marked fired even when the
// user has no webhooks so re-detection stays cheap.
func (d *Detector) Check(ctx context.Context, userID uuid.UUID) {
	day := d.now().UTC().Format("2006-01-02")
	key := userID.String() + "|" + day
	if d.alreadyFired(key) {
		return
	}

	found, err := d.Detect(userID)
	if err != nil {
		logger.Error("anomaly detection failed", zap.Error(err))
		return
	}
	if len(found) == 0 {
		return
	}

	webhooks, err := d.activeWebhooks(userID)
	if err != nil {
		logger.Error("failed to load webhooks", zap.Error(err))
		return
	}

	for _, a := range found {
		if a.Severity != "warning" && a.Severity != "critical" {
			continue
		}
		payload := map[string]interface{}{
			"event":            models.AlertAnomaly,
			"type":             a.Type,
			"message":          a.Message,
			"severity":         a.Severity,
			"current_value":    a.CurrentValue,
			"expected_value":   a.ExpectedValue,
			"deviation_factor": a.DeviationFactor,
			"timestamp":        d.now().UTC().Format(time.RFC3339),
		}
		d.dispatch(ctx, webhooks, payload)
	}

	d.markFired(key)
}

func (d *Detector) activeWebhooks(userID uuid.UUID) ([]models.Webhook, error) {
	var out []models.Webhook
	if err := d.db.Where("user_id = ? AND is_active = ? AND event_type = ?",
		userID, true, models.AlertAnomaly).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}
	return out, nil
}

func (d *Detector) alreadyFired(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired[key]
}

func (d *Detector) markFired(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fired[key] = true
}

func (d *Detector) dispatch(ctx context.Context, webhooks []models.Webhook, payload map[string]interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal anomaly payload", zap.Error(err))
		return
	}
	for _, hook := range webhooks {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
		if err != nil {
			logger.Warn("failed to build webhook request",
				zap.String("url", hook.URL), zap.Error(err))
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			logger.Warn("webhook delivery failed",
				zap.String("url", hook.URL), zap.Error(err))
			continue
		}
		_ = resp.Body.Close()
	}
}
