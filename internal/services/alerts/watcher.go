// Package alerts watches budgets against rolling 30-day spend and pushes
// webhook notifications when thresholds are crossed.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

// Watcher evaluates a user's budgets after each metered request. Each
// (user, budget, status) fires at most once per process lifetime so a
// sustained overrun does not spam the webhook.
type Watcher struct {
	db     *gorm.DB
	client *http.Client

	mu    sync.Mutex
	fired map[string]bool
}

func NewWatcher(db *gorm.DB, webhookTimeout time.Duration) *Watcher {
	if webhookTimeout <= 0 {
		webhookTimeout = 10 * time.Second
	}
	return &Watcher{
		db:     db,
		client: &http.Client{Timeout: webhookTimeout},
		fired:  make(map[string]bool),
	}
}

type BudgetStatus struct {
	Budget         models.Budget `json:"budget"`
	CurrentSpend   float64       `json:"current_spend"`
	PercentageUsed float64       `json:"percentage_used"`
	Status         string        `json:"status"`
}

// CurrentSpend sums the user's cost over the trailing 30 days.
func (w *Watcher) CurrentSpend(userID uuid.UUID) (float64, error) {
	since := time.Now().UTC().AddDate(0, 0, -30)
	var spend float64
	err := w.db.Model(&models.UsageLog{}).
		Select("COALESCE(SUM(cost_usd), 0)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&spend).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum spend: %w", err)
	}
	return pricing.Round6(spend), nil
}

// Evaluate reports each budget's state without side effects.
func (w *Watcher) Evaluate(userID uuid.UUID) ([]BudgetStatus, error) {
	var budgets []models.Budget
	if err := w.db.Where("user_id = ?", userID).
		Order("created_at ASC").Find(&budgets).Error; err != nil {
		return nil, fmt.Errorf("failed to load budgets: %w", err)
	}
	if len(budgets) == 0 {
		return []BudgetStatus{}, nil
	}

	spend, err := w.CurrentSpend(userID)
	if err != nil {
		return nil, err
	}

	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		pct := 0.0
		if b.AmountUSD > 0 {
			pct = spend / b.AmountUSD * 100
		}
		status := "ok"
		switch {
		case pct >= 100:
			status = models.AlertBudgetExceeded
		case pct >= b.AlertThresholdPct:
			status = models.AlertBudgetWarning
		}
		out = append(out, BudgetStatus{
			Budget:         b,
			CurrentSpend:   spend,
			PercentageUsed: pricing.Round6(pct),
			Status:         status,
		})
	}
	return out, nil
}

// Check runs the post-request budget sweep. When the user has no active
// webhooks there is nobody to notify, so nothing fires and nothing is
// marked; a webhook registered later still gets the first alert.
func (w *Watcher) Check(ctx context.Context, userID uuid.UUID) {
	webhooks, err := w.activeWebhooks(userID)
	if err != nil {
		logger.Error("failed to load webhooks", zap.Error(err))
		return
	}
	if len(webhooks) == 0 {
		return
	}

	statuses, err := w.Evaluate(userID)
	if err != nil {
		logger.Error("failed to evaluate budgets", zap.Error(err))
		return
	}

	for _, st := range statuses {
		if st.Status == "ok" {
			continue
		}
		key := userID.String() + "|" + st.Budget.ID.String() + "|" + st.Status
		if w.alreadyFired(key) {
			continue
		}

		payload := map[string]interface{}{
			"event":             st.Status,
			"budget_id":         st.Budget.ID.String(),
			"budget_amount_usd": st.Budget.AmountUSD,
			"current_spend_usd": st.CurrentSpend,
			"percentage_used":   st.PercentageUsed,
			"alert_threshold":   st.Budget.AlertThresholdPct,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
		}
		// Only a confirmed delivery marks the tuple; a failed POST is
		// retried on the next metered request.
		if w.dispatch(ctx, webhooks, st.Status, payload) {
			w.markFired(key)
		}
	}
}

func (w *Watcher) activeWebhooks(userID uuid.UUID) ([]models.Webhook, error) {
	var out []models.Webhook
	if err := w.db.Where("user_id = ? AND is_active = ?", userID, true).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}
	return out, nil
}

func (w *Watcher) alreadyFired(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired[key]
}

func (w *Watcher) markFired(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fired[key] = true
}

// ResetFired clears the dedup set, used when a budget is rewritten so the
// new limits can alert again.
func (w *Watcher) ResetFired() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fired = make(map[string]bool)
}

// dispatch POSTs the payload to every webhook subscribed to the event and
// reports whether at least one endpoint accepted it. Failures are logged.
func (w *Watcher) dispatch(ctx context.Context, webhooks []models.Webhook, event string, payload map[string]interface{}) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal alert payload", zap.Error(err))
		return false
	}

	delivered := false
	for _, hook := range webhooks {
		if hook.EventType != event {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
		if err != nil {
			logger.Warn("failed to build webhook request",
				zap.String("url", hook.URL), zap.Error(err))
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			logger.Warn("webhook delivery failed",
				zap.String("url", hook.URL), zap.Error(err))
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			delivered = true
		} else {
			logger.Warn("webhook delivery rejected",
				zap.String("url", hook.URL), zap.Int("status", resp.StatusCode))
			continue
		}
		logger.Info("alert delivered",
			zap.String("event", event),
			zap.String("url", hook.URL),
			zap.Int("status", resp.StatusCode))
	}
	return delivered
}
