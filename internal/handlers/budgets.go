package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/logger"
	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/services/alerts"
	"go.uber.org/zap"
)

type BudgetsHandler struct {
	db      *gorm.DB
	watcher *alerts.Watcher
}

func NewBudgetsHandler(db *gorm.DB, watcher *alerts.Watcher) *BudgetsHandler {
	return &BudgetsHandler{db: db, watcher: watcher}
}

type budgetRequest struct {
	AmountUSD         float64 `json:"amount_usd"`
	AlertThresholdPct float64 `json:"alert_threshold_pct"`
}

// List returns each budget with its live spend and status.
func (h *BudgetsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	statuses, err := h.watcher.Evaluate(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to evaluate budgets")
		return
	}
	respondData(w, http.StatusOK, statuses)
}

// Upsert creates the user's budget or rewrites the existing one. A rewrite
// clears alert dedup state so the new limits can notify again.
func (h *BudgetsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req budgetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AmountUSD <= 0 {
		respondError(w, http.StatusBadRequest, "amount_usd must be positive")
		return
	}
	if req.AlertThresholdPct <= 0 || req.AlertThresholdPct > 100 {
		req.AlertThresholdPct = 80
	}

	var budget models.Budget
	err := h.db.Where("user_id = ?", userID).First(&budget).Error
	created := false
	switch {
	case err == gorm.ErrRecordNotFound:
		budget = models.Budget{
			UserID:            userID,
			AmountUSD:         req.AmountUSD,
			Period:            models.BudgetPeriodMonthly,
			AlertThresholdPct: req.AlertThresholdPct,
		}
		if err := h.db.Create(&budget).Error; err != nil {
			logger.Error("failed to create budget", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to create budget")
			return
		}
		created = true
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to load budget")
		return
	default:
		budget.AmountUSD = req.AmountUSD
		budget.AlertThresholdPct = req.AlertThresholdPct
		if err := h.db.Save(&budget).Error; err != nil {
			logger.Error("failed to update budget", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to update budget")
			return
		}
		h.watcher.ResetFired()
	}

	spend, err := h.watcher.CurrentSpend(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute spend")
		return
	}
	pct := 0.0
	if budget.AmountUSD > 0 {
		pct = spend / budget.AmountUSD * 100
	}
	status := "ok"
	switch {
	case pct >= 100:
		status = models.AlertBudgetExceeded
	case pct >= budget.AlertThresholdPct:
		status = models.AlertBudgetWarning
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respondData(w, code, map[string]interface{}{
		"budget":          budget,
		"current_spend":   spend,
		"percentage_used": pct,
		"status":          status,
	})
}

func (h *BudgetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	budgetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid budget id")
		return
	}

	res := h.db.Where("id = ? AND user_id = ?", budgetID, userID).Delete(&models.Budget{})
	if res.Error != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete budget")
		return
	}
	if res.RowsAffected == 0 {
		respondError(w, http.StatusNotFound, "budget not found")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted"})
}
