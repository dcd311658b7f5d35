package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/models"
)

type WebhooksHandler struct {
	db *gorm.DB
}

func NewWebhooksHandler(db *gorm.DB) *WebhooksHandler {
	return &WebhooksHandler{db: db}
}

type webhookRequest struct {
	URL       string `json:"url"`
	EventType string `json:"event_type"`
}

func (h *WebhooksHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var hooks []models.Webhook
	if err := h.db.Where("user_id = ?", userID).
		Order("created_at DESC").Find(&hooks).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	respondData(w, http.StatusOK, hooks)
}

func (h *WebhooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req webhookRequest
	if !decodeBody(w, r, &req) {
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		respondError(w, http.StatusBadRequest, "invalid webhook url")
		return
	}
	if !models.ValidWebhookEvent(req.EventType) {
		respondError(w, http.StatusBadRequest, "invalid event type")
		return
	}

	hook := models.Webhook{
		UserID:    userID,
		URL:       req.URL,
		EventType: req.EventType,
		IsActive:  true,
	}
	if err := h.db.Create(&hook).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}
	respondData(w, http.StatusCreated, hook)
}

func (h *WebhooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	hookID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	res := h.db.Where("id = ? AND user_id = ?", hookID, userID).Delete(&models.Webhook{})
	if res.Error != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}
	if res.RowsAffected == 0 {
		respondError(w, http.StatusNotFound, "webhook not found")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted"})
}
