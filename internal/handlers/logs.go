package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/services/tags"
	"github.com/llmlab/llmlab/internal/services/usage"
)

type LogsHandler struct {
	usage *usage.Service
	tags  *tags.Service
}

func NewLogsHandler(usageSvc *usage.Service, tagsSvc *tags.Service) *LogsHandler {
	return &LogsHandler{usage: usageSvc, tags: tagsSvc}
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	qs := r.URL.Query()

	q := usage.LogsQuery{
		Provider: qs.Get("provider"),
		Model:    qs.Get("model"),
		Tag:      qs.Get("tag"),
		SortBy:   qs.Get("sort_by"),
		SortDesc: qs.Get("order") != "asc",
	}
	if page, err := strconv.Atoi(qs.Get("page")); err == nil {
		q.Page = page
	}
	if size, err := strconv.Atoi(qs.Get("page_size")); err == nil {
		q.PageSize = size
	}
	if tagStr := qs.Get("tag_id"); tagStr != "" {
		tagID, err := uuid.Parse(tagStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid tag id")
			return
		}
		q.TagID = &tagID
	}

	rows, total, err := h.usage.Logs(userID, q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list usage logs")
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"logs":  rows,
		"total": total,
	})
}

func (h *LogsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	logID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	row, err := h.usage.Log(userID, logID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "usage log not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load usage log")
		return
	}
	respondData(w, http.StatusOK, row)
}

type attachTagRequest struct {
	TagID uuid.UUID `json:"tag_id"`
}

func (h *LogsHandler) AttachTag(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	logID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	var req attachTagRequest
	if !decodeBody(w, r, &req) {
		return
	}

	row, err := h.usage.Log(userID, logID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "usage log not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load usage log")
		return
	}

	if err := h.tags.Attach(userID, row, req.TagID); err != nil {
		if errors.Is(err, tags.ErrTagNotFound) {
			respondError(w, http.StatusNotFound, "tag not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to attach tag")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "attached"})
}

func (h *LogsHandler) DetachTag(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	logID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid log id")
		return
	}
	tagID, err := uuid.Parse(chi.URLParam(r, "tagID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tag id")
		return
	}

	row, err := h.usage.Log(userID, logID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "usage log not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load usage log")
		return
	}

	if err := h.tags.Detach(userID, row, tagID); err != nil {
		if errors.Is(err, tags.ErrTagNotFound) {
			respondError(w, http.StatusNotFound, "tag not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to detach tag")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "detached"})
}
