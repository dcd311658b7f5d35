package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/services/tags"
)

type TagsHandler struct {
	tags *tags.Service
}

func NewTagsHandler(svc *tags.Service) *TagsHandler {
	return &TagsHandler{tags: svc}
}

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *TagsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	list, err := h.tags.List(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	respondData(w, http.StatusOK, list)
}

func (h *TagsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req tagRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "tag name is required")
		return
	}

	tag, err := h.tags.Create(userID, req.Name, req.Color)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tag")
		return
	}
	respondData(w, http.StatusCreated, tag)
}

func (h *TagsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	tagID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tag id")
		return
	}

	var req tagRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tag, err := h.tags.Update(userID, tagID, req.Name, req.Color)
	if err != nil {
		if errors.Is(err, tags.ErrTagNotFound) {
			respondError(w, http.StatusNotFound, "tag not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update tag")
		return
	}
	respondData(w, http.StatusOK, tag)
}

func (h *TagsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	tagID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tag id")
		return
	}

	if err := h.tags.Delete(userID, tagID); err != nil {
		if errors.Is(err, tags.ErrTagNotFound) {
			respondError(w, http.StatusNotFound, "tag not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete tag")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted"})
}
