package handlers

import (
	"net/http"

	"github.com/llmlab/llmlab/internal/cache"
)

type CacheHandler struct {
	cache cache.Backend
}

func NewCacheHandler(backend cache.Backend) *CacheHandler {
	return &CacheHandler{cache: backend}
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.cache.Stats())
}

func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	respondData(w, http.StatusOK, map[string]string{"status": "cleared"})
}
