package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/llmlab/llmlab/internal/crypto"
	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/services/keys"
)

type KeysHandler struct {
	keys *keys.Service
}

func NewKeysHandler(svc *keys.Service) *KeysHandler {
	return &KeysHandler{keys: svc}
}

type createKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

type keyResponse struct {
	ID         uuid.UUID  `json:"id"`
	Provider   string     `json:"provider"`
	ProxyKey   string     `json:"proxy_key"`
	MaskedKey  string     `json:"masked_key"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Create stores a provider credential and returns the minted proxy key.
// The plaintext is only ever echoed masked.
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req createKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key, err := h.keys.Store(userID, req.Provider, req.APIKey)
	if err != nil {
		if errors.Is(err, keys.ErrInvalidProvider) {
			respondError(w, http.StatusBadRequest, "invalid provider")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondData(w, http.StatusCreated, keyResponse{
		ID:        key.ID,
		Provider:  key.Provider,
		ProxyKey:  key.ProxyKey,
		MaskedKey: crypto.MaskKey(req.APIKey, 6),
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt,
	})
}

func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	list, err := h.keys.List(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}

	out := make([]keyResponse, 0, len(list))
	for _, key := range list {
		out = append(out, keyResponse{
			ID:         key.ID,
			Provider:   key.Provider,
			ProxyKey:   key.ProxyKey,
			MaskedKey:  crypto.MaskKey(key.ProxyKey, len("llmlab_pk_")+4),
			IsActive:   key.IsActive,
			LastUsedAt: key.LastUsedAt,
			CreatedAt:  key.CreatedAt,
		})
	}
	respondData(w, http.StatusOK, out)
}

func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	if err := h.keys.Delete(userID, keyID); err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			respondError(w, http.StatusNotFound, "api key not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete api key")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *KeysHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	if err := h.keys.Deactivate(userID, keyID); err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			respondError(w, http.StatusNotFound, "api key not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to deactivate api key")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
