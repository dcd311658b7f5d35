package handlers

import (
	"net/http"
	"time"

	"github.com/llmlab/llmlab/internal/database"
)

type HealthHandler struct {
	version   string
	startedAt time.Time
}

func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, startedAt: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	status := "healthy"
	code := http.StatusOK
	if !database.IsHealthy() {
		dbStatus = "unhealthy"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]interface{}{
		"status":         status,
		"database":       dbStatus,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
