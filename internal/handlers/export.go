package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/services/usage"
)

type ExportHandler struct {
	usage *usage.Service
}

func NewExportHandler(svc *usage.Service) *ExportHandler {
	return &ExportHandler{usage: svc}
}

func (h *ExportHandler) window(w http.ResponseWriter, r *http.Request) ([]models.UsageLog, bool) {
	userID, _ := middleware.UserID(r.Context())

	from, to, err := usage.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date range")
		return nil, false
	}

	rows, err := h.usage.Export(userID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to export usage logs")
		return nil, false
	}
	return rows, true
}

// CSV dumps the window's usage logs as a CSV attachment.
func (h *ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.window(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="usage_export.csv"`)
	writeCSV(w, rows)
}

// JSON dumps the window's usage logs as a JSON attachment.
func (h *ExportHandler) JSON(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.window(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="usage_export.json"`)
	respondData(w, http.StatusOK, rows)
}

func writeCSV(w http.ResponseWriter, rows []models.UsageLog) {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	_ = cw.Write([]string{
		"id", "created_at", "provider", "model",
		"input_tokens", "output_tokens", "cost_usd",
		"latency_ms", "cache_hit", "tags",
	})

	for _, row := range rows {
		tagNames := make([]string, 0, len(row.Tags))
		for _, t := range row.Tags {
			tagNames = append(tagNames, t.Name)
		}
		_ = cw.Write([]string{
			row.ID.String(),
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.Provider,
			row.Model,
			strconv.Itoa(row.InputTokens),
			strconv.Itoa(row.OutputTokens),
			strconv.FormatFloat(row.CostUSD, 'f', 6, 64),
			strconv.FormatInt(row.LatencyMS, 10),
			strconv.FormatBool(row.CacheHit),
			strings.Join(tagNames, ";"),
		})
	}
}
