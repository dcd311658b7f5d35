package handlers

import (
	"errors"
	"net/http"

	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/services/anomaly"
	"github.com/llmlab/llmlab/internal/services/forecast"
	"github.com/llmlab/llmlab/internal/services/usage"
)

type StatsHandler struct {
	usage    *usage.Service
	forecast *forecast.Service
	anomaly  *anomaly.Detector
}

func NewStatsHandler(usageSvc *usage.Service, forecastSvc *forecast.Service, detector *anomaly.Detector) *StatsHandler {
	return &StatsHandler{usage: usageSvc, forecast: forecastSvc, anomaly: detector}
}

func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	qs := r.URL.Query()
	tag := qs.Get("tag")

	active, err := h.anomaly.HasActiveAnomaly(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to check anomalies")
		return
	}

	if period := qs.Get("period"); period != "" {
		totals, err := h.usage.PeriodTotals(userID, period, tag)
		if errors.Is(err, usage.ErrUnknownPeriod) {
			respondError(w, http.StatusBadRequest, "unknown period")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load summary")
			return
		}
		respondData(w, http.StatusOK, map[string]interface{}{
			"period":             period,
			"totals":             totals,
			"has_active_anomaly": active,
		})
		return
	}

	summary, err := h.usage.Summary(userID, tag)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"summary":            summary,
		"has_active_anomaly": active,
	})
}

func (h *StatsHandler) ByModel(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	from, to, err := usage.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date range")
		return
	}

	out, err := h.usage.ByModel(userID, r.URL.Query().Get("tag"), from, to.AddDate(0, 0, 1))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to aggregate by model")
		return
	}
	respondData(w, http.StatusOK, out)
}

func (h *StatsHandler) ByDay(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	from, to, err := usage.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date range")
		return
	}

	out, err := h.usage.ByDay(userID, r.URL.Query().Get("tag"), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to aggregate by day")
		return
	}
	respondData(w, http.StatusOK, out)
}

func (h *StatsHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	from, to, err := usage.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date range")
		return
	}

	out, err := h.usage.Heatmap(userID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build heatmap")
		return
	}
	respondData(w, http.StatusOK, out)
}

func (h *StatsHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	from, to, err := usage.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date range")
		return
	}

	out, err := h.usage.Comparison(userID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build comparison")
		return
	}
	respondData(w, http.StatusOK, out)
}

func (h *StatsHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	out, err := h.forecast.Predict(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build forecast")
		return
	}
	respondData(w, http.StatusOK, out)
}

func (h *StatsHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	found, err := h.anomaly.Detect(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to detect anomalies")
		return
	}
	if found == nil {
		found = []anomaly.Anomaly{}
	}
	respondData(w, http.StatusOK, found)
}

func (h *StatsHandler) CacheSavings(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	out, err := h.usage.CacheSavings(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute cache savings")
		return
	}
	respondData(w, http.StatusOK, out)
}
