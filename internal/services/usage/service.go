// Package usage is the read side of the meter: aggregations over the
// usage_logs table that power the stats, heatmap, comparison, and log
// browsing endpoints.
package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/pricing"
)

var (
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrUnknownPeriod    = errors.New("unknown period")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type Totals struct {
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

type Summary struct {
	Today     Totals `json:"today"`
	Week      Totals `json:"week"`
	Month     Totals `json:"month"`
	AllTime   Totals `json:"all_time"`
	Last30Day Totals `json:"last_30_days"`
}

// scoped starts a usage_logs query for the user, narrowed to rows linked
// to the named tag when tag is non-empty.
func (s *Service) scoped(userID uuid.UUID, tag string) *gorm.DB {
	q := s.db.Model(&models.UsageLog{}).Where("usage_logs.user_id = ?", userID)
	if tag != "" {
		q = q.Joins("JOIN usage_log_tags ult ON ult.usage_log_id = usage_logs.id").
			Joins("JOIN tags ON tags.id = ult.tag_id").
			Where("tags.name = ?", tag)
	}
	return q
}

func (s *Service) totalsSince(userID uuid.UUID, tag string, since *time.Time) (Totals, error) {
	var t Totals
	q := s.scoped(userID, tag).
		Select("COUNT(*) AS requests, COALESCE(SUM(input_tokens), 0) AS input_tokens, COALESCE(SUM(output_tokens), 0) AS output_tokens, COALESCE(SUM(cost_usd), 0) AS cost_usd")
	if since != nil {
		q = q.Where("usage_logs.created_at >= ?", *since)
	}
	if err := q.Scan(&t).Error; err != nil {
		return Totals{}, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	t.CostUSD = pricing.Round6(t.CostUSD)
	return t, nil
}

// Summary aggregates spend over the standard reporting windows, optionally
// narrowed to a tag. Windows are anchored to UTC midnight.
func (s *Service) Summary(userID uuid.UUID, tag string) (*Summary, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -6)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	last30 := dayStart.AddDate(0, 0, -29)

	var out Summary
	var err error
	if out.Today, err = s.totalsSince(userID, tag, &dayStart); err != nil {
		return nil, err
	}
	if out.Week, err = s.totalsSince(userID, tag, &weekStart); err != nil {
		return nil, err
	}
	if out.Month, err = s.totalsSince(userID, tag, &monthStart); err != nil {
		return nil, err
	}
	if out.Last30Day, err = s.totalsSince(userID, tag, &last30); err != nil {
		return nil, err
	}
	if out.AllTime, err = s.totalsSince(userID, tag, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// PeriodTotals aggregates one named reporting window: today, week, month,
// 30d, or all.
func (s *Service) PeriodTotals(userID uuid.UUID, period, tag string) (Totals, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var since *time.Time
	switch period {
	case "today":
		since = &dayStart
	case "week":
		start := dayStart.AddDate(0, 0, -6)
		since = &start
	case "month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		since = &start
	case "30d":
		start := dayStart.AddDate(0, 0, -29)
		since = &start
	case "all":
	default:
		return Totals{}, ErrUnknownPeriod
	}
	return s.totalsSince(userID, tag, since)
}

type ModelBreakdown struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ByModel breaks spend down per (provider, model) in the given window,
// most expensive first.
func (s *Service) ByModel(userID uuid.UUID, tag string, from, to time.Time) ([]ModelBreakdown, error) {
	var out []ModelBreakdown
	err := s.scoped(userID, tag).
		Select("provider, model, COUNT(*) AS requests, COALESCE(SUM(input_tokens), 0) AS input_tokens, COALESCE(SUM(output_tokens), 0) AS output_tokens, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("usage_logs.created_at >= ? AND usage_logs.created_at < ?", from, to).
		Group("provider, model").
		Order("cost_usd DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by model: %w", err)
	}
	for i := range out {
		out[i].CostUSD = pricing.Round6(out[i].CostUSD)
	}
	return out, nil
}

type DailyPoint struct {
	Date         string  `json:"date"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ByDay returns one point per calendar day in [from, to], zero-filling
// days with no traffic so charts have a continuous axis.
func (s *Service) ByDay(userID uuid.UUID, tag string, from, to time.Time) ([]DailyPoint, error) {
	type row struct {
		Day          string
		Requests     int64
		InputTokens  int64
		OutputTokens int64
		CostUSD      float64
	}
	var rows []row
	err := s.scoped(userID, tag).
		Select("DATE(usage_logs.created_at) AS day, COUNT(*) AS requests, COALESCE(SUM(input_tokens), 0) AS input_tokens, COALESCE(SUM(output_tokens), 0) AS output_tokens, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("usage_logs.created_at >= ? AND usage_logs.created_at < ?", from, to.AddDate(0, 0, 1)).
		Group("DATE(usage_logs.created_at)").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by day: %w", err)
	}

	byDay := make(map[string]row, len(rows))
	for _, r := range rows {
		// Postgres DATE() scans back with a time component; keep the date part.
		day := r.Day
		if len(day) > 10 {
			day = day[:10]
		}
		byDay[day] = r
	}

	var out []DailyPoint
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		r := byDay[day]
		out = append(out, DailyPoint{
			Date:         day,
			Requests:     r.Requests,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			CostUSD:      pricing.Round6(r.CostUSD),
		})
	}
	return out, nil
}

type HeatmapCell struct {
	Weekday  int     `json:"weekday"`
	Hour     int     `json:"hour"`
	Requests int64   `json:"requests"`
	CostUSD  float64 `json:"cost_usd"`
}

// Heatmap buckets requests by (weekday, hour). Weekday 0 is Sunday,
// matching both EXTRACT(DOW ...) and strftime('%w', ...).
func (s *Service) Heatmap(userID uuid.UUID, from, to time.Time) ([]HeatmapCell, error) {
	weekdayExpr := "CAST(EXTRACT(DOW FROM created_at) AS INTEGER)"
	hourExpr := "CAST(EXTRACT(HOUR FROM created_at) AS INTEGER)"
	if s.db.Dialector.Name() == "sqlite" {
		weekdayExpr = "CAST(strftime('%w', created_at) AS INTEGER)"
		hourExpr = "CAST(strftime('%H', created_at) AS INTEGER)"
	}

	var out []HeatmapCell
	err := s.db.Model(&models.UsageLog{}).
		Select(weekdayExpr+" AS weekday, "+hourExpr+" AS hour, COUNT(*) AS requests, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to.AddDate(0, 0, 1)).
		Group(weekdayExpr + ", " + hourExpr).
		Order("weekday ASC, hour ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build heatmap: %w", err)
	}
	for i := range out {
		out[i].CostUSD = pricing.Round6(out[i].CostUSD)
	}
	return out, nil
}

type ModelComparison struct {
	Provider     string                `json:"provider"`
	Model        string                `json:"model"`
	Requests     int64                 `json:"requests"`
	ActualCost   float64               `json:"actual_cost"`
	Alternatives []pricing.Alternative `json:"alternatives"`
}

type Comparison struct {
	Models               []ModelComparison `json:"models"`
	TotalActualCost      float64           `json:"total_actual_cost"`
	CheapestPossibleCost float64           `json:"cheapest_possible_cost"`
	PotentialSavings     float64           `json:"potential_savings"`
}

// Comparison reprices the window's traffic against every other known
// model. Each used model keeps its five cheapest alternatives.
func (s *Service) Comparison(userID uuid.UUID, from, to time.Time) (*Comparison, error) {
	type row struct {
		Provider     string
		Model        string
		Requests     int64
		InputTokens  int64
		OutputTokens int64
		CostUSD      float64
	}
	var rows []row
	err := s.db.Model(&models.UsageLog{}).
		Select("provider, model, COUNT(*) AS requests, COALESCE(SUM(input_tokens), 0) AS input_tokens, COALESCE(SUM(output_tokens), 0) AS output_tokens, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to.AddDate(0, 0, 1)).
		Group("provider, model").
		Order("cost_usd DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate for comparison: %w", err)
	}

	out := &Comparison{Models: []ModelComparison{}}
	for _, r := range rows {
		alts := pricing.Alternatives(r.Provider, r.Model, int(r.InputTokens), int(r.OutputTokens))
		if len(alts) > 5 {
			alts = alts[:5]
		}
		out.Models = append(out.Models, ModelComparison{
			Provider:     r.Provider,
			Model:        r.Model,
			Requests:     r.Requests,
			ActualCost:   pricing.Round6(r.CostUSD),
			Alternatives: alts,
		})
		out.TotalActualCost += r.CostUSD
		out.CheapestPossibleCost += pricing.CheapestCost(int(r.InputTokens), int(r.OutputTokens))
	}

	out.TotalActualCost = pricing.Round6(out.TotalActualCost)
	out.CheapestPossibleCost = pricing.Round6(out.CheapestPossibleCost)
	if savings := out.TotalActualCost - out.CheapestPossibleCost; savings > 0 {
		out.PotentialSavings = pricing.Round6(savings)
	}
	return out, nil
}

type CacheSavings struct {
	CachedRequests int64   `json:"cached_requests"`
	SavedCostUSD   float64 `json:"saved_cost_usd"`
	SavedTokens    int64   `json:"saved_tokens"`
}

// CacheSavings estimates what cache hits would have cost at list price.
func (s *Service) CacheSavings(userID uuid.UUID) (*CacheSavings, error) {
	var hits []models.UsageLog
	if err := s.db.Where("user_id = ? AND cache_hit = ?", userID, true).
		Find(&hits).Error; err != nil {
		return nil, fmt.Errorf("failed to load cache hits: %w", err)
	}

	out := &CacheSavings{CachedRequests: int64(len(hits))}
	var saved float64
	for _, h := range hits {
		saved += pricing.Cost(h.Provider, h.Model, h.InputTokens, h.OutputTokens)
		out.SavedTokens += int64(h.InputTokens + h.OutputTokens)
	}
	out.SavedCostUSD = pricing.Round6(saved)
	return out, nil
}

// LogsQuery narrows and orders a page of usage logs.
type LogsQuery struct {
	Provider string
	Model    string
	Tag      string
	TagID    *uuid.UUID
	SortBy   string
	SortDesc bool
	Page     int
	PageSize int
}

var sortableColumns = map[string]bool{
	"created_at":    true,
	"cost_usd":      true,
	"input_tokens":  true,
	"output_tokens": true,
	"latency_ms":    true,
	"provider":      true,
	"model":         true,
}

// Logs returns one page of usage rows plus the unpaged total. Unknown
// sort columns fall back to created_at DESC.
func (s *Service) Logs(userID uuid.UUID, q LogsQuery) ([]models.UsageLog, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 200 {
		q.PageSize = 50
	}

	base := s.db.Model(&models.UsageLog{}).Where("usage_logs.user_id = ?", userID)
	if q.Provider != "" {
		base = base.Where("usage_logs.provider = ?", q.Provider)
	}
	if q.Model != "" {
		base = base.Where("usage_logs.model = ?", q.Model)
	}
	if q.TagID != nil {
		base = base.Joins("JOIN usage_log_tags ult ON ult.usage_log_id = usage_logs.id").
			Where("ult.tag_id = ?", *q.TagID)
	}
	if q.Tag != "" {
		base = base.Joins("JOIN usage_log_tags named ON named.usage_log_id = usage_logs.id").
			Joins("JOIN tags ON tags.id = named.tag_id").
			Where("tags.name = ?", q.Tag)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count usage logs: %w", err)
	}

	order := "usage_logs.created_at DESC"
	if sortableColumns[q.SortBy] {
		dir := "ASC"
		if q.SortDesc {
			dir = "DESC"
		}
		order = "usage_logs." + q.SortBy + " " + dir
	}

	var rows []models.UsageLog
	err := base.Session(&gorm.Session{}).Preload("Tags").
		Order(order).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list usage logs: %w", err)
	}
	return rows, total, nil
}

// Log loads a single usage row with its tags.
func (s *Service) Log(userID, logID uuid.UUID) (*models.UsageLog, error) {
	var row models.UsageLog
	err := s.db.Preload("Tags").
		Where("id = ? AND user_id = ?", logID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage log: %w", err)
	}
	return &row, nil
}

// Export returns every row in the window, oldest first, for CSV/JSON dumps.
func (s *Service) Export(userID uuid.UUID, from, to time.Time) ([]models.UsageLog, error) {
	var rows []models.UsageLog
	err := s.db.Preload("Tags").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to.AddDate(0, 0, 1)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to export usage logs: %w", err)
	}
	return rows, nil
}

// ParseDateRange validates a YYYY-MM-DD pair, defaulting to the trailing
// 30 days. An inverted range is an error.
func ParseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -29)

	var err error
	if fromStr != "" {
		if from, err = time.ParseInLocation("2006-01-02", fromStr, time.UTC); err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDateRange
		}
	}
	if toStr != "" {
		if to, err = time.ParseInLocation("2006-01-02", toStr, time.UTC); err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDateRange
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidDateRange
	}
	return from, to, nil
}
