// Package forecast projects next-month spend with a least-squares fit
// over the trailing 30 days of daily cost.
package forecast

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/pricing"
)

const windowDays = 30

type ProjectedDay struct {
	Date    string  `json:"date"`
	CostUSD float64 `json:"cost_usd"`
}

type Forecast struct {
	PredictedNextMonthUSD float64        `json:"predicted_next_month_usd"`
	DailyAverageUSD       float64        `json:"daily_average_usd"`
	Trend                 string         `json:"trend"`
	TrendPctChange        float64        `json:"trend_pct_change"`
	Confidence            string         `json:"confidence"`
	ProjectedDaily        []ProjectedDay `json:"projected_daily"`
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// dailyCosts returns the zero-filled daily spend for the trailing 30 days,
// oldest first, ending today.
func (s *Service) dailyCosts(userID uuid.UUID) ([]float64, time.Time, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(windowDays - 1))

	type row struct {
		Day     string
		CostUSD float64
	}
	var rows []row
	err := s.db.Model(&models.UsageLog{}).
		Select("DATE(created_at) AS day, COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Where("user_id = ? AND created_at >= ?", userID, start).
		Group("DATE(created_at)").
		Scan(&rows).Error
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load daily costs: %w", err)
	}

	byDay := make(map[string]float64, len(rows))
	for _, r := range rows {
		day := r.Day
		if len(day) > 10 {
			day = day[:10]
		}
		byDay[day] = r.CostUSD
	}

	costs := make([]float64, windowDays)
	for i := 0; i < windowDays; i++ {
		costs[i] = byDay[start.AddDate(0, 0, i).Format("2006-01-02")]
	}
	return costs, today, nil
}

// linearFit returns the least-squares slope and intercept for y over
// x = 0..n-1.
func linearFit(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	if n == 0 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// Predict fits the trailing window and projects the next 30 days.
// Projections clamp at zero; a declining fit never predicts refunds.
func (s *Service) Predict(userID uuid.UUID) (*Forecast, error) {
	costs, today, err := s.dailyCosts(userID)
	if err != nil {
		return nil, err
	}

	slope, intercept := linearFit(costs)

	var total, sum float64
	projected := make([]ProjectedDay, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		v := slope*float64(windowDays+i) + intercept
		if v < 0 {
			v = 0
		}
		total += v
		projected = append(projected, ProjectedDay{
			Date:    today.AddDate(0, 0, i+1).Format("2006-01-02"),
			CostUSD: pricing.Round6(v),
		})
	}
	for _, c := range costs {
		sum += c
	}

	out := &Forecast{
		PredictedNextMonthUSD: pricing.Round6(total),
		DailyAverageUSD:       pricing.Round6(sum / windowDays),
		Trend:                 "stable",
		Confidence:            confidence(costs),
		ProjectedDaily:        projected,
	}

	// Trend compares the two halves of the observed window.
	var firstHalf, secondHalf float64
	for i, c := range costs {
		if i < windowDays/2 {
			firstHalf += c
		} else {
			secondHalf += c
		}
	}
	if firstHalf > 0 {
		change := (secondHalf - firstHalf) / firstHalf * 100
		out.TrendPctChange = pricing.Round6(change)
		if change > 10 {
			out.Trend = "increasing"
		} else if change < -10 {
			out.Trend = "decreasing"
		}
	} else if secondHalf > 0 {
		out.Trend = "increasing"
	}

	return out, nil
}

// confidence grades the fit by how many observed days carry traffic.
func confidence(costs []float64) string {
	nonZero := 0
	for _, c := range costs {
		if c > 0 {
			nonZero++
		}
	}
	switch {
	case nonZero >= 20:
		return "high"
	case nonZero >= 10:
		return "medium"
	}
	return "low"
}
