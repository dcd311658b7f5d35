package forecast

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/testutil"
)

func setup(t *testing.T) (*Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 6001)
	return NewService(db), db, user.ID
}

func seedDay(t *testing.T, db *gorm.DB, userID uuid.UUID, daysAgo int, cost float64) {
	t.Helper()
	log := &models.UsageLog{
		UserID:   userID,
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o",
		CostUSD:  cost,
	}
	now := time.Now().UTC()
	log.CreatedAt = time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo)
	require.NoError(t, db.Create(log).Error)
}

func TestLinearFit(t *testing.T) {
	slope, intercept := linearFit([]float64{1, 2, 3, 4, 5})
	assert.InDelta(t, 1.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)

	slope, intercept = linearFit([]float64{2, 2, 2})
	assert.InDelta(t, 0.0, slope, 1e-9)
	assert.InDelta(t, 2.0, intercept, 1e-9)
}

func TestPredictEmptyHistory(t *testing.T) {
	svc, _, userID := setup(t)

	out, err := svc.Predict(userID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.PredictedNextMonthUSD)
	assert.Equal(t, "stable", out.Trend)
	assert.Equal(t, "low", out.Confidence)
	assert.Len(t, out.ProjectedDaily, 30)
}

func TestPredictStableSpend(t *testing.T) {
	svc, db, userID := setup(t)
	for i := 0; i < 30; i++ {
		seedDay(t, db, userID, i, 1.0)
	}

	out, err := svc.Predict(userID)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, out.PredictedNextMonthUSD, 0.5)
	assert.InDelta(t, 1.0, out.DailyAverageUSD, 1e-6)
	assert.Equal(t, "stable", out.Trend)
	assert.Equal(t, "high", out.Confidence)
}

func TestPredictIncreasingTrend(t *testing.T) {
	svc, db, userID := setup(t)
	// Ramps from 0.1 to 3.0 over the window.
	for i := 0; i < 30; i++ {
		seedDay(t, db, userID, 29-i, 0.1*float64(i+1))
	}

	out, err := svc.Predict(userID)
	require.NoError(t, err)
	assert.Equal(t, "increasing", out.Trend)
	assert.Greater(t, out.TrendPctChange, 10.0)
	assert.Greater(t, out.PredictedNextMonthUSD, 46.5, "projection continues the ramp")
}

func TestPredictDecliningSpendClampsAtZero(t *testing.T) {
	svc, db, userID := setup(t)
	for i := 0; i < 30; i++ {
		seedDay(t, db, userID, 29-i, 3.0-0.1*float64(i))
	}

	out, err := svc.Predict(userID)
	require.NoError(t, err)
	assert.Equal(t, "decreasing", out.Trend)
	for _, day := range out.ProjectedDaily {
		assert.GreaterOrEqual(t, day.CostUSD, 0.0, "no negative projections")
	}
}

func TestConfidenceTiers(t *testing.T) {
	t.Run("medium with sparse history", func(t *testing.T) {
		svc, db, userID := setup(t)
		for i := 0; i < 12; i++ {
			seedDay(t, db, userID, i*2, 1.0)
		}
		out, err := svc.Predict(userID)
		require.NoError(t, err)
		assert.Equal(t, "medium", out.Confidence)
	})

	t.Run("low with little history", func(t *testing.T) {
		svc, db, userID := setup(t)
		for i := 0; i < 5; i++ {
			seedDay(t, db, userID, i, 1.0)
		}
		out, err := svc.Predict(userID)
		require.NoError(t, err)
		assert.Equal(t, "low", out.Confidence)
	})
}

func TestProjectedDailyDatesAreSequential(t *testing.T) {
	svc, db, userID := setup(t)
	seedDay(t, db, userID, 0, 1.0)

	out, err := svc.Predict(userID)
	require.NoError(t, err)
	require.Len(t, out.ProjectedDaily, 30)

	prev, err := time.Parse("2006-01-02", out.ProjectedDaily[0].Date)
	require.NoError(t, err)
	for _, day := range out.ProjectedDaily[1:] {
		next, err := time.Parse("2006-01-02", day.Date)
		require.NoError(t, err)
		assert.Equal(t, prev.AddDate(0, 0, 1), next)
		prev = next
	}
}
