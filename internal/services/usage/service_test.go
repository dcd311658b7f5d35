package usage

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

func newService(t *testing.T) (*Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 3001)
	return NewService(db), db, user.ID
}

func seedLog(t *testing.T, db *gorm.DB, userID uuid.UUID, provider, model string, in, out int, cost float64, at time.Time) *models.UsageLog {
	t.Helper()
	log := &models.UsageLog{
		UserID:       userID,
		Provider:     provider,
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      cost,
		LatencyMS:    120,
	}
	log.CreatedAt = at
	require.NoError(t, db.Create(log).Error)
	return log
}

func TestSummary(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, now.Add(-time.Hour))
	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.25, now.AddDate(0, 0, -3))
	seedLog(t, db, userID, "anthropic", "claude-3-5-sonnet-20241022", 10, 5, 1.0, now.AddDate(0, 0, -60))

	summary, err := svc.Summary(userID, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Today.Requests)
	assert.Equal(t, 0.5, summary.Today.CostUSD)
	assert.Equal(t, int64(2), summary.Week.Requests)
	assert.Equal(t, int64(3), summary.AllTime.Requests)
	assert.Equal(t, 1.75, summary.AllTime.CostUSD)
	assert.Equal(t, int64(2), summary.Last30Day.Requests)
}

func TestSummaryIsolatesUsers(t *testing.T) {
	svc, db, userID := newService(t)
	other := testutil.NewTestUser(t, db, 3002)
	seedLog(t, db, other.ID, "openai", "gpt-4o", 100, 50, 9.99, time.Now().UTC())

	summary, err := svc.Summary(userID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.AllTime.Requests)
}

func TestRollupsFilterByTagName(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	midday := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC)
	tagged := seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, midday)
	seedLog(t, db, userID, "google", "gemini-1.5-flash", 200, 80, 0.1, midday)

	tag := &models.Tag{UserID: userID, Name: "prod", Color: models.DefaultTagColor}
	require.NoError(t, db.Create(tag).Error)
	require.NoError(t, db.Model(tagged).Association("Tags").Append(tag))

	summary, err := svc.Summary(userID, "prod")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.AllTime.Requests)
	assert.Equal(t, 0.5, summary.AllTime.CostUSD)

	byModel, err := svc.ByModel(userID, "prod", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, byModel, 1)
	assert.Equal(t, "gpt-4o", byModel[0].Model)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	byDay, err := svc.ByDay(userID, "prod", today, today)
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, int64(1), byDay[0].Requests)

	// Unknown tag matches nothing.
	summary, err = svc.Summary(userID, "staging")
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.AllTime.Requests)
}

func TestPeriodTotals(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	midday := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC)
	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, midday)
	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.25, now.AddDate(0, 0, -60))

	totals, err := svc.PeriodTotals(userID, "today", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Requests)

	totals, err = svc.PeriodTotals(userID, "all", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Requests)
	assert.Equal(t, 0.75, totals.CostUSD)

	_, err = svc.PeriodTotals(userID, "fortnight", "")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestByModel(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, now)
	seedLog(t, db, userID, "openai", "gpt-4o", 200, 100, 0.9, now)
	seedLog(t, db, userID, "google", "gemini-1.5-flash", 500, 100, 0.1, now)

	out, err := svc.ByModel(userID, "", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "gpt-4o", out[0].Model, "most expensive first")
	assert.Equal(t, int64(2), out[0].Requests)
	assert.Equal(t, 1.4, out[0].CostUSD)
	assert.Equal(t, int64(300), out[0].InputTokens)
}

func TestByDayZeroFills(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, today.Add(10*time.Hour).Add(-48*time.Hour))

	from := today.AddDate(0, 0, -4)
	out, err := svc.ByDay(userID, "", from, today)
	require.NoError(t, err)
	require.Len(t, out, 5, "every day in range appears")

	var nonZero int
	for i, p := range out {
		assert.Equal(t, from.AddDate(0, 0, i).Format("2006-01-02"), p.Date)
		if p.Requests > 0 {
			nonZero++
			assert.Equal(t, 0.5, p.CostUSD)
		}
	}
	assert.Equal(t, 1, nonZero)
}

func TestHeatmap(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()
	at := time.Date(now.Year(), now.Month(), now.Day(), 14, 30, 0, 0, time.UTC)

	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, at)
	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, at.Add(5*time.Minute))

	out, err := svc.Heatmap(userID, now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, int(at.Weekday()), out[0].Weekday)
	assert.Equal(t, 14, out[0].Hour)
	assert.Equal(t, int64(2), out[0].Requests)
	assert.Equal(t, 1.0, out[0].CostUSD)
}

func TestComparison(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	seedLog(t, db, userID, "openai", "gpt-4o", 100000, 50000, 0.75, now)

	out, err := svc.Comparison(userID, now.AddDate(0, 0, -1), now)
	require.NoError(t, err)
	require.Len(t, out.Models, 1)

	m := out.Models[0]
	assert.Equal(t, "gpt-4o", m.Model)
	assert.Equal(t, 0.75, m.ActualCost)
	assert.Len(t, m.Alternatives, 5, "keeps the five cheapest")
	for i := 1; i < len(m.Alternatives); i++ {
		assert.LessOrEqual(t, m.Alternatives[i-1].EstimatedCost, m.Alternatives[i].EstimatedCost)
	}
	assert.Equal(t, 0.75, out.TotalActualCost)
	assert.GreaterOrEqual(t, out.PotentialSavings, 0.0)
}

func TestCacheSavings(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	hit := seedLog(t, db, userID, "openai", "gpt-4o", 1000, 500, 0, now)
	require.NoError(t, db.Model(hit).Update("cache_hit", true).Error)
	seedLog(t, db, userID, "openai", "gpt-4o", 1000, 500, 0.0075, now)

	out, err := svc.CacheSavings(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.CachedRequests)
	assert.Equal(t, 0.0075, out.SavedCostUSD)
	assert.Equal(t, int64(1500), out.SavedTokens)
}

func TestLogsPaginationAndSort(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		seedLog(t, db, userID, "openai", "gpt-4o", 100*(i+1), 50, float64(i)*0.1, now.Add(-time.Duration(i)*time.Hour))
	}

	rows, total, err := svc.Logs(userID, LogsQuery{SortBy: "cost_usd", SortDesc: true, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, rows, 2)
	assert.GreaterOrEqual(t, rows[0].CostUSD, rows[1].CostUSD)

	// Unknown sort column falls back to newest first.
	rows, _, err = svc.Logs(userID, LogsQuery{SortBy: "cost_usd; DROP TABLE usage_logs", Page: 1, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.True(t, rows[0].CreatedAt.After(rows[4].CreatedAt))
}

func TestLogsFilterByProviderAndTag(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	tagged := seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, now)
	seedLog(t, db, userID, "anthropic", "claude-3-5-haiku-20241022", 100, 50, 0.1, now)

	tag := &models.Tag{UserID: userID, Name: "prod", Color: models.DefaultTagColor}
	require.NoError(t, db.Create(tag).Error)
	require.NoError(t, db.Model(tagged).Association("Tags").Append(tag))

	rows, total, err := svc.Logs(userID, LogsQuery{Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)

	rows, total, err = svc.Logs(userID, LogsQuery{TagID: &tag.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, tagged.ID, rows[0].ID)

	rows, total, err = svc.Logs(userID, LogsQuery{Tag: "prod"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, tagged.ID, rows[0].ID)

	_, total, err = svc.Logs(userID, LogsQuery{Tag: "staging"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestParseDateRange(t *testing.T) {
	from, to, err := ParseDateRange("2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", from.Format("2006-01-02"))
	assert.Equal(t, "2026-01-31", to.Format("2006-01-02"))

	// Defaults to the trailing 30 days.
	from, to, err = ParseDateRange("", "")
	require.NoError(t, err)
	assert.Equal(t, 29, int(to.Sub(from).Hours()/24))

	_, _, err = ParseDateRange("not-a-date", "")
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, _, err = ParseDateRange("2026-02-01", "2026-01-01")
	assert.ErrorIs(t, err, ErrInvalidDateRange, "inverted range is rejected")
}

func TestExport(t *testing.T) {
	svc, db, userID := newService(t)
	now := time.Now().UTC()

	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, now.Add(-time.Hour))
	seedLog(t, db, userID, "openai", "gpt-4o", 100, 50, 0.5, now.AddDate(0, 0, -40))

	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -7)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	rows, err := svc.Export(userID, from, to)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "rows outside the window are excluded")
}
