package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmlab/llmlab/internal/auth"
	"github.com/llmlab/llmlab/internal/crypto"
	"github.com/llmlab/llmlab/internal/middleware"
	"github.com/llmlab/llmlab/internal/models"
	"github.com/llmlab/llmlab/internal/services/alerts"
	"github.com/llmlab/llmlab/internal/services/anomaly"
	"github.com/llmlab/llmlab/internal/services/forecast"
	"github.com/llmlab/llmlab/internal/services/keys"
	"github.com/llmlab/llmlab/internal/services/tags"
	"github.com/llmlab/llmlab/internal/services/usage"
	"github.com/llmlab/llmlab/internal/testutil"
)

type fakeExchanger struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*auth.GitHubUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func asUser(user *models.User, r *http.Request) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), user.ID))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGitHubLoginCreatesUserAndToken(t *testing.T) {
	db := testutil.NewTestDB(t)
	jwtService, err := auth.NewJWTService("secret", "llmlab", time.Hour)
	require.NoError(t, err)

	h := NewAuthHandler(db, jwtService, &fakeExchanger{user: &auth.GitHubUser{
		ID:    42,
		Login: "octocat",
		Email: "octo@example.com",
	}})

	req := httptest.NewRequest(http.MethodPost, "/auth/github", bytes.NewBufferString(`{"code":"abc"}`))
	rec := httptest.NewRecorder()
	h.GitHubLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	data := body["data"].(map[string]interface{})
	assert.NotEmpty(t, data["token"])

	var user models.User
	require.NoError(t, db.Where("github_id = ?", 42).First(&user).Error)
	assert.Equal(t, "octocat", user.Username)

	// Token resolves back to the created user.
	userID, err := jwtService.ValidateToken(data["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	// Second login with the same GitHub id reuses the user.
	rec = httptest.NewRecorder()
	h.GitHubLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/github", bytes.NewBufferString(`{"code":"abc"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGitHubLoginFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	jwtService, err := auth.NewJWTService("secret", "llmlab", time.Hour)
	require.NoError(t, err)

	h := NewAuthHandler(db, jwtService, &fakeExchanger{err: fmt.Errorf("bad code")})

	rec := httptest.NewRecorder()
	h.GitHubLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/github", bytesBody(`{"code":"bad"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.GitHubLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/github", bytesBody(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func bytesBody(s string) *bytes.Buffer {
	return bytes.NewBufferString(s)
}

func TestKeysCreateAndList(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8001)
	enc, err := crypto.NewEncryptor("k")
	require.NoError(t, err)
	h := NewKeysHandler(keys.NewService(db, enc))

	req := asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/keys", bytesBody(`{"provider":"openai","api_key":"sk-secret-123"}`)))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Contains(t, data["proxy_key"], "llmlab_pk_")
	assert.Equal(t, "sk-sec...****", data["masked_key"])
	assert.NotContains(t, rec.Body.String(), "sk-secret-123", "plaintext never echoes")

	rec = httptest.NewRecorder()
	h.List(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["data"].([]interface{})
	assert.Len(t, list, 1)
	assert.NotContains(t, rec.Body.String(), "encrypted")
}

func TestKeysCreateInvalidProvider(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8002)
	enc, err := crypto.NewEncryptor("k")
	require.NoError(t, err)
	h := NewKeysHandler(keys.NewService(db, enc))

	rec := httptest.NewRecorder()
	h.Create(rec, asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/keys", bytesBody(`{"provider":"azure","api_key":"x"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBudgetUpsert(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8003)
	watcher := alerts.NewWatcher(db, time.Second)
	h := NewBudgetsHandler(db, watcher)

	require.NoError(t, db.Create(&models.UsageLog{
		UserID: user.ID, Provider: "openai", Model: "gpt-4o", CostUSD: 5,
	}).Error)

	rec := httptest.NewRecorder()
	h.Upsert(rec, asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/budgets", bytesBody(`{"amount_usd":10}`))))
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, 5.0, data["current_spend"])
	assert.Equal(t, 50.0, data["percentage_used"])
	assert.Equal(t, "ok", data["status"])
	budget := data["budget"].(map[string]interface{})
	assert.Equal(t, 80.0, budget["alert_threshold_pct"], "default threshold applied")

	// Second upsert rewrites rather than duplicates.
	rec = httptest.NewRecorder()
	h.Upsert(rec, asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/budgets", bytesBody(`{"amount_usd":6,"alert_threshold_pct":70}`))))
	require.Equal(t, http.StatusOK, rec.Code)
	data = decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, models.AlertBudgetWarning, data["status"])

	var count int64
	require.NoError(t, db.Model(&models.Budget{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBudgetUpsertRejectsNonPositive(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8004)
	h := NewBudgetsHandler(db, alerts.NewWatcher(db, time.Second))

	rec := httptest.NewRecorder()
	h.Upsert(rec, asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/budgets", bytesBody(`{"amount_usd":0}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookValidation(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8005)
	h := NewWebhooksHandler(db)

	rec := httptest.NewRecorder()
	h.Create(rec, asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytesBody(`{"url":"not-a-url","event_type":"budget_warning"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Create(rec, asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytesBody(`{"url":"https://example.com/hook","event_type":"nonsense"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Create(rec, asUser(user, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytesBody(`{"url":"https://example.com/hook","event_type":"anomaly"}`))))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestStatsRejectsBadDateRange(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8006)
	h := NewStatsHandler(usage.NewService(db), forecast.NewService(db), anomaly.NewDetector(db, time.Second))

	rec := httptest.NewRecorder()
	h.Heatmap(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/stats/heatmap?from=garbage", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ByDay(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/stats/by-day?from=2026-02-01&to=2026-01-01", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsSummaryIncludesAnomalyFlag(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8007)
	h := NewStatsHandler(usage.NewService(db), forecast.NewService(db), anomaly.NewDetector(db, time.Second))

	rec := httptest.NewRecorder()
	h.Summary(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/stats/summary", nil)))
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, data["has_active_anomaly"])
	assert.Contains(t, data, "summary")
}

func TestStatsSummaryPeriodAndTag(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8011)
	tagsService := tags.NewService(db)
	h := NewStatsHandler(usage.NewService(db), forecast.NewService(db), anomaly.NewDetector(db, time.Second))

	log := &models.UsageLog{
		UserID: user.ID, Provider: "openai", Model: "gpt-4o",
		InputTokens: 100, OutputTokens: 50, CostUSD: 0.5,
	}
	require.NoError(t, db.Create(log).Error)
	tagsService.AutoAttach(user.ID, log, []string{"prod"})

	rec := httptest.NewRecorder()
	h.Summary(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/stats/summary?period=all&tag=prod", nil)))
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "all", data["period"])
	totals := data["totals"].(map[string]interface{})
	assert.Equal(t, 1.0, totals["requests"])
	assert.Equal(t, 0.5, totals["cost_usd"])

	rec = httptest.NewRecorder()
	h.Summary(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/stats/summary?period=all&tag=staging", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	totals = decode(t, rec)["data"].(map[string]interface{})["totals"].(map[string]interface{})
	assert.Equal(t, 0.0, totals["requests"])

	rec = httptest.NewRecorder()
	h.Summary(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/stats/summary?period=fortnight", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8008)
	h := NewExportHandler(usage.NewService(db))

	require.NoError(t, db.Create(&models.UsageLog{
		UserID: user.ID, Provider: "openai", Model: "gpt-4o",
		InputTokens: 100, OutputTokens: 50, CostUSD: 0.0075,
	}).Error)

	rec := httptest.NewRecorder()
	h.CSV(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/export/csv", nil)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "id,created_at,provider,model")
	assert.Contains(t, rec.Body.String(), "gpt-4o")
	assert.Contains(t, rec.Body.String(), "0.007500")
}

func TestExportJSON(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8009)
	h := NewExportHandler(usage.NewService(db))

	rec := httptest.NewRecorder()
	h.JSON(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/api/v1/export/json", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestLogsTagRoutes(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, db, 8010)
	tagsService := tags.NewService(db)
	h := NewLogsHandler(usage.NewService(db), tagsService)

	log := &models.UsageLog{UserID: user.ID, Provider: "openai", Model: "gpt-4o"}
	require.NoError(t, db.Create(log).Error)
	tag, err := tagsService.Create(user.ID, "prod", "")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Post("/logs/{id}/tags", h.AttachTag)
	r.Delete("/logs/{id}/tags/{tagID}", h.DetachTag)
	r.Get("/logs/{id}", h.Get)

	attach := httptest.NewRequest(http.MethodPost, "/logs/"+log.ID.String()+"/tags",
		bytesBody(fmt.Sprintf(`{"tag_id":%q}`, tag.ID)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, asUser(user, attach))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, asUser(user, httptest.NewRequest(http.MethodGet, "/logs/"+log.ID.String(), nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prod")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, asUser(user, httptest.NewRequest(http.MethodDelete, "/logs/"+log.ID.String()+"/tags/"+tag.ID.String(), nil)))
	require.Equal(t, http.StatusOK, rec.Code)
}
