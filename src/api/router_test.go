package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"myndis-engine/src/config"
	"myndis-engine/src/engine"
	"myndis-engine/src/events"
	"myndis-engine/src/logger"
	"myndis-engine/src/metrics"
	"myndis-engine/src/models"
	"myndis-engine/src/store"
	"myndis-engine/src/thresholds"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, st store.PlanStore, cfg config.Config) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()
	th, err := thresholds.NewStore(ctx, thresholds.NewMemoryRepository(), log, nil)
	require.NoError(t, err)
	agg := metrics.NewAggregator(metrics.NewMemoryJournal(), 100, 100)
	eng := engine.New(st, th, agg, events.NopPublisher{}, config.DefaultEngineConfig(), log,
		engine.WithClock(func() time.Time { return testNow }))

	cfg.JWTSecret = testSecret
	srv := httptest.NewServer(NewRouter(eng, log, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.SavePlan(context.Background(), &models.Plan{
		ID:        "plan-1",
		AccountID: "acct-1",
		Status:    models.PlanStatusActive,
		Start:     testNow.AddDate(0, -1, 0),
		End:       testNow.AddDate(0, 11, 0),
		Categories: []models.BudgetCategory{
			{Name: "therapy", Amount: 1000, Spent: 700},
			{Name: "transport", Amount: 500, Spent: 0},
		},
		UpdatedAt: testNow,
	}))
	return st
}

func token(t *testing.T, accountID string, admin bool) string {
	t.Helper()
	claims := jwt.MapClaims{"admin": admin, "exp": time.Now().Add(time.Hour).Unix()}
	if accountID != "" {
		claims["account_id"] = accountID
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, srv *httptest.Server, method, path, tok string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), config.Config{})
	resp := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, seededStore(t), config.Config{})
	body := map[string]any{"category": "therapy", "amount": 10}

	tests := []struct {
		name   string
		path   string
		tok    string
		status int
	}{
		{"missing token", "/api/accounts/acct-1/validate", "", http.StatusUnauthorized},
		{"garbage token", "/api/accounts/acct-1/validate", "not-a-jwt", http.StatusUnauthorized},
		{"own account", "/api/accounts/acct-1/validate", token(t, "acct-1", false), http.StatusOK},
		{"other account", "/api/accounts/acct-2/validate", token(t, "acct-1", false), http.StatusForbidden},
		{"admin on any account", "/api/accounts/acct-1/validate", token(t, "", true), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, tt.path, tt.tok, body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(t, seededStore(t), config.Config{})
	tok := token(t, "acct-1", false)

	resp := do(t, srv, http.MethodPost, "/api/accounts/acct-1/validate", tok, map[string]any{"category": "therapy", "amount": 250})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[models.ValidationResult](t, resp)
	assert.True(t, res.Valid)
	assert.NotEmpty(t, res.TransactionID)
	assert.Len(t, res.Warnings, 2)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/validate", tok, map[string]any{"category": "therapy", "amount": 400})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decode[models.ValidationResult](t, resp)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"would exceed allocated budget for category therapy by 100"}, res.Reasons)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/validate", tok, map[string]any{"category": "therapy", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSpendThenAlerts(t *testing.T) {
	srv := newTestServer(t, seededStore(t), config.Config{})
	tok := token(t, "acct-1", false)

	resp := do(t, srv, http.MethodGet, "/api/accounts/acct-1/alerts", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.ThresholdAlert](t, resp))

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/spend", tok, map[string]any{"category": "therapy", "amount": 200})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[models.SpendResult](t, resp)
	assert.True(t, out.Applied)
	assert.Equal(t, int64(900), out.Spent)
	assert.Equal(t, []string{"budget_warning_75", "budget_warning_90"}, out.CrossedThresholds)

	resp = do(t, srv, http.MethodGet, "/api/accounts/acct-1/alerts", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	alerts := decode[[]models.ThresholdAlert](t, resp)
	require.Len(t, alerts, 2)
	assert.Equal(t, "budget_warning_75", alerts[0].Name)
	assert.Equal(t, int64(900), alerts[1].Utilized)
}

func TestFeedbackAndMetrics(t *testing.T) {
	srv := newTestServer(t, seededStore(t), config.Config{})
	tok := token(t, "acct-1", false)

	resp := do(t, srv, http.MethodPost, "/api/accounts/acct-1/validate", tok, map[string]any{"category": "therapy", "amount": 50})
	res := decode[models.ValidationResult](t, resp)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/feedback", tok, map[string]any{"transaction_id": "missing", "approved": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/feedback", tok, map[string]any{"transaction_id": res.TransactionID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/feedback", tok,
		map[string]any{"transaction_id": res.TransactionID, "approved": true, "reason": "looks right"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/metrics", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode[models.Metrics](t, resp)
	assert.Equal(t, 1.0, m.ValidationAccuracy)
	assert.Equal(t, 1, m.TotalFeedback)
	assert.Len(t, m.ConfidenceScores, 1)
}

func TestThresholdEndpoints(t *testing.T) {
	srv := newTestServer(t, seededStore(t), config.Config{})
	user := token(t, "acct-1", false)
	admin := token(t, "", true)
	update := []models.ThresholdPair{{Name: "budget_warning_60", Value: 0.6}, {Name: "budget_critical", Value: 1}}

	resp := do(t, srv, http.MethodPut, "/api/admin/thresholds", user, update)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/api/admin/thresholds", admin, []models.ThresholdPair{{Name: "budget_critical", Value: 1.5}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/api/admin/thresholds", admin, []models.ThresholdPair{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/api/admin/thresholds", admin, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), decode[models.ThresholdVersion](t, resp).Version)

	resp = do(t, srv, http.MethodGet, "/api/thresholds", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, update, decode[models.ThresholdVersion](t, resp).Thresholds)

	resp = do(t, srv, http.MethodGet, "/api/thresholds?version=1", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, thresholds.Defaults(), decode[models.ThresholdVersion](t, resp).Thresholds)

	resp = do(t, srv, http.MethodGet, "/api/thresholds?version=9", user, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/thresholds?version=abc", user, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOverviewAndHealth(t *testing.T) {
	srv := newTestServer(t, seededStore(t), config.Config{})
	tok := token(t, "acct-1", false)

	resp := do(t, srv, http.MethodGet, "/api/accounts/acct-1/overview", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ov := decode[models.AccountOverview](t, resp)
	assert.Equal(t, "acct-1", ov.AccountID)
	assert.NotNil(t, ov.Alerts)
	assert.NotNil(t, ov.Anomalies)
	require.NotNil(t, ov.Health)
	assert.Equal(t, models.HealthHealthy, ov.Health.Status)

	resp = do(t, srv, http.MethodGet, "/api/accounts/acct-1/budget-health", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decode[models.BudgetHealth](t, resp)
	assert.InDelta(t, 700.0/1500.0, h.Utilization, 1e-9)

	admin := token(t, "", true)
	resp = do(t, srv, http.MethodGet, "/api/accounts/acct-9/budget-health", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/accounts/acct-9/overview", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[models.AccountOverview](t, resp).Health)
}

func TestAdminPlanAndHistory(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), config.Config{})
	admin := token(t, "", true)
	user := token(t, "acct-5", false)

	plan := models.Plan{
		ID:         "plan-5",
		AccountID:  "acct-5",
		Status:     models.PlanStatusActive,
		Start:      testNow,
		End:        testNow.AddDate(1, 0, 0),
		Categories: []models.BudgetCategory{{Name: "therapy", Amount: 1000}},
	}
	resp := do(t, srv, http.MethodPut, "/api/admin/plans", user, plan)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/api/admin/plans", admin, plan)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	bad := plan
	bad.Categories = []models.BudgetCategory{{Name: "therapy", Amount: -1}}
	resp = do(t, srv, http.MethodPut, "/api/admin/plans", admin, bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/accounts/acct-5/plan", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[models.Plan](t, resp)
	assert.Equal(t, "plan-5", got.ID)
	assert.Equal(t, testNow, got.UpdatedAt)

	history := []models.Transaction{
		{ID: "h1", Category: "therapy", Amount: 100, OccurredAt: testNow.AddDate(0, 0, -3)},
		{ID: "h2", Category: "therapy", Amount: 100, OccurredAt: testNow.AddDate(0, 0, -1)},
	}
	resp = do(t, srv, http.MethodPost, "/api/admin/accounts/acct-5/history", admin, history)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-5/validate", user, map[string]any{"category": "therapy", "amount": 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[models.ValidationResult](t, resp)
	require.NotNil(t, res.PredictedDepletionDate)
	// 900 remaining at 100 every two days
	assert.True(t, res.PredictedDepletionDate.Equal(testNow.Add(18*24*time.Hour)))
}

func TestReadOnlyMode(t *testing.T) {
	srv := newTestServer(t, seededStore(t), config.Config{ReadOnly: true})
	tok := token(t, "acct-1", false)
	body := map[string]any{"category": "therapy", "amount": 10}

	resp := do(t, srv, http.MethodPost, "/api/accounts/acct-1/spend", tok, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/validate", tok, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/accounts/acct-1/spend", token(t, "", true), body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), config.Config{AllowedOrigins: []string{"https://app.example.org"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.org")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://app.example.org", resp.Header.Get("Access-Control-Allow-Origin"))
}

type unavailableStore struct {
	store.PlanStore
}

func (unavailableStore) ActivePlan(ctx context.Context, accountID string) (*models.Plan, error) {
	return nil, &store.UnavailableError{Op: "active plan", Err: errors.New("connection refused")}
}

func TestUnavailableStoreIsRetryable(t *testing.T) {
	srv := newTestServer(t, unavailableStore{}, config.Config{})
	tok := token(t, "acct-1", false)

	resp := do(t, srv, http.MethodPost, "/api/accounts/acct-1/validate", tok, map[string]any{"category": "therapy", "amount": 10})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestClearCache(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(), config.Config{})
	admin := token(t, "", true)

	resp := do(t, srv, http.MethodPost, "/api/admin/cache/clear/history", admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/admin/cache/clear/users", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
