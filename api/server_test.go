package api

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sales-forecast/auth"
	"sales-forecast/database"
	"sales-forecast/forecast"
	"sales-forecast/metrics"
)

type fakeForecaster struct {
	trainTenant string
	trainForce  bool
	predictReq  forecast.PredictRequest
	topArgs     []interface{}
	deleted     []string
	deleteErr   error
}

func (f *fakeForecaster) Train(ctx context.Context, tenantID string, force bool) forecast.TrainResponse {
	f.trainTenant, f.trainForce = tenantID, force
	n := 42
	return forecast.TrainResponse{Success: true, Models: forecast.AllHorizons, DataPoints: &n}
}

func (f *fakeForecaster) Predict(ctx context.Context, req forecast.PredictRequest) forecast.PredictResponse {
	f.predictReq = req
	if req.ProductID == "missing" {
		return forecast.PredictResponse{Success: false, ProductID: req.ProductID, Horizon: req.Horizon, Error: "Model for daily predictions not trained yet. Please train models first."}
	}
	return forecast.PredictResponse{Success: true, ProductID: req.ProductID, Prediction: 10, LowerBound: 8, UpperBound: 12, Horizon: req.Horizon}
}

func (f *fakeForecaster) ModelStatus(ctx context.Context, tenantID string) forecast.ModelStatusResponse {
	return forecast.ModelStatusResponse{TenantID: tenantID, Models: map[forecast.Horizon]forecast.ArtifactInfo{}}
}

func (f *fakeForecaster) FeatureImportance(ctx context.Context, tenantID, horizon string) forecast.FeatureImportanceResponse {
	if horizon == "monthly" {
		return forecast.FeatureImportanceResponse{Success: false, Error: "not found"}
	}
	return forecast.FeatureImportanceResponse{Success: true, Horizon: forecast.HorizonDaily, FeatureImportance: map[string]float64{"month": 1}}
}

func (f *fakeForecaster) TopProducts(ctx context.Context, tenantID string, limit int, refresh bool, category string) forecast.TopProductsResponse {
	f.topArgs = []interface{}{tenantID, limit, refresh, category}
	return forecast.TopProductsResponse{Success: true, Predictions: &forecast.TopProductsPredictions{}}
}

func (f *fakeForecaster) Diagnostics(ctx context.Context, tenantID string) forecast.DiagnosticsReport {
	return forecast.DiagnosticsReport{Status: "warning", TenantID: tenantID, PredictionTier: forecast.TierNone}
}

func (f *fakeForecaster) DeleteModels(ctx context.Context, tenantID string) error {
	f.deleted = append(f.deleted, tenantID)
	return f.deleteErr
}

type fakeWebhooks struct {
	hooks     []database.TrainingWebhook
	createErr error
	logs      []database.TrainingWebhookLog
	logsLimit int
}

func (f *fakeWebhooks) ListWebhooks(ctx context.Context, tenantID string) ([]database.TrainingWebhook, error) {
	var out []database.TrainingWebhook
	for _, h := range f.hooks {
		if h.BusinessID == tenantID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeWebhooks) CreateWebhook(ctx context.Context, hook *database.TrainingWebhook) error {
	if f.createErr != nil {
		return f.createErr
	}
	hook.ID = len(f.hooks) + 1
	f.hooks = append(f.hooks, *hook)
	return nil
}

func (f *fakeWebhooks) DeleteWebhook(ctx context.Context, tenantID string, id int) error {
	for i, h := range f.hooks {
		if h.ID == id && h.BusinessID == tenantID {
			f.hooks = append(f.hooks[:i], f.hooks[i+1:]...)
			return nil
		}
	}
	return database.NewNotFoundErrorWithID("webhook", id)
}

func (f *fakeWebhooks) ListDeliveryLogs(ctx context.Context, webhookID, limit int) ([]database.TrainingWebhookLog, error) {
	f.logsLimit = limit
	return f.logs, nil
}

type refreshCounter struct{ n int }

func (r *refreshCounter) RefreshCache() { r.n++ }

type testServer struct {
	forecaster *fakeForecaster
	webhooks   *fakeWebhooks
	refresh    *refreshCounter
	handler    http.Handler
}

func newTestServer(secret string) *testServer {
	ts := &testServer{
		forecaster: &fakeForecaster{},
		webhooks:   &fakeWebhooks{},
		refresh:    &refreshCounter{},
	}
	srv := NewServer(ts.forecaster, ts.webhooks, ts.refresh, nil, auth.NewResolver(secret))
	srv.SetMetrics(metrics.New())
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(method, target, tenant, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if tenant != "" {
		req.Header.Set(auth.DevTenantHeader, tenant)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestPredictionRoutes(t *testing.T) {
	ts := newTestServer("")

	tests := []struct {
		name     string
		method   string
		target   string
		tenant   string
		body     string
		wantCode int
	}{
		{"train", http.MethodPost, "/api/predictions/train", "t1", `{"force_retrain":true}`, http.StatusOK},
		{"train empty body", http.MethodPost, "/api/predictions/train", "t1", "", http.StatusOK},
		{"train malformed", http.MethodPost, "/api/predictions/train", "t1", `{"force_retrain":`, http.StatusBadRequest},
		{"train without tenant", http.MethodPost, "/api/predictions/train", "", `{}`, http.StatusUnauthorized},
		{"predict", http.MethodPost, "/api/predictions/predict", "t1", `{"product_id":"p1","horizon":"Weekly"}`, http.StatusOK},
		{"predict missing product", http.MethodPost, "/api/predictions/predict", "t1", `{"horizon":"daily"}`, http.StatusBadRequest},
		{"predict bad horizon", http.MethodPost, "/api/predictions/predict", "t1", `{"product_id":"p1","horizon":"yearly"}`, http.StatusBadRequest},
		{"predict domain failure", http.MethodPost, "/api/predictions/predict", "t1", `{"product_id":"missing"}`, http.StatusOK},
		{"model status", http.MethodGet, "/api/predictions/model-status", "t1", "", http.StatusOK},
		{"feature importance", http.MethodGet, "/api/predictions/feature-importance", "t1", "", http.StatusOK},
		{"feature importance bad horizon", http.MethodGet, "/api/predictions/feature-importance?horizon=hourly", "t1", "", http.StatusBadRequest},
		{"top products", http.MethodGet, "/api/predictions/top-products?limit=5&refresh=true&category=Bakery", "t1", "", http.StatusOK},
		{"diagnostics", http.MethodGet, "/api/predictions/diagnostics", "t1", "", http.StatusOK},
		{"delete models", http.MethodDelete, "/api/predictions/models", "t1", "", http.StatusOK},
		{"wrong method", http.MethodGet, "/api/predictions/train", "t1", "", http.StatusMethodNotAllowed},
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.target, tt.tenant, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.target, rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestTrainPassesTenantAndFlag(t *testing.T) {
	ts := newTestServer("")
	rec := ts.do(http.MethodPost, "/api/predictions/train", "t9", `{"force_retrain":true}`)

	var resp forecast.TrainResponse
	decode(t, rec, &resp)
	if !resp.Success || resp.DataPoints == nil || *resp.DataPoints != 42 {
		t.Errorf("response = %+v", resp)
	}
	if ts.forecaster.trainTenant != "t9" || !ts.forecaster.trainForce {
		t.Errorf("Train called with %q, %v", ts.forecaster.trainTenant, ts.forecaster.trainForce)
	}
}

func TestPredictRequestMapping(t *testing.T) {
	ts := newTestServer("")
	ts.do(http.MethodPost, "/api/predictions/predict", "t1", `{"product_id":"p1","category":"Bakery","include_history":true}`)

	got := ts.forecaster.predictReq
	want := forecast.PredictRequest{TenantID: "t1", ProductID: "p1", Category: "Bakery", IncludeHistory: true, Horizon: forecast.HorizonDaily}
	if got != want {
		t.Errorf("PredictRequest = %+v, want %+v", got, want)
	}

	rec := ts.do(http.MethodPost, "/api/predictions/predict", "t1", `{"product_id":"missing"}`)
	var resp forecast.PredictResponse
	decode(t, rec, &resp)
	if resp.Success || !strings.Contains(resp.Error, "not trained") {
		t.Errorf("domain failure response = %+v", resp)
	}
}

func TestFeatureImportanceMessage(t *testing.T) {
	ts := newTestServer("")
	rec := ts.do(http.MethodGet, "/api/predictions/feature-importance?horizon=monthly", "t1", "")
	var resp forecast.FeatureImportanceResponse
	decode(t, rec, &resp)
	if resp.Success || resp.Error != "No feature importance data found for monthly model. Please train models first." {
		t.Errorf("response = %+v", resp)
	}
}

func TestTopProductsQuery(t *testing.T) {
	tests := []struct {
		target string
		want   []interface{}
	}{
		{"/api/predictions/top-products", []interface{}{"t1", forecast.DefaultTopProductsLimit, false, ""}},
		{"/api/predictions/top-products?limit=5&refresh=1&category=%20Bakery%20", []interface{}{"t1", 5, true, "Bakery"}},
		{"/api/predictions/top-products?limit=abc&refresh=maybe", []interface{}{"t1", forecast.DefaultTopProductsLimit, false, ""}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			ts := newTestServer("")
			ts.do(http.MethodGet, tt.target, "t1", "")
			for i := range tt.want {
				if ts.forecaster.topArgs[i] != tt.want[i] {
					t.Errorf("arg %d = %v, want %v", i, ts.forecaster.topArgs[i], tt.want[i])
				}
			}
		})
	}
}

func TestDeleteModelsRequiresAdmin(t *testing.T) {
	ts := newTestServer("secret")
	resolver := auth.NewResolver("secret")
	staff, _ := resolver.IssueToken("u1", "t1", auth.RoleStaff, time.Hour)
	admin, _ := resolver.IssueToken("u2", "t1", auth.RoleAdmin, time.Hour)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"staff", staff, http.StatusForbidden},
		{"admin", admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/predictions/models", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if len(ts.forecaster.deleted) != 1 || ts.forecaster.deleted[0] != "t1" {
		t.Errorf("deleted = %v", ts.forecaster.deleted)
	}
}

func TestDeleteModelsFailure(t *testing.T) {
	ts := newTestServer("")
	ts.forecaster.deleteErr = errors.New("disk full")
	if rec := ts.do(http.MethodDelete, "/api/predictions/models", "t1", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestWebhookRoutes(t *testing.T) {
	ts := newTestServer("")

	rec := ts.do(http.MethodPost, "/api/webhooks", "t1", `{"name":"ops","url":"https://example.com/hook","auth_value":"s3cret","retry_count":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d (%s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "s3cret") {
		t.Error("auth value leaked in the response")
	}
	if ts.refresh.n != 1 {
		t.Errorf("cache refreshed %d times, want 1", ts.refresh.n)
	}
	created := ts.webhooks.hooks[0]
	if created.BusinessID != "t1" || created.RetryCount != 1 || created.RetryDelaySeconds != 5 || created.AuthValue != "s3cret" {
		t.Errorf("stored hook = %+v", created)
	}

	var listed []database.TrainingWebhook
	decode(t, ts.do(http.MethodGet, "/api/webhooks", "t1", ""), &listed)
	if len(listed) != 1 {
		t.Errorf("t1 sees %d hooks", len(listed))
	}
	decode(t, ts.do(http.MethodGet, "/api/webhooks", "t2", ""), &listed)
	if len(listed) != 0 {
		t.Errorf("t2 sees %d hooks", len(listed))
	}

	if rec := ts.do(http.MethodGet, "/api/webhooks/1/logs?limit=5", "t2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("foreign logs = %d, want 404", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/webhooks/1/logs?limit=5", "t1", ""); rec.Code != http.StatusOK || ts.webhooks.logsLimit != 5 {
		t.Errorf("logs = %d, limit %d", rec.Code, ts.webhooks.logsLimit)
	}

	if rec := ts.do(http.MethodDelete, "/api/webhooks/abc", "t1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/webhooks/1", "t2", ""); rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete = %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/webhooks/1", "t1", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if ts.refresh.n != 2 {
		t.Errorf("cache refreshed %d times, want 2", ts.refresh.n)
	}
}

func TestCreateWebhookFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", database.NewValidationError("url", "required"), http.StatusBadRequest},
		{"dropped connection", database.WrapDBError("CreateWebhook", driver.ErrBadConn), http.StatusServiceUnavailable},
		{"constraint violation", database.WrapDBError("CreateWebhook", errors.New("duplicate key")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer("")
			ts.webhooks.createErr = tt.err
			rec := ts.do(http.MethodPost, "/api/webhooks", "t1", `{"name":"x"}`)
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type pinger struct{ err error }

func (p pinger) Ping() error { return p.err }

func TestHealthReportsDatabase(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantCode   int
		wantStatus string
	}{
		{"no database configured", nil, http.StatusOK, "ok"},
		{"database up", pinger{}, http.StatusOK, "ok"},
		{"database down", pinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&fakeForecaster{}, nil, nil, nil, auth.NewResolver(""))
			if tt.db != nil {
				srv.SetHealthCheck(tt.db)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]string
			decode(t, rec, &body)
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %q, want %q", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer("")
	rec := ts.do(http.MethodOptions, "/api/predictions/train", "", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}
