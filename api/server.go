package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"sales-forecast/auth"
	"sales-forecast/database"
	"sales-forecast/forecast"
	"sales-forecast/metrics"
	"sales-forecast/realtime"
)

// Forecaster is the forecasting service as the handlers use it
type Forecaster interface {
	Train(ctx context.Context, tenantID string, force bool) forecast.TrainResponse
	Predict(ctx context.Context, req forecast.PredictRequest) forecast.PredictResponse
	ModelStatus(ctx context.Context, tenantID string) forecast.ModelStatusResponse
	FeatureImportance(ctx context.Context, tenantID, horizon string) forecast.FeatureImportanceResponse
	TopProducts(ctx context.Context, tenantID string, limit int, refresh bool, category string) forecast.TopProductsResponse
	Diagnostics(ctx context.Context, tenantID string) forecast.DiagnosticsReport
	DeleteModels(ctx context.Context, tenantID string) error
}

// WebhookStore manages the tenant's training webhooks
type WebhookStore interface {
	ListWebhooks(ctx context.Context, tenantID string) ([]database.TrainingWebhook, error)
	CreateWebhook(ctx context.Context, hook *database.TrainingWebhook) error
	DeleteWebhook(ctx context.Context, tenantID string, id int) error
	ListDeliveryLogs(ctx context.Context, webhookID, limit int) ([]database.TrainingWebhookLog, error)
}

// WebhookCache is refreshed whenever webhooks change
type WebhookCache interface {
	RefreshCache()
}

// Pinger reports whether a backing store answers
type Pinger interface {
	Ping() error
}

// Server handles HTTP API requests
type Server struct {
	forecaster Forecaster
	webhooks   WebhookStore
	webhookMq  WebhookCache
	broker     *realtime.Broker
	resolver   *auth.Resolver
	metrics    *metrics.Metrics
	db         Pinger
	httpServer *http.Server
}

// NewServer creates a new API server instance; webhooks, webhookMq and broker may be nil
func NewServer(forecaster Forecaster, webhooks WebhookStore, webhookMq WebhookCache, broker *realtime.Broker, resolver *auth.Resolver) *Server {
	return &Server{
		forecaster: forecaster,
		webhooks:   webhooks,
		webhookMq:  webhookMq,
		broker:     broker,
		resolver:   resolver,
	}
}

// SetMetrics enables request instrumentation and the /metrics endpoint
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetHealthCheck makes /health report the database connection
func (s *Server) SetHealthCheck(db Pinger) {
	s.db = db
}

// Handler builds the routed, middleware-wrapped handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.Handler {
		return s.resolver.Middleware(h)
	}

	// Forecasting routes
	mux.Handle("POST /api/predictions/train", authed(s.handleTrain))
	mux.Handle("POST /api/predictions/predict", authed(s.handlePredict))
	mux.Handle("GET /api/predictions/model-status", authed(s.handleModelStatus))
	mux.Handle("GET /api/predictions/feature-importance", authed(s.handleFeatureImportance))
	mux.Handle("GET /api/predictions/top-products", authed(s.handleTopProducts))
	mux.Handle("GET /api/predictions/diagnostics", authed(s.handleDiagnostics))
	mux.Handle("DELETE /api/predictions/models", s.resolver.Middleware(auth.RequireAdmin(http.HandlerFunc(s.handleDeleteModels))))

	// Training events
	if s.broker != nil {
		mux.Handle("GET /api/events", authed(s.broker.ServeHTTP))
		mux.Handle("GET /api/events/ws", authed(s.broker.ServeWS))
	}

	// Webhook Management Routes
	if s.webhooks != nil {
		mux.Handle("GET /api/webhooks", authed(s.handleGetWebhooks))
		mux.Handle("POST /api/webhooks", s.resolver.Middleware(auth.RequireAdmin(http.HandlerFunc(s.handleCreateWebhook))))
		mux.Handle("DELETE /api/webhooks/{id}", s.resolver.Middleware(auth.RequireAdmin(http.HandlerFunc(s.handleDeleteWebhook))))
		mux.Handle("GET /api/webhooks/{id}/logs", authed(s.handleGetWebhookLogs))
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Add middleware
	var handler http.Handler = mux
	if s.metrics != nil {
		handler = s.metrics.Middleware(handler)
	}
	return s.corsMiddleware(s.loggingMiddleware(handler))
}

// Start starts the HTTP server on the specified port and blocks until it stops
func (s *Server) Start(port int) error {
	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:              serverAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("🚀 API Server starting on %s", serverAddr)
	if s.resolver.DevMode() {
		log.Printf("⚠️  JWT_SECRET not set: tenants are taken from the %s header", auth.DevTenantHeader)
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.DevTenantHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Handlers are split by concern:
// - handlers_predictions.go: training, prediction, status, diagnostics
// - handlers_config.go: webhooks, health check
