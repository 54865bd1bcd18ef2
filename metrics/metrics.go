// Package metrics exposes Prometheus collectors for training, prediction, caching and HTTP traffic.
package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sales-forecast/forecast"
)

const namespace = "forecast"

// Metrics owns a registry so tests and multiple servers never collide on the global one
type Metrics struct {
	registry *prometheus.Registry

	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	trainingRows     prometheus.Histogram
	modelTestMAE     *prometheus.GaugeVec
	predictions      *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with Go runtime and process metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs by outcome (started, completed, failed).",
		}, []string{"status"}),
		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall time of completed training runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		trainingRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_data_points",
			Help:      "Eligible sales rows per completed training run.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		modelTestMAE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_test_mae",
			Help:      "Test-split MAE of the most recently trained model per horizon.",
		}, []string{"horizon"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Single-product predictions by horizon and outcome.",
		}, []string{"horizon", "outcome"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Top-products cache lookups by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.trainingRuns,
		m.trainingDuration,
		m.trainingRows,
		m.modelTestMAE,
		m.predictions,
		m.cacheRequests,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterGauge exposes a value computed at scrape time, e.g. connected event clients
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveTraining is a forecast.TrainingObserver
func (m *Metrics) ObserveTraining(event forecast.TrainingEvent) {
	switch event.Type {
	case forecast.EventTrainingStarted:
		m.trainingRuns.WithLabelValues("started").Inc()
	case forecast.EventTrainingCompleted:
		m.trainingRuns.WithLabelValues("completed").Inc()
		m.trainingDuration.Observe(event.Duration.Seconds())
		m.trainingRows.Observe(float64(event.DataPoints))
		for h, em := range event.Metrics {
			m.modelTestMAE.WithLabelValues(string(h)).Set(em.TestMAE)
		}
	case forecast.EventTrainingFailed:
		m.trainingRuns.WithLabelValues("failed").Inc()
	}
}

// RecordPrediction counts one prediction response
func (m *Metrics) RecordPrediction(resp forecast.PredictResponse) {
	outcome := "success"
	if !resp.Success {
		outcome = "failure"
	}
	horizon := string(resp.Horizon)
	if horizon == "" {
		horizon = "unknown"
	}
	m.predictions.WithLabelValues(horizon, outcome).Inc()
}

// InstrumentPredictionCache counts hits and misses of a top-products cache
func (m *Metrics) InstrumentPredictionCache(next forecast.PredictionCache) forecast.PredictionCache {
	return &instrumentedCache{next: next, requests: m.cacheRequests}
}

type instrumentedCache struct {
	next     forecast.PredictionCache
	requests *prometheus.CounterVec
}

func (c *instrumentedCache) Get(ctx context.Context, key forecast.TopProductsKey) (*forecast.TopProductsResult, bool) {
	result, ok := c.next.Get(ctx, key)
	if ok {
		c.requests.WithLabelValues("hit").Inc()
	} else {
		c.requests.WithLabelValues("miss").Inc()
	}
	return result, ok
}

func (c *instrumentedCache) Set(ctx context.Context, key forecast.TopProductsKey, result *forecast.TopProductsResult) error {
	return c.next.Set(ctx, key, result)
}

func (c *instrumentedCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	return c.next.InvalidateTenant(ctx, tenantID)
}

// statusRecorder captures the response code for the request counter
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection to the websocket upgrader
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware counts requests per ServeMux pattern; wrap it around the mux so the pattern is set
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
