package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sales-forecast/cache"
	"sales-forecast/database"
	"sales-forecast/forecast"
)

const (
	activeWebhooksKey   = "active_webhooks"
	activeWebhooksTTL   = 1 * time.Hour
	maxResponseBodySize = 1024
)

// Store is the part of the repository the manager needs
type Store interface {
	GetActiveWebhooks(ctx context.Context) ([]database.TrainingWebhook, error)
	SaveWebhookLog(ctx context.Context, entry *database.TrainingWebhookLog) error
}

// WebhookManager delivers training events to the webhooks tenants registered
type WebhookManager struct {
	repo   Store
	redis  *cache.RedisClient
	client *http.Client
	wg     sync.WaitGroup
	now    func() time.Time
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	EventID         string                                    `json:"event_id"`
	EventType       string                                    `json:"event_type"`
	RunID           string                                    `json:"run_id"`
	TenantID        string                                    `json:"tenant_id"`
	OccurredAt      time.Time                                 `json:"occurred_at"`
	Horizons        []forecast.Horizon                        `json:"horizons,omitempty"`
	DataPoints      int                                       `json:"data_points,omitempty"`
	Metrics         map[forecast.Horizon]forecast.EvalMetrics `json:"metrics,omitempty"`
	DurationSeconds float64                                   `json:"duration_seconds,omitempty"`
	Error           string                                    `json:"error,omitempty"`
	Message         string                                    `json:"message"`
}

// target is the cached form of a webhook. It keeps the auth value, which the
// database model hides from JSON.
type target struct {
	ID                int    `json:"id"`
	BusinessID        string `json:"business_id"`
	URL               string `json:"url"`
	Method            string `json:"method"`
	AuthHeader        string `json:"auth_header"`
	AuthValue         string `json:"auth_value"`
	EventTypes        string `json:"event_types"`
	RetryCount        int    `json:"retry_count"`
	RetryDelaySeconds int    `json:"retry_delay_seconds"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
}

// NewWebhookManager creates a new webhook manager; redis may be nil
func NewWebhookManager(repo Store, redis *cache.RedisClient, timeout time.Duration) *WebhookManager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookManager{
		repo:   repo,
		redis:  redis,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Observe is a forecast.TrainingObserver; delivery happens in the background
func (wm *WebhookManager) Observe(event forecast.TrainingEvent) {
	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		wm.Notify(context.Background(), event)
	}()
}

// Notify sends event to every matching webhook of its tenant and waits for the deliveries
func (wm *WebhookManager) Notify(ctx context.Context, event forecast.TrainingEvent) {
	hooks, err := wm.getActiveWebhooks(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}

	var matched []target
	for _, hook := range hooks {
		if shouldSend(hook, event) {
			matched = append(matched, hook)
		}
	}
	if len(matched) == 0 {
		return
	}

	payloadBytes, err := json.Marshal(wm.CreatePayload(event))
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, hook := range matched {
		wg.Add(1)
		go func(hook target) {
			defer wg.Done()
			wm.deliverWebhook(ctx, hook, event, payloadBytes)
		}(hook)
	}
	wg.Wait()
}

// Wait blocks until background deliveries started by Observe finish
func (wm *WebhookManager) Wait() {
	wm.wg.Wait()
}

func (wm *WebhookManager) getActiveWebhooks(ctx context.Context) ([]target, error) {
	if wm.redis != nil {
		var cached []target
		if err := wm.redis.Get(ctx, activeWebhooksKey, &cached); err == nil {
			return cached, nil
		}
	}

	webhooks, err := wm.repo.GetActiveWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]target, len(webhooks))
	for i, w := range webhooks {
		targets[i] = target{
			ID:                w.ID,
			BusinessID:        w.BusinessID,
			URL:               w.URL,
			Method:            w.Method,
			AuthHeader:        w.AuthHeader,
			AuthValue:         w.AuthValue,
			EventTypes:        w.EventTypes,
			RetryCount:        w.RetryCount,
			RetryDelaySeconds: w.RetryDelaySeconds,
			TimeoutSeconds:    w.TimeoutSeconds,
		}
	}

	if wm.redis != nil {
		_ = wm.redis.Set(ctx, activeWebhooksKey, targets, activeWebhooksTTL)
	}
	return targets, nil
}

// CreatePayload generates the webhook payload from a training event
func (wm *WebhookManager) CreatePayload(event forecast.TrainingEvent) WebhookPayload {
	at := event.At
	if at.IsZero() {
		at = wm.now()
	}

	var message string
	switch event.Type {
	case forecast.EventTrainingCompleted:
		names := make([]string, len(event.Horizons))
		for i, h := range event.Horizons {
			names[i] = string(h)
		}
		message = fmt.Sprintf("📈 Models trained for %s: %s (%d data points, %.1fs)",
			event.TenantID, strings.Join(names, ", "), event.DataPoints, event.Duration.Seconds())
	case forecast.EventTrainingFailed:
		message = fmt.Sprintf("❌ Training failed for %s: %s", event.TenantID, event.Error)
	default:
		message = fmt.Sprintf("🔄 Training %s for %s", strings.TrimPrefix(event.Type, "training_"), event.TenantID)
	}

	return WebhookPayload{
		EventID:         uuid.NewString(),
		EventType:       event.Type,
		RunID:           event.RunID,
		TenantID:        event.TenantID,
		OccurredAt:      at,
		Horizons:        event.Horizons,
		DataPoints:      event.DataPoints,
		Metrics:         event.Metrics,
		DurationSeconds: event.Duration.Seconds(),
		Error:           event.Error,
		Message:         message,
	}
}

func shouldSend(hook target, event forecast.TrainingEvent) bool {
	if hook.BusinessID != event.TenantID {
		return false
	}
	types := hook.EventTypes
	if strings.TrimSpace(types) == "" {
		types = forecast.EventTrainingCompleted + "," + forecast.EventTrainingFailed
	}
	for _, t := range strings.Split(types, ",") {
		if strings.EqualFold(strings.TrimSpace(t), event.Type) {
			return true
		}
	}
	return false
}

func (wm *WebhookManager) deliverWebhook(ctx context.Context, hook target, event forecast.TrainingEvent, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	var (
		statusCode int
		body       string
		lastErr    error
	)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("🔹 Sending %s webhook to %s (Attempt %d/%d)", event.Type, hook.URL, attempt, maxRetries)

		statusCode, body, lastErr = wm.send(ctx, hook, method, payload)
		if lastErr == nil && statusCode >= 200 && statusCode < 300 {
			wm.logDelivery(ctx, hook.ID, event, database.DeliverySuccess, statusCode, body, "", attempt)
			return
		}

		// Wait before retry
		if attempt < maxRetries {
			if err := sleepCtx(ctx, time.Duration(hook.RetryDelaySeconds)*time.Second); err != nil {
				lastErr = err
				break
			}
		}
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	} else {
		errMsg = fmt.Sprintf("unexpected status %d", statusCode)
	}
	log.Printf("⚠️  Webhook %d to %s failed: %s", hook.ID, hook.URL, errMsg)
	wm.logDelivery(ctx, hook.ID, event, database.DeliveryFailed, statusCode, body, errMsg, maxRetries)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (wm *WebhookManager) send(ctx context.Context, hook target, method string, payload []byte) (int, string, error) {
	if hook.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(hook.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sales-Forecast-Webhook/1.0")

	// Auth headers
	if hook.AuthValue != "" {
		if hook.AuthHeader == "" {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	return resp.StatusCode, string(raw), nil
}

func (wm *WebhookManager) logDelivery(ctx context.Context, webhookID int, event forecast.TrainingEvent, status string, code int, body, errMsg string, attempt int) {
	logEntry := &database.TrainingWebhookLog{
		WebhookID:    webhookID,
		RunID:        event.RunID,
		EventType:    event.Type,
		TriggeredAt:  wm.now(),
		Status:       status,
		ResponseBody: body,
		ErrorMessage: errMsg,
		RetryAttempt: attempt,
	}
	if code != 0 {
		logEntry.HTTPStatusCode = &code
	}

	// The caller's context may already be done after a timeout; the log is written regardless
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if dbErr := wm.repo.SaveWebhookLog(saveCtx, logEntry); dbErr != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", dbErr)
	}
}

// RefreshCache drops the cached webhook list; call after webhooks change
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), activeWebhooksKey)
		log.Println("🔄 Webhook cache invalidated")
	}
}
