package forecast

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Datastore is the read side of the tenant's transactional store
type Datastore interface {
	// ListTransactions returns every transaction of the tenant, in any order
	ListTransactions(ctx context.Context, tenantID string) ([]TransactionRecord, error)
	// GetProduct returns nil, nil when the product does not exist
	GetProduct(ctx context.Context, tenantID, productID string) (*Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]Product, error)
}

// ModelCache holds decoded artifacts in process, keyed by (tenant, horizon)
type ModelCache interface {
	Get(tenantID string, h Horizon) (*Artifact, bool)
	Put(tenantID string, h Horizon, a *Artifact)
	InvalidateTenant(tenantID string)
}

// TopProductsKey identifies one cached top-products result
type TopProductsKey struct {
	TenantID string
	Limit    int
	Category string
}

// String renders the key. The tenant is escaped so it never contains ':'; the
// category is lower-cased because filtering ignores case.
func (k TopProductsKey) String() string {
	return fmt.Sprintf("%s:%d:%s", EscapeTenantID(k.TenantID), k.Limit, strings.ToLower(k.Category))
}

// TopProductItem is one ranked product in a horizon's list
type TopProductItem struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Category     string  `json:"category"`
	Prediction   float64 `json:"prediction"`
	LowerBound   float64 `json:"lower_bound"`
	UpperBound   float64 `json:"upper_bound"`
	CurrentStock int     `json:"current_stock"`
	Price        float64 `json:"price"`
}

// TopProductsResult is the ranked lists for every horizon plus when they were computed
type TopProductsResult struct {
	Daily      []TopProductItem `json:"daily"`
	Weekly     []TopProductItem `json:"weekly"`
	Monthly    []TopProductItem `json:"monthly"`
	ComputedAt time.Time        `json:"computed_at"`
}

// PredictionCache stores top-products results. Freshness is judged by the caller
// from ComputedAt; backends may additionally expire entries on their own.
type PredictionCache interface {
	Get(ctx context.Context, key TopProductsKey) (*TopProductsResult, bool)
	Set(ctx context.Context, key TopProductsKey, result *TopProductsResult) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// TrainingLock serializes training runs of one tenant. owner identifies the run holding
// the lock; Unlock only releases a lock still held by the same owner.
type TrainingLock interface {
	TryLock(ctx context.Context, tenantID, owner string) (bool, error)
	Unlock(ctx context.Context, tenantID, owner string) error
	IsLocked(ctx context.Context, tenantID string) bool
}

// TrainingEvent is published when a training run starts and when it ends
type TrainingEvent struct {
	Type       string                  `json:"type"` // training_started, training_completed, training_failed
	RunID      string                  `json:"run_id"`
	TenantID   string                  `json:"tenant_id"`
	Horizons   []Horizon               `json:"horizons,omitempty"`
	DataPoints int                     `json:"data_points,omitempty"`
	Metrics    map[Horizon]EvalMetrics `json:"metrics,omitempty"`
	Duration   time.Duration           `json:"duration_ns,omitempty"`
	Error      string                  `json:"error,omitempty"`
	At         time.Time               `json:"at"`
}

// Training event types
const (
	EventTrainingStarted   = "training_started"
	EventTrainingCompleted = "training_completed"
	EventTrainingFailed    = "training_failed"
)

// TrainingObserver receives training events; it must not block
type TrainingObserver func(TrainingEvent)
