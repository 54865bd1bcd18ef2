package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/singleflight"
)

// bandFraction is the relative half-width of the reported band. It is a heuristic,
// not a statistical interval.
const bandFraction = 0.2

// PredictRequest asks for one product's demand at one horizon
type PredictRequest struct {
	TenantID       string
	ProductID      string
	Category       string // looked up from the catalog when empty
	IncludeHistory bool
	Horizon        Horizon
}

// Prediction is a point estimate with its heuristic band
type Prediction struct {
	ProductID  string
	Horizon    Horizon
	Value      float64
	LowerBound float64
	UpperBound float64
	Timestamp  time.Time
}

// ConfidenceBand returns max(0, v - 0.2v) and v + 0.2v
func ConfidenceBand(v float64) (lower, upper float64) {
	u := bandFraction * v
	return math.Max(0, v-u), v + u
}

// Predictor scores single products against the tenant's stored models
type Predictor struct {
	store  ModelStore
	models ModelCache
	data   Datastore
	loads  singleflight.Group
	now    func() time.Time
}

// NewPredictor creates a predictor reading models through the given cache
func NewPredictor(store ModelStore, models ModelCache, data Datastore) *Predictor {
	return &Predictor{
		store:  store,
		models: models,
		data:   data,
		now:    time.Now,
	}
}

// Model returns the tenant's artifact for h, loading it into the cache on first use.
// Concurrent first loads of the same key share one read.
func (p *Predictor) Model(ctx context.Context, tenantID string, h Horizon) (*Artifact, error) {
	if a, ok := p.models.Get(tenantID, h); ok {
		return a, nil
	}
	v, err, _ := p.loads.Do(tenantID+"/"+string(h), func() (interface{}, error) {
		a, err := p.store.Load(ctx, tenantID, h)
		if err != nil {
			return nil, err
		}
		p.models.Put(tenantID, h, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// Predict resolves the category and history as requested, then scores the product
func (p *Predictor) Predict(ctx context.Context, req PredictRequest) (*Prediction, error) {
	if !req.Horizon.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHorizon, req.Horizon)
	}
	model, err := p.Model(ctx, req.TenantID, req.Horizon)
	if err != nil {
		return nil, err
	}

	category := req.Category
	if category == "" {
		product, err := p.data.GetProduct(ctx, req.TenantID, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("Predict: load product: %w", err)
		}
		if product != nil {
			category = product.CategoryName
		}
	}

	var history []SaleObservation
	if req.IncludeHistory {
		transactions, err := p.data.ListTransactions(ctx, req.TenantID)
		if err != nil {
			return nil, fmt.Errorf("Predict: load history: %w", err)
		}
		history = ProductHistory(transactions, req.ProductID)
	}

	return p.score(model, req.ProductID, category, history, p.now()), nil
}

// score builds the feature row for now's calendar day and applies the model
func (p *Predictor) score(model *Artifact, productID, category string, history []SaleObservation, now time.Time) *Prediction {
	row := PrepareSinglePoint(productID, category, history, now)
	value := model.Predict(&row)
	lower, upper := ConfidenceBand(value)
	return &Prediction{
		ProductID:  productID,
		Horizon:    model.Metadata.Horizon,
		Value:      value,
		LowerBound: lower,
		UpperBound: upper,
		Timestamp:  now,
	}
}
