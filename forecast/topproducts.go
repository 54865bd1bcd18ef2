package forecast

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Top-products limits
const (
	DefaultTopProductsLimit = 10
	MaxTopProductsLimit     = 100
	DefaultTopProductsTTL   = time.Hour
)

// TopProducts ranks a tenant's catalog by predicted demand for every horizon
type TopProducts struct {
	predictor *Predictor
	data      Datastore
	cache     PredictionCache
	ttl       time.Duration
	workers   int
	now       func() time.Time
}

// NewTopProducts creates the aggregator; workers bounds concurrent product scoring
func NewTopProducts(predictor *Predictor, data Datastore, cache PredictionCache, ttl time.Duration, workers int) *TopProducts {
	if ttl <= 0 {
		ttl = DefaultTopProductsTTL
	}
	if workers <= 0 {
		workers = 4
	}
	return &TopProducts{
		predictor: predictor,
		data:      data,
		cache:     cache,
		ttl:       ttl,
		workers:   workers,
		now:       time.Now,
	}
}

// ClampLimit maps out-of-range limits to the default or the maximum
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTopProductsLimit
	}
	if limit > MaxTopProductsLimit {
		return MaxTopProductsLimit
	}
	return limit
}

// Get serves a cached result younger than the TTL unless refresh is set; otherwise it
// scores every catalog product (optionally filtered by category, ignoring case) for all
// horizons, rounds half to even, ranks descending and caches the result.
func (tp *TopProducts) Get(ctx context.Context, tenantID string, limit int, category string, refresh bool) (*TopProductsResult, error) {
	key := TopProductsKey{TenantID: tenantID, Limit: ClampLimit(limit), Category: category}

	if !refresh {
		if cached, ok := tp.cache.Get(ctx, key); ok && tp.now().Sub(cached.ComputedAt) < tp.ttl {
			return cached, nil
		}
	}

	models := make(map[Horizon]*Artifact, len(AllHorizons))
	var missing []Horizon
	for _, h := range AllHorizons {
		a, err := tp.predictor.Model(ctx, tenantID, h)
		if IsModelNotFound(err) {
			missing = append(missing, h)
			continue
		}
		if err != nil {
			return nil, err
		}
		models[h] = a
	}
	if len(missing) > 0 {
		return nil, &ModelNotFoundError{TenantID: tenantID, Horizons: missing}
	}

	products, err := tp.catalog(ctx, tenantID, category)
	if err != nil {
		return nil, err
	}

	transactions, err := tp.data.ListTransactions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("TopProducts: load history: %w", err)
	}
	histories := historiesByProduct(transactions)

	log.Printf("🔮 Calculating top products for tenant %s (%d products)", tenantID, len(products))

	ranked := make(map[Horizon][]TopProductItem, len(AllHorizons))
	for _, h := range AllHorizons {
		ranked[h] = make([]TopProductItem, len(products))
	}

	today := tp.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tp.workers)
	for i := range products {
		product := products[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			productCategory := normalizeCategory(product.CategoryName)
			for _, h := range AllHorizons {
				pred := tp.predictor.score(models[h], product.ID, productCategory, histories[product.ID], today)
				ranked[h][i] = TopProductItem{
					ProductID:    product.ID,
					ProductName:  product.Name,
					Category:     productCategory,
					Prediction:   math.RoundToEven(pred.Value),
					LowerBound:   math.RoundToEven(pred.LowerBound),
					UpperBound:   math.RoundToEven(pred.UpperBound),
					CurrentStock: product.CurrentStock,
					Price:        product.SellingPrice,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &TopProductsResult{ComputedAt: tp.now()}
	for _, h := range AllHorizons {
		items := ranked[h]
		sort.SliceStable(items, func(i, j int) bool { return items[i].Prediction > items[j].Prediction })
		if len(items) > key.Limit {
			items = items[:key.Limit]
		}
		switch h {
		case HorizonDaily:
			result.Daily = items
		case HorizonWeekly:
			result.Weekly = items
		case HorizonMonthly:
			result.Monthly = items
		}
	}

	if err := tp.cache.Set(ctx, key, result); err != nil {
		log.Printf("⚠️  Failed to cache top products for tenant %s: %v", tenantID, err)
	}
	return result, nil
}

// catalog lists the tenant's products, keeping only the category when one is given
func (tp *TopProducts) catalog(ctx context.Context, tenantID, category string) ([]Product, error) {
	products, err := tp.data.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("TopProducts: load products: %w", err)
	}
	if category != "" {
		filtered := products[:0:0]
		for _, p := range products {
			if p.CategoryName != "" && strings.EqualFold(p.CategoryName, category) {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	if len(products) == 0 {
		if category != "" {
			return nil, &CategoryNotFoundError{Category: category}
		}
		return nil, ErrNoProducts
	}
	return products, nil
}

func historiesByProduct(transactions []TransactionRecord) map[string][]SaleObservation {
	out := make(map[string][]SaleObservation)
	for _, tx := range transactions {
		if !IsEligibleStatus(tx.Status) {
			continue
		}
		day := truncateDay(tx.Timestamp)
		for _, item := range tx.Items {
			out[item.ProductID] = append(out[item.ProductID], SaleObservation{
				Date:     day,
				Quantity: cleanNumber(item.Quantity),
				Total:    cleanNumber(item.Subtotal),
			})
		}
	}
	return out
}
