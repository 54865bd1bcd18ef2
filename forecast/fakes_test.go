package forecast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeDatastore struct {
	mu           sync.Mutex
	transactions []TransactionRecord
	products     []Product
	listCalls    int
}

func (f *fakeDatastore) ListTransactions(ctx context.Context, tenantID string) ([]TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]TransactionRecord, 0, len(f.transactions))
	for _, tx := range f.transactions {
		if tx.TenantID == tenantID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeDatastore) GetProduct(ctx context.Context, tenantID, productID string) (*Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.TenantID == tenantID && p.ID == productID {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDatastore) ListProducts(ctx context.Context, tenantID string) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Product
	for _, p := range f.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDatastore) addTransactions(txs ...TransactionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions = append(f.transactions, txs...)
}

func (f *fakeDatastore) addProducts(ps ...Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append(f.products, ps...)
}

type mapModelCache struct {
	mu          sync.Mutex
	items       map[string]*Artifact
	invalidated []string
}

func newMapModelCache() *mapModelCache {
	return &mapModelCache{items: make(map[string]*Artifact)}
}

func (c *mapModelCache) Get(tenantID string, h Horizon) (*Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.items[tenantID+"/"+string(h)]
	return a, ok
}

func (c *mapModelCache) Put(tenantID string, h Horizon, a *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[tenantID+"/"+string(h)] = a
}

func (c *mapModelCache) InvalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tenantID)
	for _, h := range AllHorizons {
		delete(c.items, tenantID+"/"+string(h))
	}
}

type mapPredictionCache struct {
	mu          sync.Mutex
	items       map[TopProductsKey]*TopProductsResult
	invalidated []string
}

func newMapPredictionCache() *mapPredictionCache {
	return &mapPredictionCache{items: make(map[TopProductsKey]*TopProductsResult)}
}

func (c *mapPredictionCache) Get(ctx context.Context, key TopProductsKey) (*TopProductsResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[key]
	return r, ok
}

func (c *mapPredictionCache) Set(ctx context.Context, key TopProductsKey, result *TopProductsResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = result
	return nil
}

func (c *mapPredictionCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tenantID)
	for k := range c.items {
		if k.TenantID == tenantID {
			delete(c.items, k)
		}
	}
	return nil
}

// dayOf returns midnight UTC of 2024-01-01 plus n days
func dayOf(n int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// dailySales creates one completed transaction per day for productID
func dailySales(tenantID, productID, category string, days int, quantity, price float64) []TransactionRecord {
	out := make([]TransactionRecord, days)
	for i := 0; i < days; i++ {
		out[i] = TransactionRecord{
			ID:        fmt.Sprintf("%s-%s-%d", tenantID, productID, i),
			TenantID:  tenantID,
			Timestamp: dayOf(i).Add(10 * time.Hour),
			Status:    StatusCompleted,
			Items: []LineItem{{
				ProductID:    productID,
				ProductName:  "Product " + productID,
				CategoryName: category,
				Quantity:     quantity,
				UnitPrice:    price,
				Subtotal:     quantity * price,
			}},
		}
	}
	return out
}

type testEnv struct {
	data        *fakeDatastore
	store       *FileModelStore
	models      *mapModelCache
	predictions *mapPredictionCache
	service     *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := NewFileModelStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileModelStore: %v", err)
	}
	env := &testEnv{
		data:        &fakeDatastore{},
		store:       store,
		models:      newMapModelCache(),
		predictions: newMapPredictionCache(),
	}
	env.service = NewService(env.data, store, env.models, env.predictions, NewWorkerPool(2), ServiceConfig{
		Trainer:           DefaultTrainerConfig(),
		TopProductsTTL:    time.Hour,
		PredictionWorkers: 4,
	})
	return env
}
