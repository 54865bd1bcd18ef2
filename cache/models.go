package cache

import (
	"sync"

	"sales-forecast/forecast"
)

type modelKey struct {
	tenantID string
	horizon  forecast.Horizon
}

// ModelCache keeps decoded model artifacts in process memory
type ModelCache struct {
	mu    sync.RWMutex
	items map[modelKey]*forecast.Artifact
}

// NewModelCache creates an empty model cache
func NewModelCache() *ModelCache {
	return &ModelCache{items: make(map[modelKey]*forecast.Artifact)}
}

// Get returns the cached artifact for (tenant, horizon)
func (c *ModelCache) Get(tenantID string, h forecast.Horizon) (*forecast.Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.items[modelKey{tenantID, h}]
	return a, ok
}

// Put stores an artifact, replacing any previous one
func (c *ModelCache) Put(tenantID string, h forecast.Horizon, a *forecast.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[modelKey{tenantID, h}] = a
}

// InvalidateTenant drops every horizon of the tenant
func (c *ModelCache) InvalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range forecast.AllHorizons {
		delete(c.items, modelKey{tenantID, h})
	}
}

// Len is the number of cached artifacts
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
