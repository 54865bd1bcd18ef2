package app

import (
	"log"
	"time"

	"sales-forecast/cache"
)

// CacheJanitor periodically evicts expired top-products results from the in-memory cache.
// Reads already ignore stale entries; the janitor only bounds memory.
type CacheJanitor struct {
	cache    *cache.MemoryPredictionCache
	ttl      time.Duration
	interval time.Duration
	done     chan bool
	now      func() time.Time
}

// NewCacheJanitor creates a new cache janitor
func NewCacheJanitor(c *cache.MemoryPredictionCache, ttl, interval time.Duration) *CacheJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheJanitor{
		cache:    c,
		ttl:      ttl,
		interval: interval,
		done:     make(chan bool),
		now:      time.Now,
	}
}

// Start begins the sweep loop
func (j *CacheJanitor) Start() {
	log.Printf("🧹 Cache janitor started (every %v)", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.done:
			log.Println("🧹 Cache janitor stopped")
			return
		}
	}
}

// Stop stops the sweep loop
func (j *CacheJanitor) Stop() {
	j.done <- true
}

func (j *CacheJanitor) sweep() int {
	removed := j.cache.Sweep(j.now(), j.ttl)
	if removed > 0 {
		log.Printf("🧹 Evicted %d expired top-products entries (%d left)", removed, j.cache.Len())
	}
	return removed
}
