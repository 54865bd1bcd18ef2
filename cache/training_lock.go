package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTrainingLockTTL bounds how long a crashed trainer can hold a tenant's lock
const DefaultTrainingLockTTL = 30 * time.Minute

// TrainingLock allows one training run per tenant at a time. With Redis the lock is
// shared by every instance; without it the lock is local to the process.
// Each holder is identified by an owner token, so a run whose lock expired cannot
// release the lock a later run has taken.
type TrainingLock struct {
	redis *RedisClient
	ttl   time.Duration

	mu    sync.Mutex
	local map[string]lockHolder
	now   func() time.Time
}

type lockHolder struct {
	owner string
	since time.Time
}

// NewTrainingLock creates a lock; redis may be nil
func NewTrainingLock(redis *RedisClient, ttl time.Duration) *TrainingLock {
	if ttl <= 0 {
		ttl = DefaultTrainingLockTTL
	}
	return &TrainingLock{
		redis: redis,
		ttl:   ttl,
		local: make(map[string]lockHolder),
		now:   time.Now,
	}
}

func trainingLockKey(tenantID string) string {
	return fmt.Sprintf("forecast:training:%s", tenantID)
}

// TryLock takes the tenant's lock for owner and reports whether it was free
func (l *TrainingLock) TryLock(ctx context.Context, tenantID, owner string) (bool, error) {
	if l.redis != nil {
		return l.redis.SetNX(ctx, trainingLockKey(tenantID), owner, l.ttl)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, held := l.local[tenantID]; held && l.now().Sub(h.since) < l.ttl {
		return false, nil
	}
	l.local[tenantID] = lockHolder{owner: owner, since: l.now()}
	return true, nil
}

// Unlock releases the tenant's lock if owner still holds it
func (l *TrainingLock) Unlock(ctx context.Context, tenantID, owner string) error {
	if l.redis != nil {
		_, err := l.redis.DeleteIfEqual(ctx, trainingLockKey(tenantID), owner)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, held := l.local[tenantID]; held && h.owner == owner {
		delete(l.local, tenantID)
	}
	return nil
}

// IsLocked reports whether a training run currently holds the tenant's lock
func (l *TrainingLock) IsLocked(ctx context.Context, tenantID string) bool {
	if l.redis != nil {
		return l.redis.Exists(ctx, trainingLockKey(tenantID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	h, held := l.local[tenantID]
	return held && l.now().Sub(h.since) < l.ttl
}
