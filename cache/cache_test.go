package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sales-forecast/forecast"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := WrapRedisClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	t.Cleanup(func() {
		_ = client.Close()
		s.Close()
	})
	return s, client
}

func sampleResult(at time.Time) *forecast.TopProductsResult {
	return &forecast.TopProductsResult{
		Daily:      []forecast.TopProductItem{{ProductID: "p1", ProductName: "Bread", Category: "Bakery", Prediction: 5, LowerBound: 4, UpperBound: 6}},
		Weekly:     []forecast.TopProductItem{{ProductID: "p1", Prediction: 35}},
		Monthly:    []forecast.TopProductItem{{ProductID: "p1", Prediction: 150}},
		ComputedAt: at,
	}
}

func TestMemoryPredictionCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryPredictionCache()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	keyA := forecast.TopProductsKey{TenantID: "t1", Limit: 10, Category: "Bakery"}
	keyB := forecast.TopProductsKey{TenantID: "t1", Limit: 10}
	keyOther := forecast.TopProductsKey{TenantID: "t2", Limit: 10}
	_ = c.Set(ctx, keyA, sampleResult(t0))
	_ = c.Set(ctx, keyB, sampleResult(t0.Add(50*time.Minute)))
	_ = c.Set(ctx, keyOther, sampleResult(t0))

	if _, ok := c.Get(ctx, forecast.TopProductsKey{TenantID: "t1", Limit: 10, Category: "bakery"}); !ok {
		t.Error("category lookups should ignore case")
	}

	if n := c.Sweep(t0.Add(time.Hour), time.Hour); n != 2 {
		t.Errorf("Sweep removed %d entries, want 2", n)
	}
	if _, ok := c.Get(ctx, keyB); !ok {
		t.Error("fresh entry was swept")
	}

	_ = c.InvalidateTenant(ctx, "t1")
	if c.Len() != 0 {
		t.Errorf("%d entries left after invalidation", c.Len())
	}
}

func TestRedisPredictionCache(t *testing.T) {
	ctx := context.Background()
	srv, client := newMiniRedis(t)
	c := NewRedisPredictionCache(client, time.Hour)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	key := forecast.TopProductsKey{TenantID: "t1", Limit: 5, Category: "Bakery"}
	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("empty cache returned a hit")
	}
	if err := c.Set(ctx, key, sampleResult(at)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !srv.Exists("forecast:top:t1:5:bakery") {
		t.Errorf("unexpected keys %v", srv.Keys())
	}

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !got.ComputedAt.Equal(at) || len(got.Daily) != 1 || got.Daily[0].Prediction != 5 || got.Monthly[0].Prediction != 150 {
		t.Errorf("decoded result = %+v", got)
	}

	srv.FastForward(61 * time.Minute)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("entry should expire with the TTL")
	}
}

func TestRedisPredictionCacheInvalidateTenant(t *testing.T) {
	ctx := context.Background()
	srv, client := newMiniRedis(t)
	c := NewRedisPredictionCache(client, time.Hour)
	at := time.Now()

	for _, key := range []forecast.TopProductsKey{
		{TenantID: "t1", Limit: 10},
		{TenantID: "t1", Limit: 20, Category: "Drinks"},
		{TenantID: "t10", Limit: 10},
		{TenantID: "t1:x", Limit: 10},
	} {
		if err := c.Set(ctx, key, sampleResult(at)); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.InvalidateTenant(ctx, "t1"); err != nil {
		t.Fatalf("InvalidateTenant: %v", err)
	}
	keys := srv.Keys()
	if len(keys) != 2 || keys[0] != "forecast:top:t1%3Ax:10:" || keys[1] != "forecast:top:t10:10:" {
		t.Errorf("remaining keys = %v, want t1:x and t10 untouched", keys)
	}
}

func TestRedisPredictionCacheWithoutRedis(t *testing.T) {
	c := NewRedisPredictionCache(nil, 0)
	ctx := context.Background()
	if _, ok := c.Get(ctx, forecast.TopProductsKey{TenantID: "t1"}); ok {
		t.Error("nil redis should always miss")
	}
	if err := c.Set(ctx, forecast.TopProductsKey{TenantID: "t1"}, sampleResult(time.Now())); err == nil {
		t.Error("Set without redis should fail")
	}
	if err := c.InvalidateTenant(ctx, "t1"); err != nil {
		t.Errorf("InvalidateTenant without redis = %v", err)
	}
}

func TestModelCache(t *testing.T) {
	c := NewModelCache()
	a := &forecast.Artifact{Metadata: forecast.ArtifactMetadata{TenantID: "t1", Horizon: forecast.HorizonDaily}}
	c.Put("t1", forecast.HorizonDaily, a)
	c.Put("t1", forecast.HorizonWeekly, a)
	c.Put("t2", forecast.HorizonDaily, a)

	if got, ok := c.Get("t1", forecast.HorizonDaily); !ok || got != a {
		t.Error("expected cached artifact")
	}
	if _, ok := c.Get("t1", forecast.HorizonMonthly); ok {
		t.Error("monthly was never cached")
	}

	c.InvalidateTenant("t1")
	if c.Len() != 1 {
		t.Errorf("Len after invalidation = %d, want 1", c.Len())
	}
	if _, ok := c.Get("t2", forecast.HorizonDaily); !ok {
		t.Error("other tenant was invalidated")
	}
}

func TestTrainingLock(t *testing.T) {
	ctx := context.Background()
	_, client := newMiniRedis(t)

	tests := []struct {
		name string
		lock *TrainingLock
	}{
		{"memory", NewTrainingLock(nil, time.Minute)},
		{"redis", NewTrainingLock(client, time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.lock.TryLock(ctx, "t1", "run-a")
			if err != nil || !ok {
				t.Fatalf("first TryLock = %v, %v", ok, err)
			}
			if ok, _ := tt.lock.TryLock(ctx, "t1", "run-b"); ok {
				t.Error("second TryLock should fail while held")
			}
			if ok, _ := tt.lock.TryLock(ctx, "t2", "run-b"); !ok {
				t.Error("locks are per tenant")
			}
			if !tt.lock.IsLocked(ctx, "t1") {
				t.Error("IsLocked = false while held")
			}
			if err := tt.lock.Unlock(ctx, "t1", "run-b"); err != nil {
				t.Fatalf("Unlock by non-owner: %v", err)
			}
			if !tt.lock.IsLocked(ctx, "t1") {
				t.Error("a non-owner released the lock")
			}
			if err := tt.lock.Unlock(ctx, "t1", "run-a"); err != nil {
				t.Fatalf("Unlock: %v", err)
			}
			if tt.lock.IsLocked(ctx, "t1") {
				t.Error("IsLocked = true after Unlock")
			}
			if ok, _ := tt.lock.TryLock(ctx, "t1", "run-c"); !ok {
				t.Error("lock should be free after Unlock")
			}
		})
	}
}

func TestTrainingLockStaleOwnerCannotUnlock(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	memory := NewTrainingLock(nil, time.Minute)
	memory.now = func() time.Time { return now }

	tests := []struct {
		name   string
		lock   *TrainingLock
		expire func()
	}{
		{"memory", memory, func() { now = now.Add(2 * time.Minute) }},
		{"redis", NewTrainingLock(client, time.Minute), func() { mr.FastForward(2 * time.Minute) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ok, _ := tt.lock.TryLock(ctx, "t1", "slow-run"); !ok {
				t.Fatal("TryLock failed")
			}
			tt.expire()
			if ok, _ := tt.lock.TryLock(ctx, "t1", "next-run"); !ok {
				t.Fatal("an expired lock should be taken over")
			}
			if err := tt.lock.Unlock(ctx, "t1", "slow-run"); err != nil {
				t.Fatalf("Unlock: %v", err)
			}
			if !tt.lock.IsLocked(ctx, "t1") {
				t.Error("the expired holder released the new holder's lock")
			}
			if ok, _ := tt.lock.TryLock(ctx, "t1", "third-run"); ok {
				t.Error("lock should still belong to next-run")
			}
		})
	}
}

func TestRedisDeleteIfEqual(t *testing.T) {
	ctx := context.Background()
	_, client := newMiniRedis(t)

	if err := client.Set(ctx, "k", "mine", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, err := client.DeleteIfEqual(ctx, "k", "theirs"); err != nil || ok {
		t.Fatalf("DeleteIfEqual(theirs) = %v, %v", ok, err)
	}
	if !client.Exists(ctx, "k") {
		t.Fatal("key removed by a mismatched value")
	}
	if ok, err := client.DeleteIfEqual(ctx, "k", "mine"); err != nil || !ok {
		t.Fatalf("DeleteIfEqual(mine) = %v, %v", ok, err)
	}
	if client.Exists(ctx, "k") {
		t.Error("key still present")
	}

	var nilClient *RedisClient
	if _, err := nilClient.DeleteIfEqual(ctx, "k", "mine"); err == nil {
		t.Error("expected error without a client")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob(`a*b?[c]\`); got != `a\*b\?\[c\]\\` {
		t.Errorf("escapeGlob = %q", got)
	}
}
