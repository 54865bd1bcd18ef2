package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"sales-forecast/cache"
	"sales-forecast/forecast"
)

// TrainingEventsChannel is the Redis channel training events travel on
const TrainingEventsChannel = "forecast:training_events"

const redisPublishTimeout = 2 * time.Second

// Relay delivers training events to the broker. With Redis every instance publishes to a
// shared channel and every instance's broker receives, so a client connected to one
// instance sees runs started on another. Without Redis events go straight to the broker.
type Relay struct {
	redis  *cache.RedisClient
	broker *Broker
}

// NewRelay creates a relay; redis may be nil
func NewRelay(redis *cache.RedisClient, broker *Broker) *Relay {
	return &Relay{redis: redis, broker: broker}
}

// Observe is a forecast.TrainingObserver
func (r *Relay) Observe(event forecast.TrainingEvent) {
	if r.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
		defer cancel()
		err := r.redis.Publish(ctx, TrainingEventsChannel, event)
		if err == nil {
			return
		}
		log.Printf("⚠️  Failed to publish %s to Redis, delivering locally: %v", event.Type, err)
	}
	r.broker.Broadcast(event.TenantID, event.Type, event)
}

// Run forwards events from Redis to the broker until ctx ends. It returns at once without Redis.
func (r *Relay) Run(ctx context.Context) {
	if r.redis == nil {
		return
	}
	pubsub := r.redis.Subscribe(ctx, TrainingEventsChannel)
	if pubsub == nil {
		return
	}
	defer pubsub.Close()
	log.Printf("📡 Relaying training events from Redis channel %s", TrainingEventsChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event forecast.TrainingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("⚠️  Dropping malformed training event: %v", err)
				continue
			}
			r.broker.Broadcast(event.TenantID, event.Type, event)
		}
	}
}
