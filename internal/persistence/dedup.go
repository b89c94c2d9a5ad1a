package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Deduper decides whether an event delivery id has been seen before.
// Delivery is at-least-once, so the gateway must drop redelivered events
// before they reach the relay engine.
type Deduper interface {
	// FirstDelivery returns true when this delivery id has not been
	// processed yet and marks it as processed.
	FirstDelivery(ctx context.Context, deliveryID string) bool
}

const dedupKeyPrefix = "modmail:delivery:"

type redisDeduper struct {
	redis  *Redis
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisDeduper remembers delivery ids in Redis for the given TTL. When
// Redis is unreachable the event is processed anyway: a duplicate relay is
// preferable to a dropped message.
func NewRedisDeduper(r *Redis, ttl time.Duration, logger *zap.Logger) Deduper {
	return &redisDeduper{redis: r, ttl: ttl, logger: logger}
}

func (d *redisDeduper) FirstDelivery(ctx context.Context, deliveryID string) bool {
	if deliveryID == "" {
		return true
	}
	ok, err := d.redis.Client.SetNX(ctx, dedupKeyPrefix+deliveryID, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("delivery dedup unavailable, processing anyway",
			zap.String("delivery_id", deliveryID),
			zap.Error(err))
		return true
	}
	return ok
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduper is a process-local Deduper for tests and single-node
// development runs.
func NewMemoryDeduper() Deduper {
	return &memoryDeduper{seen: make(map[string]struct{})}
}

func (d *memoryDeduper) FirstDelivery(ctx context.Context, deliveryID string) bool {
	if deliveryID == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[deliveryID]; ok {
		return false
	}
	d.seen[deliveryID] = struct{}{}
	return true
}
