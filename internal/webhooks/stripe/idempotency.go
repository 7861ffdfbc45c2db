package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/aklauser/marktplatz-backend/pkg/redis"
)

const eventScope = "stripe-event"

// EventGuard deduplicates webhook deliveries. Stripe retries events until
// acknowledged, so every event id is marked in Redis before processing and
// released again when processing fails, letting the redelivery through.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewEventGuard builds a guard marking events for the given TTL.
func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("event ttl must be positive")
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the event is fresh and atomically marks it.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("event id required")
	}
	key := g.store.IdempotencyKey(eventScope, eventID)
	fresh, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("marking event %s: %w", eventID, err)
	}
	return fresh, nil
}

// Release removes the mark so a failed event can be retried on redelivery.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(eventScope, eventID))
}
