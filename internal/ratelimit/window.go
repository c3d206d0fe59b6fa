package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// MovingWindow is a Limiter that counts hits over a continuously sliding
// one-minute window ending at the store's "now". All state lives in the
// CounterStore; a MovingWindow can be shared by any number of routes.
type MovingWindow struct {
	store   CounterStore
	timeout time.Duration
}

// NewMovingWindow creates a limiter backed by store. Each store round trip is
// bounded by timeout; zero disables the bound and relies on the caller's context.
func NewMovingWindow(store CounterStore, timeout time.Duration) *MovingWindow {
	return &MovingWindow{
		store:   store,
		timeout: timeout,
	}
}

// Hit admits the hit when the costs already recorded for key inside the
// window plus cost do not exceed item's limit. On admit the hit is recorded
// by the store in the same atomic step.
func (m *MovingWindow) Hit(ctx context.Context, key string, item Item, cost int) (bool, Info, error) {
	if cost < 1 {
		return false, Info{}, ErrInvalidCost
	}
	if item.limit <= 0 {
		return false, Info{}, fmt.Errorf("invalid rate limit item for key %s", key)
	}

	info := Info{Limit: item.Limit()}

	// Can never fit, whatever the history.
	if cost > item.Limit() {
		info.ResetAt = time.Now().Add(item.Window())
		info.RetryAfter = item.Window()
		return false, info, nil
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	ev, err := m.store.RecordAndEvaluate(ctx, key, item.Window(), item.Limit(), cost)
	if err != nil {
		return false, info, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	info.Remaining = max(0, item.Limit()-ev.Used)
	if ev.Oldest.IsZero() {
		info.ResetAt = ev.Now
	} else {
		info.ResetAt = ev.Oldest.Add(item.Window())
	}

	if !ev.Allowed {
		info.RetryAfter = max(0, info.ResetAt.Sub(ev.Now))
	}

	return ev.Allowed, info, nil
}
