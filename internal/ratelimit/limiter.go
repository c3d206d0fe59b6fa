// Package ratelimit provides moving-window admission control for HTTP routes.
// Hit records live in a shared CounterStore (Redis in production) so that every
// process of the service enforces the same aggregate rate per client and route.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Window is the fixed granularity of every rate limit item.
const Window = time.Minute

var (
	// ErrStoreUnavailable is returned when the counter store cannot be reached
	// or does not answer within the configured timeout.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrRateLimitExceeded describes a denied hit for callers that need an error value.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrClientIdentityMissing is returned when the trusted proxy header carrying
	// the real client address is required but absent.
	ErrClientIdentityMissing = errors.New("client identity missing")

	// ErrInvalidCost is returned for hits with a cost below one.
	ErrInvalidCost = errors.New("hit cost must be positive")
)

// Item is the rate configuration of a single route: at most Limit units of
// cost per one-minute moving window. The zero value is not usable; build
// items with PerMinute.
type Item struct {
	limit int
}

// PerMinute returns an Item allowing ratePerWindow units per minute.
func PerMinute(ratePerWindow int) (Item, error) {
	if ratePerWindow <= 0 {
		return Item{}, fmt.Errorf("rate per window must be positive, got %d", ratePerWindow)
	}
	return Item{limit: ratePerWindow}, nil
}

// Limit returns the number of cost units admitted per window.
func (i Item) Limit() int { return i.limit }

// Window returns the moving window length.
func (i Item) Window() time.Duration { return Window }

func (i Item) String() string {
	return fmt.Sprintf("%d per 1 minute", i.limit)
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum cost per window
	Remaining  int           // Cost still available in the current window
	ResetAt    time.Time     // When the oldest recorded hit leaves the window
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// Limiter decides whether a hit against key fits into item's window.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Hit returns true when the hit was admitted and recorded. A store failure
	// is reported as an error wrapping ErrStoreUnavailable, never as a deny.
	Hit(ctx context.Context, key string, item Item, cost int) (bool, Info, error)
}
