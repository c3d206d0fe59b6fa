package ratelimit

import (
	"context"
	"time"
)

// CounterStore holds timestamped hit records per key and evaluates them
// atomically. Implementations read "now" from their own clock so that all
// processes sharing the store agree on window boundaries.
type CounterStore interface {
	// RecordAndEvaluate drops records for key older than window, sums the
	// remaining costs and, if sum+cost <= limit, appends a record of cost at
	// the store's current time. The whole sequence is a single atomic step.
	// Connection failures are returned as errors.
	RecordAndEvaluate(ctx context.Context, key string, window time.Duration, limit, cost int) (Evaluation, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store connection.
	Close() error
}

// Evaluation is the outcome of a single RecordAndEvaluate call.
type Evaluation struct {
	Allowed bool
	// Used is the total cost inside the window after this call.
	Used int
	// Now is the store clock reading used for the evaluation.
	Now time.Time
	// Oldest is the timestamp of the oldest record still in the window,
	// zero when the window is empty.
	Oldest time.Time
}
