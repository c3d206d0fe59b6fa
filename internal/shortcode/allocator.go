// Package shortcode allocates short codes that no stored link uses yet.
package shortcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"

	"shortener/internal/models"
	"shortener/internal/storage"
)

// ErrAllocationExhausted is returned when no unused code was found within the
// attempt or time budget.
var ErrAllocationExhausted = errors.New("short code allocation exhausted")

// errCollision marks a candidate that is already taken.
var errCollision = errors.New("short code collision")

// CodeChecker reports whether a code is already in use.
type CodeChecker interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

// InsertFunc persists a link under code. It must return
// storage.ErrDuplicateCode when the code was taken concurrently.
type InsertFunc func(ctx context.Context, code string) error

// Generate returns a random code whose length is uniform in
// [models.MinCodeLength, maxLength] and whose symbols are drawn uniformly
// from models.CodeAlphabet.
func Generate(maxLength int) string {
	maxLength = max(maxLength, models.MinCodeLength)
	n := models.MinCodeLength + rand.IntN(maxLength-models.MinCodeLength+1)

	b := make([]byte, n)
	for i := range b {
		b[i] = models.CodeAlphabet[rand.IntN(len(models.CodeAlphabet))]
	}
	return string(b)
}

// Allocator hands out unused short codes. Every attempt draws a fresh
// candidate; attempts are bounded by maxAttempts and, when set, by timeout.
type Allocator struct {
	checker     CodeChecker
	maxLength   int
	maxAttempts int
	timeout     time.Duration
	retryDelay  time.Duration
	generate    func(maxLength int) string
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithGenerator replaces the candidate generator.
func WithGenerator(generate func(maxLength int) string) Option {
	return func(a *Allocator) { a.generate = generate }
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(a *Allocator) {
		if d > 0 {
			a.retryDelay = d
		}
	}
}

// NewAllocator creates an allocator that checks candidates against checker.
func NewAllocator(checker CodeChecker, cfg models.CodesConfig, opts ...Option) *Allocator {
	a := &Allocator{
		checker:     checker,
		maxLength:   max(cfg.MaxLength, models.MinCodeLength),
		maxAttempts: max(cfg.MaxAttempts, 1),
		timeout:     cfg.Timeout,
		retryDelay:  time.Millisecond,
		generate:    Generate,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns a code that was unused when checked. The code is not
// reserved; use AllocateAndInsert when the caller persists it.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	return a.AllocateAndInsert(ctx, nil)
}

// AllocateAndInsert finds an unused code and passes it to insert. A
// storage.ErrDuplicateCode from insert means another writer won the code
// between check and insert; a fresh candidate is tried in that case.
// Any other insert or storage error is returned as is.
func (a *Allocator) AllocateAndInsert(ctx context.Context, insert InsertFunc) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	attempts := 0
	var code string

	backoff := retry.WithMaxRetries(uint64(a.maxAttempts-1), retry.NewConstant(a.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		candidate := a.generate(a.maxLength)

		taken, err := a.checker.ExistsByCode(ctx, candidate)
		if err != nil {
			return fmt.Errorf("failed to check code: %w", err)
		}
		if taken {
			return retry.RetryableError(errCollision)
		}

		if insert != nil {
			if err := insert(ctx, candidate); err != nil {
				if errors.Is(err, storage.ErrDuplicateCode) {
					slog.Debug("Lost short code race, retrying", "attempt", attempts)
					return retry.RetryableError(errCollision)
				}
				return err
			}
		}

		code = candidate
		return nil
	})

	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, errCollision),
		errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		slog.Warn("Short code allocation exhausted",
			"attempts", attempts,
			"max_attempts", a.maxAttempts,
			"max_length", a.maxLength,
		)
		return "", fmt.Errorf("%w after %d attempts", ErrAllocationExhausted, attempts)
	default:
		return "", err
	}
}
