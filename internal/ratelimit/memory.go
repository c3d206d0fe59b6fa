package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errMemoryStoreClosed is returned by a MemoryStore after Close.
var errMemoryStoreClosed = errors.New("memory counter store is closed")

type hitRecord struct {
	at   time.Time
	cost int
}

// series holds the ordered hit records of one key.
type series struct {
	window  time.Duration
	records []hitRecord
}

// MemoryStore is an in-process CounterStore. It gives exact moving-window
// semantics for a single process and is used for development and tests; it
// does not coordinate between processes. A background goroutine periodically
// evicts keys whose records have all left their window.
type MemoryStore struct {
	now             func() time.Time
	cleanupInterval time.Duration

	mu     sync.Mutex
	keys   map[string]*series
	done   chan struct{}
	closed bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the store clock. The store clock is the only time source
// used for window arithmetic.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates an in-memory counter store. A cleanupInterval of zero
// disables background eviction.
func NewMemoryStore(cleanupInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		keys:            make(map[string]*series),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cleanupInterval > 0 {
		go m.cleanup()
	}
	return m
}

// RecordAndEvaluate implements CounterStore.
func (m *MemoryStore) RecordAndEvaluate(ctx context.Context, key string, window time.Duration, limit, cost int) (Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Evaluation{}, errMemoryStoreClosed
	}

	now := m.now()
	s, exists := m.keys[key]
	if !exists {
		s = &series{}
		m.keys[key] = s
	}
	s.window = window
	s.prune(now.Add(-window))

	used := 0
	for _, r := range s.records {
		used += r.cost
	}

	ev := Evaluation{Now: now}
	if used+cost <= limit {
		s.records = append(s.records, hitRecord{at: now, cost: cost})
		used += cost
		ev.Allowed = true
	}
	ev.Used = used

	if len(s.records) == 0 {
		delete(m.keys, key)
	} else {
		ev.Oldest = s.records[0].at
	}

	return ev, nil
}

// prune drops records strictly older than cutoff. Records are appended in
// clock order, so the expired ones form a prefix.
func (s *series) prune(cutoff time.Time) {
	i := 0
	for i < len(s.records) && s.records[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.records = append(s.records[:0], s.records[i:]...)
	}
}

// Ping reports whether the store is still open.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMemoryStoreClosed
	}
	return nil
}

// Close stops the background cleanup goroutine. Later calls fail as if the
// store connection had been dropped.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// cleanup periodically evicts keys with no live records.
func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

// evictStale removes keys whose newest record has left the window.
func (m *MemoryStore) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, s := range m.keys {
		s.prune(now.Add(-s.window))
		if len(s.records) == 0 {
			delete(m.keys, key)
		}
	}
}
