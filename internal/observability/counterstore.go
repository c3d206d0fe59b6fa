package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"shortener/internal/ratelimit"
)

// InstrumentedCounterStore wraps a ratelimit.CounterStore and records the
// latency of each evaluation, admitted and rejected hits, and store failures.
type InstrumentedCounterStore struct {
	inner     ratelimit.CounterStore
	tracer    trace.Tracer
	duration  metric.Float64Histogram
	decisions metric.Int64Counter
	failures  metric.Int64Counter
}

// NewInstrumentedCounterStore creates the wrapper. Keys are not recorded as
// attributes: they embed client addresses.
func NewInstrumentedCounterStore(inner ratelimit.CounterStore) (*InstrumentedCounterStore, error) {
	meter := otel.Meter("shortener/ratelimit")

	duration, err := meter.Float64Histogram(
		"ratelimit.store.duration",
		metric.WithDescription("Duration of counter store evaluations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	decisions, err := meter.Int64Counter(
		"ratelimit.hits",
		metric.WithDescription("Hits evaluated against the moving window, by outcome"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"ratelimit.store.errors",
		metric.WithDescription("Counter store calls that failed or timed out"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedCounterStore{
		inner:     inner,
		tracer:    otel.Tracer("shortener/ratelimit"),
		duration:  duration,
		decisions: decisions,
		failures:  failures,
	}, nil
}

func (s *InstrumentedCounterStore) RecordAndEvaluate(ctx context.Context, key string, window time.Duration, limit, cost int) (ratelimit.Evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.RecordAndEvaluate",
		trace.WithAttributes(
			attribute.Int("ratelimit.limit", limit),
			attribute.Int("ratelimit.cost", cost),
		),
	)
	defer span.End()

	start := time.Now()
	eval, err := s.inner.RecordAndEvaluate(ctx, key, window, limit, cost)
	s.duration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		s.failures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return eval, err
	}

	outcome := "admitted"
	if !eval.Allowed {
		outcome = "rejected"
	}
	s.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.SetAttributes(
		attribute.String("ratelimit.outcome", outcome),
		attribute.Int("ratelimit.used", eval.Used),
	)
	span.SetStatus(codes.Ok, "")
	return eval, nil
}

func (s *InstrumentedCounterStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *InstrumentedCounterStore) Close() error {
	return s.inner.Close()
}
