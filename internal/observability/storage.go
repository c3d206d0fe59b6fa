package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"shortener/internal/models"
	"shortener/internal/storage"
)

// InstrumentedStorage traces every link storage call and records its
// latency and unexpected failures.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	meter := otel.Meter("shortener/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   otel.Tracer("shortener/storage"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

// observe runs fn inside a storage span and records its latency. Missing
// links and lost code races are answers, not failures, and are not counted
// as errors.
func observe[T any](ctx context.Context, s *InstrumentedStorage, operation string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append(attrs, attribute.String("storage.operation", operation))...),
	)
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)
	opAttr := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), opAttr)

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrDuplicateCode):
		span.SetAttributes(attribute.String("storage.outcome", err.Error()))
	default:
		s.errors.Add(ctx, 1, opAttr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func codeAttr(code string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("link.code", code)}
}

func (s *InstrumentedStorage) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return observe(ctx, s, "ExistsByCode", codeAttr(code), func(ctx context.Context) (bool, error) {
		return s.inner.ExistsByCode(ctx, code)
	})
}

func (s *InstrumentedStorage) InsertLink(ctx context.Context, link *models.Link) error {
	_, err := observe(ctx, s, "InsertLink", codeAttr(link.Code), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.InsertLink(ctx, link)
	})
	return err
}

func (s *InstrumentedStorage) GetLinkByCode(ctx context.Context, code string) (*models.Link, error) {
	return observe(ctx, s, "GetLinkByCode", codeAttr(code), func(ctx context.Context) (*models.Link, error) {
		return s.inner.GetLinkByCode(ctx, code)
	})
}

// GetLinkByOriginalURL does not put the URL on the span; it may carry
// credentials or tokens in its query.
func (s *InstrumentedStorage) GetLinkByOriginalURL(ctx context.Context, url string) (*models.Link, error) {
	return observe(ctx, s, "GetLinkByOriginalURL", nil, func(ctx context.Context) (*models.Link, error) {
		return s.inner.GetLinkByOriginalURL(ctx, url)
	})
}

func (s *InstrumentedStorage) RecordAccess(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	return observe(ctx, s, "RecordAccess", codeAttr(code), func(ctx context.Context) (*models.Link, error) {
		return s.inner.RecordAccess(ctx, code, at)
	})
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	_, err := observe(ctx, s, "Ping", nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.Ping(ctx)
	})
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
