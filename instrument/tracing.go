package instrument

import (
	"context"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentuity/go-tiercache/instrument"

// TracingCache starts a span for every operation of the wrapped cache.
type TracingCache struct {
	cache.Cache
	name   string
	tracer trace.Tracer
}

var _ cache.Cache = (*TracingCache)(nil)

// NewTracing wraps c. A nil provider uses the global one.
func NewTracing(c cache.Cache, name string, provider trace.TracerProvider) *TracingCache {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &TracingCache{Cache: c, name: name, tracer: provider.Tracer(tracerName)}
}

// Unwrap returns the traced cache.
func (t *TracingCache) Unwrap() cache.Cache { return t.Cache }

func (t *TracingCache) start(ctx context.Context, op, id string, namespace []string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("cache.name", t.name)}
	if id != "" {
		attrs = append(attrs, attribute.String("cache.id", id))
	}
	if len(namespace) > 0 {
		attrs = append(attrs, attribute.StringSlice("cache.namespace", namespace))
	}
	return t.tracer.Start(ctx, "cache."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}

func (t *TracingCache) Fetch(ctx context.Context, id string, namespace ...string) (any, bool, error) {
	ctx, span := t.start(ctx, "fetch", id, namespace)
	val, found, err := t.Cache.Fetch(ctx, id, namespace...)
	span.SetAttributes(attribute.Bool("cache.hit", found))
	finish(span, err)
	return val, found, err
}

func (t *TracingCache) Contains(ctx context.Context, id string, namespace ...string) (bool, error) {
	ctx, span := t.start(ctx, "contains", id, namespace)
	found, err := t.Cache.Contains(ctx, id, namespace...)
	span.SetAttributes(attribute.Bool("cache.hit", found))
	finish(span, err)
	return found, err
}

func (t *TracingCache) TimeToLive(ctx context.Context, id string, namespace ...string) (time.Duration, bool, error) {
	ctx, span := t.start(ctx, "ttl", id, namespace)
	ttl, found, err := t.Cache.TimeToLive(ctx, id, namespace...)
	span.SetAttributes(attribute.Bool("cache.hit", found))
	finish(span, err)
	return ttl, found, err
}

func (t *TracingCache) Save(ctx context.Context, id string, data any, lifetime time.Duration, namespace ...string) error {
	ctx, span := t.start(ctx, "save", id, namespace)
	span.SetAttributes(attribute.Int64("cache.lifetime_ms", lifetime.Milliseconds()))
	err := t.Cache.Save(ctx, id, data, lifetime, namespace...)
	finish(span, err)
	return err
}

func (t *TracingCache) Delete(ctx context.Context, id string, namespace ...string) error {
	ctx, span := t.start(ctx, "delete", id, namespace)
	err := t.Cache.Delete(ctx, id, namespace...)
	finish(span, err)
	return err
}

func (t *TracingCache) Flush(ctx context.Context, namespace ...string) error {
	ctx, span := t.start(ctx, "flush", "", namespace)
	err := t.Cache.Flush(ctx, namespace...)
	finish(span, err)
	return err
}

func (t *TracingCache) Stats(ctx context.Context) (cache.Stats, error) {
	ctx, span := t.start(ctx, "stats", "", nil)
	stats, err := t.Cache.Stats(ctx)
	finish(span, err)
	return stats, err
}
