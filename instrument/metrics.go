// Package instrument decorates a cache.Cache with Prometheus metrics and
// OpenTelemetry tracing.
package instrument

import (
	"context"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Operation results recorded in the "result" label.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultOK    = "ok"
	ResultError = "error"
)

// Default latency buckets in seconds.
var defaultBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1}

// Collector holds the metric vectors shared by every MetricsCache.
type Collector struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewCollector creates the cache metrics below namespace and registers them
// with reg. Metrics already registered by an earlier collector are reused.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"cache", "op", "result"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Cache operation latency in seconds",
			Buckets:   defaultBuckets,
		},
		[]string{"cache", "op"},
	)
	var err error
	if operations, err = register(reg, operations); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	return &Collector{operations: operations, latency: latency}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "instrument: registering cache metrics")
	}
	return c, nil
}

// Wrap returns c instrumented under the given cache label.
func (col *Collector) Wrap(name string, c cache.Cache) *MetricsCache {
	return &MetricsCache{Cache: c, name: name, col: col}
}

// MetricsCache counts and times every operation of the wrapped cache.
type MetricsCache struct {
	cache.Cache
	name string
	col  *Collector
}

var _ cache.Cache = (*MetricsCache)(nil)

// Unwrap returns the instrumented cache.
func (m *MetricsCache) Unwrap() cache.Cache { return m.Cache }

func (m *MetricsCache) observe(op string, started time.Time, result string) {
	m.col.operations.WithLabelValues(m.name, op, result).Inc()
	m.col.latency.WithLabelValues(m.name, op).Observe(time.Since(started).Seconds())
}

func lookupResult(found bool, err error) string {
	switch {
	case err != nil:
		return ResultError
	case found:
		return ResultHit
	default:
		return ResultMiss
	}
}

func writeResult(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func (m *MetricsCache) Fetch(ctx context.Context, id string, namespace ...string) (any, bool, error) {
	started := time.Now()
	val, found, err := m.Cache.Fetch(ctx, id, namespace...)
	m.observe("fetch", started, lookupResult(found, err))
	return val, found, err
}

func (m *MetricsCache) Contains(ctx context.Context, id string, namespace ...string) (bool, error) {
	started := time.Now()
	found, err := m.Cache.Contains(ctx, id, namespace...)
	m.observe("contains", started, lookupResult(found, err))
	return found, err
}

func (m *MetricsCache) TimeToLive(ctx context.Context, id string, namespace ...string) (time.Duration, bool, error) {
	started := time.Now()
	ttl, found, err := m.Cache.TimeToLive(ctx, id, namespace...)
	m.observe("ttl", started, lookupResult(found, err))
	return ttl, found, err
}

func (m *MetricsCache) Save(ctx context.Context, id string, data any, lifetime time.Duration, namespace ...string) error {
	started := time.Now()
	err := m.Cache.Save(ctx, id, data, lifetime, namespace...)
	m.observe("save", started, writeResult(err))
	return err
}

func (m *MetricsCache) Delete(ctx context.Context, id string, namespace ...string) error {
	started := time.Now()
	err := m.Cache.Delete(ctx, id, namespace...)
	m.observe("delete", started, writeResult(err))
	return err
}

func (m *MetricsCache) Flush(ctx context.Context, namespace ...string) error {
	started := time.Now()
	err := m.Cache.Flush(ctx, namespace...)
	m.observe("flush", started, writeResult(err))
	return err
}
