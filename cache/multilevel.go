package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/go-tiercache/logger"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

// MultiLevelCache composes an ordered stack of caches. Index 0 is the
// nearest tier and is consulted first.
//
// Reads return the first hit; writes go to every tier. Tier failures are
// logged and never surface as errors from reads. Writes report
// ErrTierFailure if any tier failed, after every tier has been attempted.
// There is no rollback, so tiers can disagree after a partial failure.
type MultiLevelCache struct {
	tiers      []Cache
	bubble     bool
	background bool
	log        logger.Logger
	promotions singleflight.Group
	pending    sync.WaitGroup
}

var _ Cache = (*MultiLevelCache)(nil)

// MultiLevelOption configures a MultiLevelCache.
type MultiLevelOption func(*MultiLevelCache)

// WithBubbleOnFetch enables promotion of values found in a farther tier
// into every nearer tier.
func WithBubbleOnFetch(bubble bool) MultiLevelOption {
	return func(m *MultiLevelCache) { m.bubble = bubble }
}

// WithBackgroundPromotion runs promotion writes on a separate goroutine so
// Fetch returns as soon as the value is found. Use Wait to drain them.
func WithBackgroundPromotion() MultiLevelOption {
	return func(m *MultiLevelCache) { m.background = true }
}

// WithTierLogger sets the logger receiving tier warnings.
func WithTierLogger(log logger.Logger) MultiLevelOption {
	return func(m *MultiLevelCache) {
		if log != nil {
			m.log = log
		}
	}
}

// NewMultiLevelCache builds a tiered cache from tiers. Tiers that are not
// available are dropped with a warning and closed. The resulting stack is fixed.
// An empty stack yields a cache that is not available and behaves like a
// NullCache.
func NewMultiLevelCache(ctx context.Context, tiers []Cache, opts ...MultiLevelOption) *MultiLevelCache {
	m := &MultiLevelCache{log: logger.NewNopLogger()}
	for _, opt := range opts {
		opt(m)
	}
	m.tiers = make([]Cache, 0, len(tiers))
	for i, tier := range tiers {
		if tier == nil || !tier.Available(ctx) {
			m.log.Warn("cache tier %d (%T) is not available, removing from stack", i, tier)
			if tier != nil {
				if err := tier.Close(); err != nil {
					m.log.Warn("cache tier %d close failed: %v", i, err)
				}
			}
			continue
		}
		m.tiers = append(m.tiers, tier)
	}
	if len(m.tiers) == 0 {
		m.log.Warn("cache stack is empty, multi-level cache is disabled")
	}
	return m
}

// Tiers returns the available tiers in lookup order.
func (m *MultiLevelCache) Tiers() []Cache {
	out := make([]Cache, len(m.tiers))
	copy(out, m.tiers)
	return out
}

// BubbleOnFetch reports whether fetch promotion is enabled.
func (m *MultiLevelCache) BubbleOnFetch() bool { return m.bubble }

func (m *MultiLevelCache) Available(context.Context) bool {
	return len(m.tiers) > 0
}

func (m *MultiLevelCache) Fetch(ctx context.Context, id string, namespace ...string) (any, bool, error) {
	for i, tier := range m.tiers {
		data, ok, err := tier.Fetch(ctx, id, namespace...)
		if err != nil {
			m.log.Warn("cache tier %d fetch %q failed: %v", i, id, err)
			continue
		}
		if !ok {
			continue
		}
		if m.bubble && i > 0 {
			m.promote(ctx, i, id, data, namespace)
		}
		return data, true, nil
	}
	return nil, false, nil
}

func promotionKey(id string, namespace []string) string {
	return strings.Join(append(append([]string{}, namespace...), id), "\x00")
}

// promote copies data found in tier hit into every nearer tier using the
// remaining lifetime reported by the hitting tier.
func (m *MultiLevelCache) promote(ctx context.Context, hit int, id string, data any, namespace []string) {
	run := func(ctx context.Context) {
		m.promotions.Do(promotionKey(id, namespace), func() (any, error) {
			ttl, ok, err := m.tiers[hit].TimeToLive(ctx, id, namespace...)
			if err != nil {
				m.log.Warn("cache tier %d ttl %q failed, skipping promotion: %v", hit, id, err)
				return nil, nil
			}
			if !ok {
				return nil, nil
			}
			for i := hit - 1; i >= 0; i-- {
				if err := m.tiers[i].Save(ctx, id, data, ttl, namespace...); err != nil {
					m.log.Warn("cache tier %d promotion of %q failed: %v", i, id, err)
				}
			}
			return nil, nil
		})
	}
	if !m.background {
		run(ctx)
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		run(context.WithoutCancel(ctx))
	}()
}

// Wait blocks until all background promotions have finished.
func (m *MultiLevelCache) Wait() {
	m.pending.Wait()
}

func (m *MultiLevelCache) Contains(ctx context.Context, id string, namespace ...string) (bool, error) {
	for i, tier := range m.tiers {
		ok, err := tier.Contains(ctx, id, namespace...)
		if err != nil {
			m.log.Warn("cache tier %d contains %q failed: %v", i, id, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *MultiLevelCache) TimeToLive(ctx context.Context, id string, namespace ...string) (time.Duration, bool, error) {
	for i, tier := range m.tiers {
		ttl, ok, err := tier.TimeToLive(ctx, id, namespace...)
		if err != nil {
			m.log.Warn("cache tier %d ttl %q failed: %v", i, id, err)
			continue
		}
		if ok {
			return ttl, true, nil
		}
	}
	return 0, false, nil
}

func (m *MultiLevelCache) DefaultTimeToLive() time.Duration { return 0 }

// each runs fn against every tier and reports ErrTierFailure if any failed.
func (m *MultiLevelCache) each(op, id string, fn func(Cache) error) error {
	var failed int
	for i, tier := range m.tiers {
		if err := fn(tier); err != nil {
			failed++
			m.log.Warn("cache tier %d %s %q failed: %v", i, op, id, err)
		}
	}
	if failed > 0 {
		return errors.Wrapf(ErrTierFailure, "%s: %d of %d tiers failed", op, failed, len(m.tiers))
	}
	return nil
}

func (m *MultiLevelCache) Save(ctx context.Context, id string, data any, lifetime time.Duration, namespace ...string) error {
	return m.each("save", id, func(c Cache) error {
		return c.Save(ctx, id, data, lifetime, namespace...)
	})
}

func (m *MultiLevelCache) Delete(ctx context.Context, id string, namespace ...string) error {
	return m.each("delete", id, func(c Cache) error {
		return c.Delete(ctx, id, namespace...)
	})
}

func (m *MultiLevelCache) Flush(ctx context.Context, namespace ...string) error {
	return m.each("flush", strings.Join(namespace, "/"), func(c Cache) error {
		return c.Flush(ctx, namespace...)
	})
}

// TierStats returns each tier's own stats in stack order. A tier whose
// stats fail reports only an "error" field.
func (m *MultiLevelCache) TierStats(ctx context.Context) []Stats {
	out := make([]Stats, 0, len(m.tiers))
	for _, tier := range m.tiers {
		stats, err := tier.Stats(ctx)
		if err != nil {
			stats = Stats{"error": err.Error()}
		}
		out = append(out, stats)
	}
	return out
}

// Stats returns the per-tier stats under StatsTiers. Nothing is aggregated.
func (m *MultiLevelCache) Stats(ctx context.Context) (Stats, error) {
	return Stats{StatsTiers: m.TierStats(ctx)}, nil
}

// Close waits for pending promotions and closes every tier.
func (m *MultiLevelCache) Close() error {
	m.pending.Wait()
	var firstErr error
	for _, tier := range m.tiers {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
