package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeProbe struct {
	mu        sync.Mutex
	total     uint64
	available uint64
}

func (p *fakeProbe) set(available uint64) {
	p.mu.Lock()
	p.available = available
	p.mu.Unlock()
}

func (p *fakeProbe) probe(context.Context) (uint64, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.available, nil
}

func newTestGC(t *testing.T, opts GCOptions) (*MemoryStore, *MemoryGC, *fakeProbe, *testClock) {
	t.Helper()
	probe := &fakeProbe{total: 1000, available: 900}
	clock := newTestClock()
	opts.Probe = probe.probe
	opts.Now = clock.Now
	store := NewMemoryStore(context.Background())
	t.Cleanup(func() { store.Close() })
	return store, NewMemoryGC(store, opts), probe, clock
}

func TestMemoryGCIdle(t *testing.T) {
	ctx := context.Background()
	_, gc, _, _ := newTestGC(t, GCOptions{TriggerPercent: 20, ClearPercent: 5})
	res, err := gc.Run(ctx, true)
	assert.NoError(t, err)
	assert.Equal(t, GCIdle, res)
}

func TestMemoryGCSweepRespectsGracePeriod(t *testing.T) {
	ctx := context.Background()
	store, gc, probe, clock := newTestGC(t, GCOptions{TriggerPercent: 20, GracePeriod: time.Minute})
	now := clock.Now()
	assert.NoError(t, store.Put(ctx, "stale", Entry{Data: 1, ExpiresAt: now.Add(-time.Hour)}, 0))
	assert.NoError(t, store.Put(ctx, "fresh", Entry{Data: 2, ExpiresAt: now.Add(-time.Second)}, 0))
	assert.NoError(t, store.Put(ctx, "live", Entry{Data: 3, ExpiresAt: now.Add(time.Hour)}, 0))

	probe.set(100)
	res, err := gc.Run(ctx, true)
	assert.NoError(t, err)
	assert.Equal(t, GCSwept, res)
	size, _ := store.Size(ctx)
	assert.Equal(t, int64(2), size)
	ok, _ := store.Exists(ctx, "stale")
	assert.False(t, ok)
}

func TestMemoryGCClear(t *testing.T) {
	ctx := context.Background()
	store, gc, probe, _ := newTestGC(t, GCOptions{TriggerPercent: 20, ClearSize: 50})
	assert.NoError(t, store.Put(ctx, "live", Entry{Data: 3}, 0))

	probe.set(40)
	res, err := gc.Run(ctx, true)
	assert.NoError(t, err)
	assert.Equal(t, GCCleared, res)
	size, _ := store.Size(ctx)
	assert.Equal(t, int64(0), size)
}

func TestMemoryGCThrottle(t *testing.T) {
	ctx := context.Background()
	_, gc, _, clock := newTestGC(t, GCOptions{TriggerPercent: 20, Throttle: time.Minute})

	res, err := gc.Run(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, GCIdle, res)
	res, _ = gc.Run(ctx, false)
	assert.Equal(t, GCSkipped, res)
	res, _ = gc.Run(ctx, true)
	assert.Equal(t, GCIdle, res)

	clock.Advance(2 * time.Minute)
	res, _ = gc.Run(ctx, false)
	assert.Equal(t, GCIdle, res)
}

func TestMemoryGCRunsOnWrite(t *testing.T) {
	ctx := context.Background()
	store, _, probe, _ := newTestGC(t, GCOptions{ClearPercent: 10})
	c := NewPathKeyCache(store)

	probe.set(50)
	assert.NoError(t, c.Save(ctx, "id", "value", NoExpiry))
	size, _ := store.Size(ctx)
	assert.Equal(t, int64(0), size)
}

func TestMemoryGCUnknownTotalUsesSizesOnly(t *testing.T) {
	ctx := context.Background()
	store, gc, probe, _ := newTestGC(t, GCOptions{ClearPercent: 50, ClearSize: 10})
	probe.mu.Lock()
	probe.total = 0
	probe.mu.Unlock()
	assert.NoError(t, store.Put(ctx, "id", Entry{Data: 1}, 0))

	res, err := gc.Run(ctx, true)
	assert.NoError(t, err)
	assert.Equal(t, GCIdle, res)
	ok, _ := store.Exists(ctx, "id")
	assert.True(t, ok)

	probe.set(5)
	res, err = gc.Run(ctx, true)
	assert.NoError(t, err)
	assert.Equal(t, GCCleared, res)
}
