package cache

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-tiercache/logger"
	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryProbe reports total and available memory in bytes.
type MemoryProbe func(ctx context.Context) (total, available uint64, err error)

// SystemMemory probes host memory through gopsutil.
func SystemMemory(ctx context.Context) (uint64, uint64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return v.Total, v.Available, nil
}

// GCOptions configures a MemoryGC. Zero thresholds are disabled.
type GCOptions struct {
	// TriggerPercent sweeps expired entries once available memory drops
	// below this percentage.
	TriggerPercent float64
	// TriggerSize sweeps expired entries once available memory drops below
	// this many bytes.
	TriggerSize uint64
	// ClearPercent clears the whole store below this percentage.
	ClearPercent float64
	// ClearSize clears the whole store below this many bytes.
	ClearSize uint64
	// GracePeriod keeps entries that expired less than this long ago.
	// Defaults to 5 minutes.
	GracePeriod time.Duration
	// Throttle is the minimum interval between two unforced runs.
	// Defaults to 10 seconds.
	Throttle time.Duration
	// Probe defaults to SystemMemory.
	Probe MemoryProbe
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger logger.Logger
}

// GCResult describes what a MemoryGC run did.
type GCResult int

const (
	// GCSkipped means the run was throttled.
	GCSkipped GCResult = iota
	// GCIdle means memory was above every threshold.
	GCIdle
	// GCSwept means expired entries past the grace period were removed.
	GCSwept
	// GCCleared means the whole store was cleared.
	GCCleared
)

// MemoryGC reclaims MemoryStore space when memory runs low.
type MemoryGC struct {
	store   *MemoryStore
	opts    GCOptions
	mu      sync.Mutex
	lastRun time.Time
}

// NewMemoryGC attaches a collector to store. It runs after every write,
// throttled by opts.Throttle.
func NewMemoryGC(store *MemoryStore, opts GCOptions) *MemoryGC {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Minute
	}
	if opts.Throttle <= 0 {
		opts.Throttle = 10 * time.Second
	}
	if opts.Probe == nil {
		opts.Probe = SystemMemory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	g := &MemoryGC{store: store, opts: opts}
	store.OnWrite(func(ctx context.Context) {
		if _, err := g.Run(ctx, false); err != nil {
			g.opts.Logger.Warn("memory gc failed: %v", err)
		}
	})
	return g
}

// Run checks memory and reclaims space. Unless force is set, runs closer
// together than the throttle interval are skipped.
func (g *MemoryGC) Run(ctx context.Context, force bool) (GCResult, error) {
	now := g.opts.Now()
	g.mu.Lock()
	if !force && !g.lastRun.IsZero() && now.Sub(g.lastRun) < g.opts.Throttle {
		g.mu.Unlock()
		return GCSkipped, nil
	}
	g.lastRun = now
	g.mu.Unlock()

	total, avail, err := g.opts.Probe(ctx)
	if err != nil {
		return GCIdle, err
	}
	// Percent thresholds need a known total; without one only sizes apply.
	availPercent := 100.0
	if total > 0 {
		availPercent = float64(avail) * 100 / float64(total)
	}

	if (g.opts.ClearPercent > 0 && availPercent < g.opts.ClearPercent) ||
		(g.opts.ClearSize > 0 && avail < g.opts.ClearSize) {
		g.opts.Logger.Info("memory gc clearing store, %.1f%% memory available", availPercent)
		return GCCleared, g.store.Clear(ctx)
	}
	if (g.opts.TriggerPercent > 0 && availPercent < g.opts.TriggerPercent) ||
		(g.opts.TriggerSize > 0 && avail < g.opts.TriggerSize) {
		n := g.store.Purge(now.Add(-g.opts.GracePeriod))
		g.opts.Logger.Debug("memory gc removed %d expired entries", n)
		return GCSwept, nil
	}
	return GCIdle, nil
}
