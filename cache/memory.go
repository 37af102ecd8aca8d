package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process map guarded by a mutex. Values are stored
// as-is, so mutations to stored pointers are visible through the cache.
type MemoryStore struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]Entry
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       memoryConfig
	hook      func(ctx context.Context)
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ Clearer       = (*MemoryStore)(nil)
	_ PrefixRemover = (*MemoryStore)(nil)
)

type memoryConfig struct {
	expiryCheck time.Duration
	now         func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryConfig)

// WithExpiryCheck enables a background sweeper removing expired entries
// every d. Disabled by default.
func WithExpiryCheck(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.expiryCheck = d }
}

// WithMemoryClock overrides the time source used by the sweeper.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryStore returns an empty MemoryStore. The sweeper, if enabled,
// stops when parent is cancelled or the store is closed.
func NewMemoryStore(parent context.Context, opts ...MemoryOption) *MemoryStore {
	cfg := memoryConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(parent)
	s := &MemoryStore{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]Entry),
		cfg:     cfg,
	}
	if cfg.expiryCheck > 0 {
		s.waitGroup.Add(1)
		go s.run()
	}
	return s
}

// NewMemory returns a PathKeyCache over a new MemoryStore.
func NewMemory(ctx context.Context, opts ...Option) *PathKeyCache {
	return NewPathKeyCache(NewMemoryStore(ctx), opts...)
}

// OnWrite installs a hook invoked after every successful Put, outside the
// store lock. Used for backend specific housekeeping such as MemoryGC.
func (s *MemoryStore) OnWrite(hook func(ctx context.Context)) {
	s.mutex.Lock()
	s.hook = hook
	s.mutex.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mutex.Lock()
	_, ok := s.entries[key]
	s.mutex.Unlock()
	return ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, entry Entry, _ time.Duration) error {
	s.mutex.Lock()
	s.entries[key] = entry
	hook := s.hook
	s.mutex.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.entries, key)
	s.mutex.Unlock()
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) RemovePrefix(_ context.Context, prefix string) error {
	s.mutex.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mutex.Lock()
	s.entries = make(map[string]Entry)
	s.mutex.Unlock()
	return nil
}

// Purge removes every entry that expired before cutoff and returns how
// many were removed.
func (s *MemoryStore) Purge(cutoff time.Time) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var n int
	for key, e := range s.entries {
		if !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(cutoff) {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Size(context.Context) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return int64(len(s.entries)), nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	size, _ := s.Size(ctx)
	return Stats{StatsSize: size}, nil
}

func (s *MemoryStore) Available(context.Context) bool {
	return s.ctx.Err() == nil
}

// Close stops the sweeper. Entries stay readable.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.waitGroup.Wait()
	})
	return nil
}

func (s *MemoryStore) run() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(s.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Purge(s.cfg.now())
		}
	}
}
