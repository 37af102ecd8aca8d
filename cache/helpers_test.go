package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBackend = errors.New("backend down")

// failingStore fails every operation but claims to be available.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errBackend
}
func (failingStore) Exists(context.Context, string) (bool, error) { return false, errBackend }
func (failingStore) Put(context.Context, string, Entry, time.Duration) error {
	return errBackend
}
func (failingStore) Remove(context.Context, string) error           { return errBackend }
func (failingStore) Scan(context.Context, string) ([]string, error) { return nil, errBackend }
func (failingStore) Size(context.Context) (int64, error)            { return 0, errBackend }
func (failingStore) Stats(context.Context) (Stats, error)           { return nil, errBackend }
func (failingStore) Available(context.Context) bool                 { return true }
func (failingStore) Close() error                                   { return nil }

// flakyStore wraps a store and fails while down is set.
type flakyStore struct {
	Store
	mu   sync.Mutex
	down bool
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

func (s *flakyStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if s.failing() {
		return Entry{}, false, errBackend
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.failing() {
		return false, errBackend
	}
	return s.Store.Exists(ctx, key)
}

func (s *flakyStore) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	if s.failing() {
		return errBackend
	}
	return s.Store.Put(ctx, key, entry, ttl)
}

func newClockedMemory(t interface{ Cleanup(func()) }, clock *testClock, opts ...Option) *PathKeyCache {
	c := NewPathKeyCache(NewMemoryStore(context.Background()), append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(func() { c.Close() })
	return c
}
