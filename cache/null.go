package cache

import (
	"context"
	"time"
)

// NullCache stores nothing. Writes succeed, reads miss.
type NullCache struct {
	available bool
}

var _ Cache = (*NullCache)(nil)

// NewNullCache returns a NullCache reporting the given availability.
func NewNullCache(available bool) *NullCache {
	return &NullCache{available: available}
}

func (c *NullCache) Available(context.Context) bool { return c.available }

func (c *NullCache) Fetch(context.Context, string, ...string) (any, bool, error) {
	return nil, false, nil
}

func (c *NullCache) Contains(context.Context, string, ...string) (bool, error) {
	return false, nil
}

func (c *NullCache) TimeToLive(context.Context, string, ...string) (time.Duration, bool, error) {
	return 0, false, nil
}

func (c *NullCache) DefaultTimeToLive() time.Duration { return 0 }

func (c *NullCache) Save(context.Context, string, any, time.Duration, ...string) error { return nil }

func (c *NullCache) Delete(context.Context, string, ...string) error { return nil }

func (c *NullCache) Flush(context.Context, ...string) error { return nil }

func (c *NullCache) Stats(context.Context) (Stats, error) {
	return Stats{StatsSize: int64(0)}, nil
}

func (c *NullCache) Close() error { return nil }
