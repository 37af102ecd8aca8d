package cache

import (
	"context"
	"time"
)

// Simple is a namespace free view of a Cache for callers that only deal
// in flat ids.
type Simple struct {
	cache Cache
}

// NewSimple wraps c.
func NewSimple(c Cache) *Simple {
	return &Simple{cache: c}
}

// Get returns the value for id, or false if it is not cached.
func (s *Simple) Get(ctx context.Context, id string) (any, bool, error) {
	ok, err := s.cache.Contains(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.cache.Fetch(ctx, id)
}

func (s *Simple) Has(ctx context.Context, id string) (bool, error) {
	return s.cache.Contains(ctx, id)
}

// Set stores val for lifetime; 0 keeps it forever.
func (s *Simple) Set(ctx context.Context, id string, val any, lifetime time.Duration) error {
	return s.cache.Save(ctx, id, val, lifetime)
}

func (s *Simple) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, id)
}

func (s *Simple) Clear(ctx context.Context) error {
	return s.cache.Flush(ctx)
}

func (s *Simple) Stats(ctx context.Context) (Stats, error) {
	return s.cache.Stats(ctx)
}
