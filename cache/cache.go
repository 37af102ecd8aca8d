package cache

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// NoExpiry stores an entry that never expires.
	NoExpiry time.Duration = 0
	// DefaultLifetime asks the cache to apply its configured default time-to-live.
	DefaultLifetime time.Duration = math.MinInt64
)

// Cache is the contract shared by every backend and decorator.
//
// Every method takes an optional namespace path. Lifetimes passed to Save
// follow three rules: DefaultLifetime applies the cache default, NoExpiry (0)
// keeps the entry forever and any other negative value deletes the entry.
type Cache interface {
	// Available reports whether the cache can be used at all.
	Available(ctx context.Context) bool
	// Fetch returns the stored value and true, or false if the id is absent or expired.
	Fetch(ctx context.Context, id string, namespace ...string) (any, bool, error)
	// Contains reports whether a live entry exists. It never mutates state.
	Contains(ctx context.Context, id string, namespace ...string) (bool, error)
	// TimeToLive returns the remaining lifetime, 0 for entries that never
	// expire, and false if the id is absent.
	TimeToLive(ctx context.Context, id string, namespace ...string) (time.Duration, bool, error)
	// DefaultTimeToLive is the lifetime applied for DefaultLifetime.
	DefaultTimeToLive() time.Duration
	Save(ctx context.Context, id string, data any, lifetime time.Duration, namespace ...string) error
	// Delete removes the id. Deleting an absent id succeeds.
	Delete(ctx context.Context, id string, namespace ...string) error
	// Flush removes everything in namespace, or everything when no namespace is given.
	Flush(ctx context.Context, namespace ...string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Decode converts a fetched value into T. Values stored by in-process
// backends are type asserted, Encoded values from serializing backends are
// unmarshalled with msgpack.
func Decode[T any](val any) (T, error) {
	var zero T
	if enc, ok := val.(Encoded); ok {
		var result T
		if err := msgpack.Unmarshal(enc, &result); err != nil {
			return zero, errors.Wrap(err, "cache: failed to unmarshal value")
		}
		return result, nil
	}
	if typed, ok := val.(T); ok {
		return typed, nil
	}
	return zero, errors.Newf("cache: cannot convert value of type %T to %T", val, zero)
}

// Fetch retrieves a typed value from c.
func Fetch[T any](ctx context.Context, c Cache, id string, namespace ...string) (T, bool, error) {
	var zero T
	val, found, err := c.Fetch(ctx, id, namespace...)
	if !found || err != nil {
		return zero, false, err
	}
	typed, err := Decode[T](val)
	if err != nil {
		return zero, false, err
	}
	return typed, true, nil
}

// ExecConfig configures the Exec helper.
type ExecConfig struct {
	// ID is the cache id. Required.
	ID string
	// Namespace scopes ID.
	Namespace []string
	// Lifetime for stored values. The zero value stores forever; use
	// DefaultLifetime to apply the cache default.
	Lifetime time.Duration
}

// Invoker is a function that produces a value of type T.
// The bool return indicates whether a value was found. Return false to signal
// "not found" without caching a zero value.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a cache-aside helper. On a hit the cached value is returned. On a
// miss invoke produces the value, which is stored if invoke reports it found.
// Cache read errors are returned without calling invoke; a failing Save
// after a successful invoke is swallowed since the caller got their value.
func Exec[T any](ctx context.Context, config ExecConfig, c Cache, invoke Invoker[T]) (T, bool, error) {
	var zero T
	val, found, err := Fetch[T](ctx, c, config.ID, config.Namespace...)
	if err != nil {
		return zero, false, err
	}
	if found {
		return val, true, nil
	}

	result, ok, err := invoke(ctx)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	_ = c.Save(ctx, config.ID, result, config.Lifetime, config.Namespace...)
	return result, true, nil
}
