package cache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("cache: storage failure")
	// ErrInvalidKey is matched by every *InvalidKeyError.
	ErrInvalidKey = errors.New("cache: invalid key")
	// ErrConfiguration is returned when a cache or store cannot be constructed.
	ErrConfiguration = errors.New("cache: invalid configuration")
	// ErrTierFailure is returned by MultiLevelCache when at least one tier
	// failed a write-through operation.
	ErrTierFailure = errors.New("cache: tier operation failed")
	// ErrCircuitOpen is returned by a BreakerStore while its breaker is open.
	ErrCircuitOpen = errors.New("cache: circuit breaker open")
)

// StorageError reports a failed operation on the underlying Store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// InvalidKeyError is raised by adapters whose backend rejects an id.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("cache: invalid key %q: %s", e.Key, e.Reason)
}

func (e *InvalidKeyError) Is(target error) bool { return target == ErrInvalidKey }
