package instrument

import (
	"context"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/cockroachdb/errors"
)

var errBroken = errors.New("broken")

type brokenCache struct {
	*cache.NullCache
}

func newBrokenCache() brokenCache {
	return brokenCache{NullCache: cache.NewNullCache(true)}
}

func (brokenCache) Fetch(context.Context, string, ...string) (any, bool, error) {
	return nil, false, errBroken
}

func (brokenCache) Save(context.Context, string, any, time.Duration, ...string) error {
	return errBroken
}
