package cache

import (
	"time"

	"github.com/agentuity/go-tiercache/logger"
)

// config holds the resolved configuration for a PathKeyCache.
type config struct {
	defaultTTL time.Duration
	delimiter  string
	now        func() time.Time
	log        logger.Logger
}

// Option configures a PathKeyCache.
type Option func(*config)

func defaultConfig() config {
	return config{
		delimiter: DefaultDelimiter,
		now:       time.Now,
		log:       logger.NewNopLogger(),
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithDefaultTTL sets the lifetime used when Save is called with
// DefaultLifetime. Defaults to 0 (never expire). Negative values are ignored.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.defaultTTL = d
		}
	}
}

// WithDelimiter sets the namespace delimiter. Defaults to DefaultDelimiter.
func WithDelimiter(delim string) Option {
	return func(c *config) {
		if delim != "" {
			c.delimiter = delim
		}
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}
