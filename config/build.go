package config

import (
	"context"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/agentuity/go-tiercache/instrument"
	"github.com/agentuity/go-tiercache/logger"
	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

type buildOptions struct {
	log        logger.Logger
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithLogger sets the logger for tiers and the stack.
func WithLogger(log logger.Logger) BuildOption {
	return func(o *buildOptions) { o.log = log }
}

// WithRegisterer sets where tier metrics are registered. Defaults to the
// Prometheus default registerer.
func WithRegisterer(reg prometheus.Registerer) BuildOption {
	return func(o *buildOptions) { o.registerer = reg }
}

// WithTracerProvider sets the provider used when tracing is enabled.
func WithTracerProvider(tp trace.TracerProvider) BuildOption {
	return func(o *buildOptions) { o.tracer = tp }
}

// Build constructs the stack described by cfg. Closing the returned cache
// closes every tier, and tiers dropped as unavailable are closed right away.
// Memory tier sweepers stop when ctx is done. If a tier fails to build, the
// tiers built so far are closed and the error is returned.
func Build(ctx context.Context, cfg *Config, opts ...BuildOption) (cache.Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions{log: logger.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	var collector *instrument.Collector
	if cfg.Metrics != nil {
		var err error
		if collector, err = instrument.NewCollector(o.registerer, cfg.Metrics.Namespace); err != nil {
			return nil, err
		}
	}

	tiers := make([]cache.Cache, 0, len(cfg.Tiers))
	for i, t := range cfg.Tiers {
		tier, err := buildTier(ctx, cfg, t, o.log.With(map[string]interface{}{"tier": t.Label()}))
		if err != nil {
			for _, built := range tiers {
				built.Close()
			}
			return nil, errors.Wrapf(err, "tier %d (%s)", i, t.Label())
		}
		if collector != nil {
			tier = collector.Wrap(t.Label(), tier)
		}
		tiers = append(tiers, tier)
	}

	mlOpts := []cache.MultiLevelOption{
		cache.WithBubbleOnFetch(cfg.BubbleOnFetch),
		cache.WithTierLogger(o.log),
	}
	if cfg.BackgroundPromotion {
		mlOpts = append(mlOpts, cache.WithBackgroundPromotion())
	}
	var result cache.Cache = cache.NewMultiLevelCache(ctx, tiers, mlOpts...)
	if len(cfg.Namespace) > 0 {
		result = cache.NewNamespaceCache(result, cfg.Namespace...)
	}
	if cfg.Tracing {
		result = instrument.NewTracing(result, "tiercache", o.tracer)
	}
	return result, nil
}

func cacheOptions(cfg *Config, t Tier, log logger.Logger) []cache.Option {
	ttl := cfg.DefaultTTL
	if t.DefaultTTL != nil {
		ttl = *t.DefaultTTL
	}
	return []cache.Option{
		cache.WithDefaultTTL(ttl.Duration()),
		cache.WithDelimiter(cfg.Delimiter),
		cache.WithLogger(log),
	}
}

func buildTier(ctx context.Context, cfg *Config, t Tier, log logger.Logger) (cache.Cache, error) {
	opts := cacheOptions(cfg, t, log)
	switch t.Type {
	case TypeMemory:
		var memOpts []cache.MemoryOption
		if t.ExpiryCheck > 0 {
			memOpts = append(memOpts, cache.WithExpiryCheck(t.ExpiryCheck.Duration()))
		}
		store := cache.NewMemoryStore(ctx, memOpts...)
		if t.GC != nil {
			cache.NewMemoryGC(store, cache.GCOptions{
				TriggerPercent: t.GC.TriggerPercent,
				TriggerSize:    uint64(t.GC.TriggerSize),
				ClearPercent:   t.GC.ClearPercent,
				ClearSize:      uint64(t.GC.ClearSize),
				GracePeriod:    t.GC.GracePeriod.Duration(),
				Throttle:       t.GC.Throttle.Duration(),
				Logger:         log,
			})
		}
		return cache.NewPathKeyCache(store, opts...), nil

	case TypeFilesystem:
		c, err := cache.NewFilesystem(t.Directory, []cache.FileOption{cache.WithHardFlush(t.HardFlush)}, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil

	case TypeSQLite:
		store, err := cache.NewSQLite(ctx, t.Path, sqlOptions(t)...)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "sqlite: %v", err)
		}
		return cache.NewPathKeyCache(guard(t, store, log), opts...), nil

	case TypeSQL:
		db, err := sqlx.Open(t.Driver, t.DSN)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "sql: %v", err)
		}
		store, err := cache.NewSQLStore(ctx, db, append(sqlOptions(t), cache.WithOwnedDB())...)
		if err != nil {
			db.Close()
			return nil, errors.Wrapf(ErrInvalid, "sql: %v", err)
		}
		return cache.NewPathKeyCache(guard(t, store, log), opts...), nil

	case TypeRedis:
		client, err := redisClient(t)
		if err != nil {
			return nil, err
		}
		redisOpts := []cache.RedisOption{cache.WithRedisPrefix(t.Prefix), cache.WithRedisOwnedClient()}
		if t.Timeout > 0 {
			redisOpts = append(redisOpts, cache.WithRedisTimeout(t.Timeout.Duration()))
		}
		return cache.NewPathKeyCache(guard(t, cache.NewRedisStore(client, redisOpts...), log), opts...), nil

	case TypeNull:
		available := true
		if t.Available != nil {
			available = *t.Available
		}
		return cache.NewNullCache(available), nil
	}
	return nil, errors.Wrapf(ErrInvalid, "unknown tier type %q", t.Type)
}

func sqlOptions(t Tier) []cache.SQLOption {
	if t.Table == "" {
		return nil
	}
	table := cache.DefaultSQLTable()
	table.Table = t.Table
	return []cache.SQLOption{cache.WithSQLTable(table)}
}

func redisClient(t Tier) (*redis.Client, error) {
	if t.URL != "" {
		opts, err := redis.ParseURL(t.URL)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "redis url: %v", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     t.Address,
		Password: t.Password,
		DB:       t.DB,
	}), nil
}

func guard(t Tier, store cache.Store, log logger.Logger) cache.Store {
	if t.Breaker == nil {
		return store
	}
	return cache.NewBreakerStore(store, cache.BreakerSettings{
		Name:        t.Label(),
		MaxFailures: t.Breaker.MaxFailures,
		Timeout:     t.Breaker.Timeout.Duration(),
		Logger:      log,
	})
}
