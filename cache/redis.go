package cache

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultQueryTimeout is the per-operation timeout for the Redis store.
const DefaultQueryTimeout = 5 * time.Second

const scanCount = 256

// RedisStore keeps entries as msgpack strings in Redis with native TTL.
// The caller owns the client unless WithRedisOwnedClient is given.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	owned   bool
}

var (
	_ Store         = (*RedisStore)(nil)
	_ Clearer       = (*RedisStore)(nil)
	_ PrefixRemover = (*RedisStore)(nil)
)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix prepends prefix to every key, scoping Clear and Size to it.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisTimeout sets the per-operation timeout. Defaults to DefaultQueryTimeout.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRedisOwnedClient makes Close close the client.
func WithRedisOwnedClient() RedisOption {
	return func(s *RedisStore) { s.owned = true }
}

// NewRedisStore returns a store using client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedis returns a PathKeyCache over a new RedisStore.
func NewRedis(client redis.UniversalClient, redisOpts []RedisOption, opts ...Option) *PathKeyCache {
	return NewPathKeyCache(NewRedisStore(client, redisOpts...), opts...)
}

func (s *RedisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	buf, err := s.client.Get(qctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := unmarshalEntry(buf)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Exists(qctx, s.key(key)).Result()
	return n > 0, err
}

func (s *RedisStore) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	buf, err := marshalEntry(entry)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Set(qctx, s.key(key), buf, ttl).Err()
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Del(qctx, s.key(key)).Err()
}

// scan walks every physical key matching prefix with SCAN.
func (s *RedisStore) scan(ctx context.Context, prefix string, fn func(keys []string) error) error {
	match := globEscaper.Replace(s.key(prefix)) + "*"
	var cursor uint64
	for {
		qctx, cancel := s.queryCtx(ctx)
		keys, next, err := s.client.Scan(qctx, cursor, match, scanCount).Result()
		cancel()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.scan(ctx, prefix, func(keys []string) error {
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, s.prefix))
		}
		return nil
	})
	return out, err
}

func (s *RedisStore) RemovePrefix(ctx context.Context, prefix string) error {
	return s.scan(ctx, prefix, func(keys []string) error {
		qctx, cancel := s.queryCtx(ctx)
		defer cancel()
		return s.client.Del(qctx, keys...).Err()
	})
}

// Clear removes every key of this store. Without a prefix that is the
// whole database.
func (s *RedisStore) Clear(ctx context.Context) error {
	if s.prefix != "" {
		return s.RemovePrefix(ctx, "")
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.FlushDB(qctx).Err()
}

func (s *RedisStore) Size(ctx context.Context) (int64, error) {
	if s.prefix == "" {
		qctx, cancel := s.queryCtx(ctx)
		defer cancel()
		return s.client.DBSize(qctx).Result()
	}
	var n int64
	err := s.scan(ctx, "", func(keys []string) error {
		n += int64(len(keys))
		return nil
	})
	return n, err
}

// Stats reports the size plus uptime and memory usage from INFO when the
// server provides them.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	size, err := s.Size(ctx)
	if err != nil {
		return nil, err
	}
	stats := Stats{StatsSize: size}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	info, err := s.client.Info(qctx, "server", "memory").Result()
	if err != nil {
		return stats, nil
	}
	fields := parseInfo(info)
	if v, ok := fields["uptime_in_seconds"]; ok {
		stats[StatsUptime] = v
	}
	if v, ok := fields["used_memory"]; ok {
		stats[StatsMemoryUsage] = v
	}
	return stats, nil
}

func parseInfo(info string) map[string]int64 {
	out := make(map[string]int64)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			out[name] = n
		}
	}
	return out
}

func (s *RedisStore) Available(ctx context.Context) bool {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Ping(qctx).Err() == nil
}

func (s *RedisStore) Close() error {
	if s.owned {
		return errors.Wrap(s.client.Close(), "cache: closing redis client")
	}
	return nil
}
