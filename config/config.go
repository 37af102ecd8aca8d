// Package config describes a cache stack in YAML and builds it.
//
//	delimiter: "=="
//	default_ttl: 1h
//	namespace: [myapp]
//	bubble_on_fetch: true
//	tiers:
//	  - type: memory
//	    expiry_check: 1m
//	  - type: redis
//	    address: ${REDIS_ADDR}
//	    breaker:
//	      max_failures: 3
//	      timeout: 30s
package config

import (
	"os"
	"strings"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Tier types.
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeSQLite     = "sqlite"
	TypeSQL        = "sql"
	TypeRedis      = "redis"
	TypeNull       = "none"
)

// Duration is a time.Duration read from strings such as "90s", "1h30m" or "2d".
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return str2duration.String(time.Duration(d)), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		*d = 0
		return nil
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(v)
	return nil
}

// ByteSize is a byte count read from plain integers or quantities such as
// "512Mi" or "2G".
type ByteSize uint64

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return resource.NewQuantity(int64(b), resource.BinarySI).String(), nil
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	q, err := resource.ParseQuantity(strings.TrimSpace(s))
	if err != nil || q.Sign() < 0 {
		return errors.Wrapf(ErrInvalid, "line %d: invalid size %q", value.Line, s)
	}
	*b = ByteSize(q.Value())
	return nil
}

// ErrInvalid is returned for configuration that cannot be parsed or built.
// It matches cache.ErrConfiguration.
var ErrInvalid = errors.Wrap(cache.ErrConfiguration, "config")

// Config is a complete cache stack.
type Config struct {
	// Delimiter joins namespace segments in backend keys.
	Delimiter string `yaml:"delimiter,omitempty"`
	// DefaultTTL applies to saves using cache.DefaultLifetime. Tiers may override it.
	DefaultTTL Duration `yaml:"default_ttl,omitempty"`
	// Namespace prefixes every id of the built cache.
	Namespace           []string `yaml:"namespace,omitempty"`
	BubbleOnFetch       bool     `yaml:"bubble_on_fetch,omitempty"`
	BackgroundPromotion bool     `yaml:"background_promotion,omitempty"`
	Metrics             *Metrics `yaml:"metrics,omitempty"`
	Tracing             bool     `yaml:"tracing,omitempty"`
	Tiers               []Tier   `yaml:"tiers"`
}

// Metrics enables Prometheus metrics for every tier.
type Metrics struct {
	Namespace string `yaml:"namespace,omitempty"`
}

// Tier is one level of the stack. Only the fields of its type are used.
type Tier struct {
	Type string `yaml:"type"`
	// Name labels the tier in logs and metrics. Defaults to the type.
	Name       string    `yaml:"name,omitempty"`
	DefaultTTL *Duration `yaml:"default_ttl,omitempty"`

	// memory
	ExpiryCheck Duration  `yaml:"expiry_check,omitempty"`
	GC          *GCConfig `yaml:"gc,omitempty"`

	// filesystem
	Directory string `yaml:"directory,omitempty"`
	HardFlush bool   `yaml:"hard_flush,omitempty"`

	// sqlite (Path) and sql (Driver, DSN)
	Path   string `yaml:"path,omitempty"`
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	Table  string `yaml:"table,omitempty"`

	// redis
	URL      string   `yaml:"url,omitempty"`
	Address  string   `yaml:"address,omitempty"`
	Password string   `yaml:"password,omitempty"`
	DB       int      `yaml:"db,omitempty"`
	Prefix   string   `yaml:"prefix,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`

	// sql, sqlite and redis
	Breaker *BreakerConfig `yaml:"breaker,omitempty"`

	// none (a NullCache)
	Available *bool `yaml:"available,omitempty"`
}

// GCConfig enables the memory collector of a memory tier.
type GCConfig struct {
	TriggerPercent float64  `yaml:"trigger_percent,omitempty"`
	TriggerSize    ByteSize `yaml:"trigger_size,omitempty"`
	ClearPercent   float64  `yaml:"clear_percent,omitempty"`
	ClearSize      ByteSize `yaml:"clear_size,omitempty"`
	GracePeriod    Duration `yaml:"grace_period,omitempty"`
	Throttle       Duration `yaml:"throttle,omitempty"`
}

// BreakerConfig guards a remote tier with a circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32   `yaml:"max_failures,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// Label returns the tier name, or its type if unnamed.
func (t Tier) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Type
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "failed to read %s: %v", path, err)
	}
	cfg, err := Parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// Parse decodes YAML after expanding environment variables and validates
// the result.
func Parse(buf []byte) (*Config, error) {
	var cfg Config
	expanded := os.ExpandEnv(string(buf))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		if errors.Is(err, cache.ErrConfiguration) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrInvalid, "failed to decode YAML: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every tier has the fields its type requires.
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return errors.Wrap(ErrInvalid, "at least one tier is required")
	}
	for i, t := range c.Tiers {
		if err := t.validate(); err != nil {
			return errors.Wrapf(err, "tier %d", i)
		}
	}
	return nil
}

func (t Tier) validate() error {
	switch t.Type {
	case TypeMemory, TypeNull:
	case TypeFilesystem:
		if t.Directory == "" {
			return errors.Wrap(ErrInvalid, "filesystem tier requires directory")
		}
	case TypeSQLite:
	case TypeSQL:
		if t.Driver == "" || t.DSN == "" {
			return errors.Wrap(ErrInvalid, "sql tier requires driver and dsn")
		}
	case TypeRedis:
		if t.URL == "" && t.Address == "" {
			return errors.Wrap(ErrInvalid, "redis tier requires url or address")
		}
	case "":
		return errors.Wrap(ErrInvalid, "missing tier type")
	default:
		return errors.Wrapf(ErrInvalid, "unknown tier type %q", t.Type)
	}
	if t.GC != nil && t.Type != TypeMemory {
		return errors.Wrapf(ErrInvalid, "gc is only supported on memory tiers, not %s", t.Type)
	}
	if t.Breaker != nil && t.Type != TypeSQL && t.Type != TypeSQLite && t.Type != TypeRedis {
		return errors.Wrapf(ErrInvalid, "breaker is only supported on remote tiers, not %s", t.Type)
	}
	return nil
}
