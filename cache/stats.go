package cache

// Well known Stats keys. Backends add whatever else they can report.
const (
	StatsSize            = "size"
	StatsHits            = "hits"
	StatsMisses          = "misses"
	StatsUptime          = "uptime"
	StatsMemoryUsage     = "memory_usage"
	StatsMemoryAvailable = "memory_available"
	StatsTiers           = "tiers"
)

// Stats is a backend specific set of named values.
type Stats map[string]any

// Int returns the named value as an int64 if it holds any integer type.
func (s Stats) Int(key string) (int64, bool) {
	switch v := s[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Tiers returns the per-tier stats reported by a MultiLevelCache.
func (s Stats) Tiers() []Stats {
	tiers, _ := s[StatsTiers].([]Stats)
	return tiers
}
