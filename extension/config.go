package extension

import "time"

// Config holds the tollgate extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tollgate" or "tollgate" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// SeedDefaultPlans creates the Free, Pro and Enterprise plans on start
	// unless plans with those names already exist.
	SeedDefaultPlans bool `json:"seed_default_plans" mapstructure:"seed_default_plans" yaml:"seed_default_plans"`

	// EntitlementCacheSize is the number of organizations whose entitlement
	// is cached in-process (default: 10000). A negative value disables the cache.
	EntitlementCacheSize int `json:"entitlement_cache_size" mapstructure:"entitlement_cache_size" yaml:"entitlement_cache_size"`

	// EntitlementCacheTTL controls how long a resolved entitlement is
	// cached before it is read from the store again (default: 30s).
	EntitlementCacheTTL time.Duration `json:"entitlement_cache_ttl" mapstructure:"entitlement_cache_ttl" yaml:"entitlement_cache_ttl"`

	// PluginTimeout bounds how long a single plugin hook may run (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// UsageRedisURL, when set, keeps usage counters in Redis instead of the
	// main store, e.g. "redis://localhost:6379/0".
	UsageRedisURL string `json:"usage_redis_url" mapstructure:"usage_redis_url" yaml:"usage_redis_url"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EntitlementCacheSize: 10_000,
		EntitlementCacheTTL:  30 * time.Second,
		PluginTimeout:        5 * time.Second,
	}
}
