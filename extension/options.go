package extension

import (
	"time"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/store"
)

// Option configures the tollgate Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTollgateOption passes a tollgate.Option through to the underlying engine.
func WithTollgateOption(opt tollgate.Option) Option {
	return func(e *Extension) {
		e.tollgateOpts = append(e.tollgateOpts, opt)
	}
}

// WithPlugin registers a tollgate plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.tollgateOpts = append(e.tollgateOpts, tollgate.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithSeedDefaultPlans seeds the default plan catalog on start.
func WithSeedDefaultPlans() Option {
	return func(e *Extension) { e.config.SeedDefaultPlans = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithEntitlementCache sizes the in-process entitlement cache.
func WithEntitlementCache(size int, ttl time.Duration) Option {
	return func(e *Extension) {
		e.config.EntitlementCacheSize = size
		e.config.EntitlementCacheTTL = ttl
	}
}

// WithPluginTimeout bounds how long a single plugin hook may run.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithUsageRedisURL keeps usage counters in the Redis instance at url.
func WithUsageRedisURL(url string) Option {
	return func(e *Extension) { e.config.UsageRedisURL = url }
}
