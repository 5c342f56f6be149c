// Package extension provides the Forge extension adapter for tollgate.
//
// It implements the forge.Extension interface to integrate tollgate
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tollgate" or "tollgate" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/store/redis"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tollgate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Usage metering and plan entitlement enforcement"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts tollgate as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config       Config
	engine       *tollgate.Tollgate
	store        store.Store
	tollgateOpts []tollgate.Option
}

// New creates a new tollgate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying tollgate instance.
// This is nil until Register is called.
func (e *Extension) Engine() *tollgate.Tollgate { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildTollgateOpts()
	if err != nil {
		return err
	}

	e.engine = tollgate.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*tollgate.Tollgate, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tollgate: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tollgate: engine not initialized")
	}
	return e.engine.Ping(ctx)
}

// buildTollgateOpts constructs tollgate.Option values from the resolved config.
func (e *Extension) buildTollgateOpts() ([]tollgate.Option, error) {
	opts := make([]tollgate.Option, 0, len(e.tollgateOpts)+5)

	if e.config.DisableMigrate {
		opts = append(opts, tollgate.WithDisableMigrate())
	}

	if e.config.EntitlementCacheSize < 0 {
		opts = append(opts, tollgate.WithEntitlementCache(0, 0))
	} else {
		opts = append(opts, tollgate.WithEntitlementCache(e.config.EntitlementCacheSize, e.config.EntitlementCacheTTL))
	}

	opts = append(opts, tollgate.WithPluginTimeout(e.config.PluginTimeout))

	if e.config.SeedDefaultPlans {
		opts = append(opts, tollgate.WithSeedPlans(plan.DefaultCatalog()...))
	}

	if e.config.UsageRedisURL != "" {
		rs, err := redis.NewFromURL(e.config.UsageRedisURL)
		if err != nil {
			return nil, fmt.Errorf("tollgate: usage redis: %w", err)
		}
		opts = append(opts, tollgate.WithUsageStore(rs))
	}

	// Append any pass-through tollgate options.
	opts = append(opts, e.tollgateOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tollgate: configuration is required but not found in config files; " +
				"ensure 'extensions.tollgate' or 'tollgate' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tollgate: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("seed_default_plans", e.config.SeedDefaultPlans),
		forge.F("entitlement_cache_size", e.config.EntitlementCacheSize),
		forge.F("entitlement_cache_ttl", e.config.EntitlementCacheTTL),
		forge.F("plugin_timeout", e.config.PluginTimeout),
		forge.F("usage_redis", e.config.UsageRedisURL != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.tollgate", "tollgate"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("tollgate: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("tollgate: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.EntitlementCacheSize == 0 {
		cfg.EntitlementCacheSize = defaults.EntitlementCacheSize
	}
	if cfg.EntitlementCacheTTL == 0 {
		cfg.EntitlementCacheTTL = defaults.EntitlementCacheTTL
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.SeedDefaultPlans {
		yamlConfig.SeedDefaultPlans = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.UsageRedisURL == "" && programmaticConfig.UsageRedisURL != "" {
		yamlConfig.UsageRedisURL = programmaticConfig.UsageRedisURL
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.EntitlementCacheSize == 0 && programmaticConfig.EntitlementCacheSize != 0 {
		yamlConfig.EntitlementCacheSize = programmaticConfig.EntitlementCacheSize
	}
	if yamlConfig.EntitlementCacheTTL == 0 && programmaticConfig.EntitlementCacheTTL != 0 {
		yamlConfig.EntitlementCacheTTL = programmaticConfig.EntitlementCacheTTL
	}
	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
