package tollgate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/usage"
)

// Default entitlement cache settings.
const (
	DefaultEntitlementCacheSize = 10_000
	DefaultEntitlementCacheTTL  = 30 * time.Second
)

// Tollgate is the metering and enforcement engine.
type Tollgate struct {
	store    store.Store
	usage    usage.Store
	ledger   *usage.Ledger
	resolver *entitlement.Resolver
	metrics  *gate.Registry
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	// Configuration
	cacheSize      int
	cacheTTL       time.Duration
	disableMigrate bool
	seed           []*plan.Plan
}

// New creates a new Tollgate instance.
func New(s store.Store, opts ...Option) *Tollgate {
	t := &Tollgate{
		store:     s,
		usage:     s,
		metrics:   gate.DefaultRegistry(),
		plugins:   plugin.NewRegistry(),
		logger:    slog.Default(),
		now:       time.Now,
		cacheSize: DefaultEntitlementCacheSize,
		cacheTTL:  DefaultEntitlementCacheTTL,
	}

	for _, opt := range opts {
		opt(t)
	}

	t.ledger = usage.NewLedger(t.usage,
		usage.WithClock(t.now),
		usage.WithLogger(t.logger),
	)
	t.resolver = entitlement.NewResolver(s,
		entitlement.WithCache(t.cacheSize, t.cacheTTL),
		entitlement.WithClock(t.now),
		entitlement.WithLogger(t.logger),
		entitlement.WithExpiryHook(func(ctx context.Context, sub *subscription.Subscription) {
			t.plugins.EmitSubscriptionExpired(ctx, sub)
		}),
	)

	return t
}

// Option configures a Tollgate instance.
type Option func(*Tollgate)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tollgate) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithClock overrides the time source used for periods and expiry.
func WithClock(now func() time.Time) Option {
	return func(t *Tollgate) { t.now = now }
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tollgate) {
		_ = t.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds how long a single plugin hook may run.
func WithPluginTimeout(d time.Duration) Option {
	return func(t *Tollgate) { t.plugins.WithTimeout(d) }
}

// WithEntitlementCache sizes the in-process entitlement cache. A zero
// size or ttl disables it.
func WithEntitlementCache(size int, ttl time.Duration) Option {
	return func(t *Tollgate) {
		t.cacheSize = size
		t.cacheTTL = ttl
	}
}

// WithUsageStore keeps usage counters in a different backend than the
// rest of the data, such as store/redis.
func WithUsageStore(s usage.Store) Option {
	return func(t *Tollgate) { t.usage = s }
}

// WithMetric registers a limit key to usage metric mapping beyond the
// built-in maxDocuments and maxStorage.
func WithMetric(m gate.Metric) Option {
	return func(t *Tollgate) { t.metrics.Register(m) }
}

// WithDisableMigrate skips store migration in Start.
func WithDisableMigrate() Option {
	return func(t *Tollgate) { t.disableMigrate = true }
}

// WithSeedPlans creates the given plans in Start unless a plan with the
// same name already exists.
func WithSeedPlans(plans ...*plan.Plan) Option {
	return func(t *Tollgate) { t.seed = append(t.seed, plans...) }
}

// Store returns the backing store.
func (t *Tollgate) Store() store.Store { return t.store }

// Ledger returns the usage ledger.
func (t *Tollgate) Ledger() *usage.Ledger { return t.ledger }

// Resolver returns the entitlement resolver.
func (t *Tollgate) Resolver() *entitlement.Resolver { return t.resolver }

// Metrics returns the limit key registry.
func (t *Tollgate) Metrics() *gate.Registry { return t.metrics }

// Plugins returns the plugin registry.
func (t *Tollgate) Plugins() *plugin.Registry { return t.plugins }

// Start migrates the store, seeds plans and initializes plugins.
func (t *Tollgate) Start(ctx context.Context) error {
	if !t.disableMigrate {
		if err := t.store.Migrate(ctx); err != nil {
			return err
		}
	}

	if len(t.seed) > 0 {
		if _, err := t.SeedPlans(ctx, t.seed); err != nil {
			return err
		}
	}

	t.plugins.EmitInit(ctx, t)

	t.logger.Info("tollgate started",
		"plugins", t.plugins.Count(),
		"cache_size", t.cacheSize,
		"cache_ttl", t.cacheTTL,
		"migrate", !t.disableMigrate,
	)

	return nil
}

// Stop shuts down plugins and closes the stores.
func (t *Tollgate) Stop() error {
	ctx := context.Background()
	t.plugins.EmitShutdown(ctx)
	t.resolver.Purge()

	var errs []error
	if c, ok := t.usage.(io.Closer); ok && t.usage != usage.Store(t.store) {
		errs = append(errs, c.Close())
	}
	errs = append(errs, t.store.Close())
	return errors.Join(errs...)
}

// Ping checks every backing store.
func (t *Tollgate) Ping(ctx context.Context) error {
	if err := t.store.Ping(ctx); err != nil {
		return err
	}
	if p, ok := t.usage.(interface{ Ping(context.Context) error }); ok && t.usage != usage.Store(t.store) {
		return p.Ping(ctx)
	}
	return nil
}
