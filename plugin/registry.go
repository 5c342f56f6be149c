package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onPlanCreated         []OnPlanCreated
	onPlanUpdated         []OnPlanUpdated
	onPlanArchived        []OnPlanArchived
	onOrganizationCreated []OnOrganizationCreated
	onSubscriptionCreated []OnSubscriptionCreated
	onSubscriptionChanged []OnSubscriptionChanged
	onSubscriptionExpired []OnSubscriptionExpired
	onDecision            []OnDecision
	onFeatureDenied       []OnFeatureDenied
	onLimitReached        []OnLimitReached
	onUsageCommitted      []OnUsageCommitted
	onUsageReleased       []OnUsageReleased
	onUsageDrift          []OnUsageDrift
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets how long a single hook may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnPlanUpdated); ok {
		r.onPlanUpdated = append(r.onPlanUpdated, v)
	}
	if v, ok := p.(OnPlanArchived); ok {
		r.onPlanArchived = append(r.onPlanArchived, v)
	}
	if v, ok := p.(OnOrganizationCreated); ok {
		r.onOrganizationCreated = append(r.onOrganizationCreated, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionChanged); ok {
		r.onSubscriptionChanged = append(r.onSubscriptionChanged, v)
	}
	if v, ok := p.(OnSubscriptionExpired); ok {
		r.onSubscriptionExpired = append(r.onSubscriptionExpired, v)
	}
	if v, ok := p.(OnDecision); ok {
		r.onDecision = append(r.onDecision, v)
	}
	if v, ok := p.(OnFeatureDenied); ok {
		r.onFeatureDenied = append(r.onFeatureDenied, v)
	}
	if v, ok := p.(OnLimitReached); ok {
		r.onLimitReached = append(r.onLimitReached, v)
	}
	if v, ok := p.(OnUsageCommitted); ok {
		r.onUsageCommitted = append(r.onUsageCommitted, v)
	}
	if v, ok := p.(OnUsageReleased); ok {
		r.onUsageReleased = append(r.onUsageReleased, v)
	}
	if v, ok := p.(OnUsageDrift); ok {
		r.onUsageDrift = append(r.onUsageDrift, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", getImplementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnPlanCreated", reflect.TypeFor[OnPlanCreated]()},
	{"OnPlanUpdated", reflect.TypeFor[OnPlanUpdated]()},
	{"OnPlanArchived", reflect.TypeFor[OnPlanArchived]()},
	{"OnOrganizationCreated", reflect.TypeFor[OnOrganizationCreated]()},
	{"OnSubscriptionCreated", reflect.TypeFor[OnSubscriptionCreated]()},
	{"OnSubscriptionChanged", reflect.TypeFor[OnSubscriptionChanged]()},
	{"OnSubscriptionExpired", reflect.TypeFor[OnSubscriptionExpired]()},
	{"OnDecision", reflect.TypeFor[OnDecision]()},
	{"OnFeatureDenied", reflect.TypeFor[OnFeatureDenied]()},
	{"OnLimitReached", reflect.TypeFor[OnLimitReached]()},
	{"OnUsageCommitted", reflect.TypeFor[OnUsageCommitted]()},
	{"OnUsageReleased", reflect.TypeFor[OnUsageReleased]()},
	{"OnUsageDrift", reflect.TypeFor[OnUsageDrift]()},
}

// getImplementedInterfaces returns the hooks implemented by the plugin.
func getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, t any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnInit", func() error { return p.OnInit(ctx, t) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnPlanCreated", func() error { return p.OnPlanCreated(ctx, pl) })
	}
}

// EmitPlanUpdated emits a plan updated event.
func (r *Registry) EmitPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) {
	r.mu.RLock()
	plugins := r.onPlanUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnPlanUpdated", func() error { return p.OnPlanUpdated(ctx, oldPlan, newPlan) })
	}
}

// EmitPlanArchived emits a plan archived event.
func (r *Registry) EmitPlanArchived(ctx context.Context, planID id.PlanID) {
	r.mu.RLock()
	plugins := r.onPlanArchived
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnPlanArchived", func() error { return p.OnPlanArchived(ctx, planID) })
	}
}

// EmitOrganizationCreated emits an organization created event.
func (r *Registry) EmitOrganizationCreated(ctx context.Context, org *organization.Organization, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onOrganizationCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnOrganizationCreated", func() error { return p.OnOrganizationCreated(ctx, org, sub) })
	}
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnSubscriptionCreated", func() error { return p.OnSubscriptionCreated(ctx, sub) })
	}
}

// EmitSubscriptionChanged emits a plan change event.
func (r *Registry) EmitSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlan, newPlan *plan.Plan) {
	r.mu.RLock()
	plugins := r.onSubscriptionChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnSubscriptionChanged", func() error { return p.OnSubscriptionChanged(ctx, sub, oldPlan, newPlan) })
	}
}

// EmitSubscriptionExpired emits a subscription expired event.
func (r *Registry) EmitSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnSubscriptionExpired", func() error { return p.OnSubscriptionExpired(ctx, sub) })
	}
}

// EmitDecision emits an enforcement decision event.
func (r *Registry) EmitDecision(ctx context.Context, orgID id.OrgID, capability plan.Feature, reason string, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onDecision
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnDecision", func() error { return p.OnDecision(ctx, orgID, capability, reason, elapsed) })
	}
}

// EmitFeatureDenied emits a feature denied event.
func (r *Registry) EmitFeatureDenied(ctx context.Context, orgID id.OrgID, denied *gate.FeatureDeniedError) {
	r.mu.RLock()
	plugins := r.onFeatureDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnFeatureDenied", func() error { return p.OnFeatureDenied(ctx, orgID, denied) })
	}
}

// EmitLimitReached emits a limit reached event.
func (r *Registry) EmitLimitReached(ctx context.Context, orgID id.OrgID, reached *gate.LimitReachedError) {
	r.mu.RLock()
	plugins := r.onLimitReached
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnLimitReached", func() error { return p.OnLimitReached(ctx, orgID, reached) })
	}
}

// EmitUsageCommitted emits a usage committed event.
func (r *Registry) EmitUsageCommitted(ctx context.Context, orgID id.OrgID, deltas map[string]int64) {
	r.mu.RLock()
	plugins := r.onUsageCommitted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnUsageCommitted", func() error { return p.OnUsageCommitted(ctx, orgID, deltas) })
	}
}

// EmitUsageReleased emits a usage released event.
func (r *Registry) EmitUsageReleased(ctx context.Context, orgID id.OrgID, deltas map[string]int64) {
	r.mu.RLock()
	plugins := r.onUsageReleased
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnUsageReleased", func() error { return p.OnUsageReleased(ctx, orgID, deltas) })
	}
}

// EmitUsageDrift emits a usage drift event.
func (r *Registry) EmitUsageDrift(ctx context.Context, orgID id.OrgID, metric string, delta int64, cause error) {
	r.mu.RLock()
	plugins := r.onUsageDrift
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p, "OnUsageDrift", func() error { return p.OnUsageDrift(ctx, orgID, metric, delta, cause) })
	}
}

// call runs one hook and logs its failure. Hooks never fail the caller.
func (r *Registry) call(ctx context.Context, p Plugin, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, p.Name(), fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", p.Name(),
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the enforcement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
