// Package plugin provides an extensible plugin system for tollgate.
// Plugins hook into lifecycle and enforcement events; a plugin implements
// only the hook interfaces it cares about.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. t is the *tollgate.Tollgate.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, t any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when a new plan is created.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanUpdated is called when a plan definition changes.
type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error
}

// OnPlanArchived is called when a plan stops being offered.
type OnPlanArchived interface {
	Plugin
	OnPlanArchived(ctx context.Context, planID id.PlanID) error
}

// ──────────────────────────────────────────────────
// Organization and subscription hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated is called once an organization and its initial
// subscription exist.
type OnOrganizationCreated interface {
	Plugin
	OnOrganizationCreated(ctx context.Context, org *organization.Organization, sub *subscription.Subscription) error
}

// OnSubscriptionCreated is called for every new subscription.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionChanged is called after a plan change. oldPlan is nil when
// the organization had no active subscription.
type OnSubscriptionChanged interface {
	Plugin
	OnSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlan, newPlan *plan.Plan) error
}

// OnSubscriptionExpired is called when a lapsed subscription is expired.
type OnSubscriptionExpired interface {
	Plugin
	OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Enforcement hooks
// ──────────────────────────────────────────────────

// OnDecision is called after every CheckAndReserve. reason is empty when
// the request may proceed.
type OnDecision interface {
	Plugin
	OnDecision(ctx context.Context, orgID id.OrgID, capability plan.Feature, reason string, elapsed time.Duration) error
}

// OnFeatureDenied is called when a request asks for a capability the
// organization's plan lacks.
type OnFeatureDenied interface {
	Plugin
	OnFeatureDenied(ctx context.Context, orgID id.OrgID, denied *gate.FeatureDeniedError) error
}

// OnLimitReached is called when a request is denied by a usage limit.
type OnLimitReached interface {
	Plugin
	OnLimitReached(ctx context.Context, orgID id.OrgID, reached *gate.LimitReachedError) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageCommitted is called after usage for a completed operation has
// been counted.
type OnUsageCommitted interface {
	Plugin
	OnUsageCommitted(ctx context.Context, orgID id.OrgID, deltas map[string]int64) error
}

// OnUsageReleased is called after usage for a deleted resource has been
// given back.
type OnUsageReleased interface {
	Plugin
	OnUsageReleased(ctx context.Context, orgID id.OrgID, deltas map[string]int64) error
}

// OnUsageDrift is called when a counter could not be adjusted after the
// protected operation already happened. delta is the adjustment that was
// not applied: positive for a missed increment, negative for a missed
// decrement.
type OnUsageDrift interface {
	Plugin
	OnUsageDrift(ctx context.Context, orgID id.OrgID, metric string, delta int64, err error) error
}
