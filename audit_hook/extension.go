// Package audithook bridges tollgate lifecycle and enforcement events to an
// audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnPlanCreated         = (*Extension)(nil)
	_ plugin.OnPlanUpdated         = (*Extension)(nil)
	_ plugin.OnPlanArchived        = (*Extension)(nil)
	_ plugin.OnOrganizationCreated = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated = (*Extension)(nil)
	_ plugin.OnSubscriptionChanged = (*Extension)(nil)
	_ plugin.OnSubscriptionExpired = (*Extension)(nil)
	_ plugin.OnFeatureDenied       = (*Extension)(nil)
	_ plugin.OnLimitReached        = (*Extension)(nil)
	_ plugin.OnUsageDrift          = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges tollgate events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryCatalog, nil,
		"name", p.Name,
		"price", p.Price.String(),
		"limits", p.Limits,
	)
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (e *Extension) OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error {
	return e.record(ctx, ActionPlanUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, newPlan.ID.String(), CategoryCatalog, nil,
		"name", newPlan.Name,
		"active", newPlan.Active,
		"old_limits", oldPlan.Limits,
		"new_limits", newPlan.Limits,
	)
}

// OnPlanArchived implements plugin.OnPlanArchived.
func (e *Extension) OnPlanArchived(ctx context.Context, planID id.PlanID) error {
	return e.record(ctx, ActionPlanArchived, SeverityInfo, OutcomeSuccess,
		ResourcePlan, planID.String(), CategoryCatalog, nil,
		"plan_id", planID.String(),
	)
}

// ──────────────────────────────────────────────────
// Organization and subscription hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated implements plugin.OnOrganizationCreated.
func (e *Extension) OnOrganizationCreated(ctx context.Context, org *organization.Organization, sub *subscription.Subscription) error {
	return e.record(ctx, ActionOrganizationCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrganization, org.ID.String(), CategoryTenant, nil,
		"slug", org.Slug,
		"subscription_id", sub.ID.String(),
		"plan_id", sub.PlanID.String(),
	)
}

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"org_id", sub.OrgID.String(),
		"plan_id", sub.PlanID.String(),
		"end_date", sub.EndDate,
	)
}

// OnSubscriptionChanged implements plugin.OnSubscriptionChanged. A move to
// a cheaper plan is a downgrade; everything else counts as an upgrade.
func (e *Extension) OnSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlan, newPlan *plan.Plan) error {
	action := ActionSubscriptionUpgraded
	from := ""
	if oldPlan != nil {
		from = oldPlan.Name
		if newPlan.Price.Amount < oldPlan.Price.Amount {
			action = ActionSubscriptionDowngraded
		}
	}

	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"org_id", sub.OrgID.String(),
		"from_plan", from,
		"to_plan", newPlan.Name,
	)
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (e *Extension) OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionExpired, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"org_id", sub.OrgID.String(),
		"plan_id", sub.PlanID.String(),
		"end_date", sub.EndDate,
	)
}

// ──────────────────────────────────────────────────
// Enforcement hooks
// ──────────────────────────────────────────────────

// OnFeatureDenied implements plugin.OnFeatureDenied.
func (e *Extension) OnFeatureDenied(ctx context.Context, orgID id.OrgID, denied *gate.FeatureDeniedError) error {
	return e.record(ctx, ActionFeatureDenied, SeverityInfo, OutcomeFailure,
		ResourceEntitlement, orgID.String(), CategoryAccess, denied,
		"feature", string(denied.Feature),
		"plan", denied.Plan,
	)
}

// OnLimitReached implements plugin.OnLimitReached.
func (e *Extension) OnLimitReached(ctx context.Context, orgID id.OrgID, reached *gate.LimitReachedError) error {
	return e.record(ctx, ActionLimitReached, SeverityWarning, OutcomeFailure,
		ResourceUsage, orgID.String(), CategoryAccess, reached,
		"metric", reached.Metric,
		"current", reached.Current,
		"limit", reached.Limit,
		"unit", string(reached.Unit),
		"resets_at", reached.ResetsAt,
	)
}

// OnUsageDrift implements plugin.OnUsageDrift.
func (e *Extension) OnUsageDrift(ctx context.Context, orgID id.OrgID, metric string, delta int64, err error) error {
	return e.record(ctx, ActionUsageDrift, SeverityError, OutcomePartial,
		ResourceUsage, orgID.String(), CategoryUsage, err,
		"metric", metric,
		"delta", delta,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
