package tollgate

import (
	"context"
	"strings"
	"time"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/usage"
)

// ──────────────────────────────────────────────────
// Organizations
// ──────────────────────────────────────────────────

// CreateOrganization creates an organization on the default plan. The
// default plan is resolved first, so without an active plan nothing is
// written and ErrNoActivePlan is returned.
func (t *Tollgate) CreateOrganization(ctx context.Context, name string) (*organization.Organization, *subscription.Subscription, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ValidationError{Field: "name", Message: "required"}
	}
	slug := organization.Slugify(name)
	if slug == "" {
		return nil, nil, ValidationError{Field: "name", Message: "must contain a letter or digit"}
	}

	def, err := t.DefaultPlan(ctx)
	if err != nil {
		return nil, nil, err
	}

	now := t.now().UTC()
	org := &organization.Organization{
		Entity: types.EntityAt(now),
		ID:     id.NewOrgID(),
		Name:   name,
		Slug:   slug,
	}
	if err := t.store.CreateOrganization(ctx, org); err != nil {
		return nil, nil, storageErr("create organization", err)
	}

	sub := newSubscription(org.ID, def, now)
	if err := t.store.CreateSubscription(ctx, sub); err != nil {
		// An organization without a subscription would hold its slug forever.
		if delErr := t.store.DeleteOrganization(ctx, org.ID); delErr != nil {
			t.logger.Error("tollgate: orphaned organization",
				"org_id", org.ID.String(),
				"slug", org.Slug,
				"error", delErr,
			)
		}
		return nil, nil, storageErr("create subscription", err)
	}

	for _, metric := range []string{usage.MetricDocuments, usage.MetricStorage} {
		if _, err := t.ledger.GetOrCreate(ctx, org.ID, metric); err != nil {
			t.logger.Warn("tollgate: usage warm-up failed",
				"org_id", org.ID.String(),
				"metric", metric,
				"error", err,
			)
		}
	}

	t.logger.Info("tollgate: organization created",
		"org_id", org.ID.String(),
		"slug", org.Slug,
		"plan", def.Name,
	)
	t.plugins.EmitSubscriptionCreated(ctx, sub)
	t.plugins.EmitOrganizationCreated(ctx, org, sub)
	return org, sub, nil
}

// GetOrganization retrieves an organization by ID.
func (t *Tollgate) GetOrganization(ctx context.Context, orgID id.OrgID) (*organization.Organization, error) {
	o, err := t.store.GetOrganization(ctx, orgID)
	return o, storageErr("get organization", err)
}

// GetOrganizationBySlug retrieves an organization by slug.
func (t *Tollgate) GetOrganizationBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	o, err := t.store.GetOrganizationBySlug(ctx, slug)
	return o, storageErr("get organization", err)
}

// ListOrganizations lists organizations newest first with the total count.
func (t *Tollgate) ListOrganizations(ctx context.Context, opts organization.ListOpts) ([]*organization.Organization, int64, error) {
	orgs, total, err := t.store.ListOrganizations(ctx, opts)
	return orgs, total, storageErr("list organizations", err)
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

// ChangePlan moves the organization to planID. Every active subscription
// is expired and a new one starts now: for a century on a free plan, for
// one month otherwise. No money changes hands here.
func (t *Tollgate) ChangePlan(ctx context.Context, orgID id.OrgID, planID id.PlanID) (*subscription.Subscription, error) {
	if _, err := t.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	next, err := t.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !next.Active {
		return nil, ErrPlanInactive
	}

	prev := t.currentPlan(ctx, orgID)

	sub := newSubscription(orgID, next, t.now().UTC())
	expired, err := t.store.SupersedeSubscription(ctx, sub)
	t.resolver.Invalidate(orgID)
	if err != nil {
		return nil, storageErr("supersede subscription", err)
	}

	t.logger.Info("tollgate: plan changed",
		"org_id", orgID.String(),
		"plan", next.Name,
		"subscription_id", sub.ID.String(),
		"expired", expired,
	)
	t.plugins.EmitSubscriptionCreated(ctx, sub)
	t.plugins.EmitSubscriptionChanged(ctx, sub, prev, next)
	return sub, nil
}

// Subscriptions lists the organization's subscription history, newest first.
func (t *Tollgate) Subscriptions(ctx context.Context, orgID id.OrgID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	subs, err := t.store.ListSubscriptions(ctx, orgID, opts)
	return subs, storageErr("list subscriptions", err)
}

// currentPlan is the plan of the org's newest active subscription, or nil.
func (t *Tollgate) currentPlan(ctx context.Context, orgID id.OrgID) *plan.Plan {
	subs, err := t.store.ListActiveSubscriptions(ctx, orgID)
	if err != nil || len(subs) == 0 {
		return nil
	}
	p, err := t.store.GetPlan(ctx, subs[0].PlanID)
	if err != nil {
		return nil
	}
	return p
}

func newSubscription(orgID id.OrgID, p *plan.Plan, now time.Time) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:    types.EntityAt(now),
		ID:        id.NewSubscriptionID(),
		OrgID:     orgID,
		PlanID:    p.ID,
		Status:    subscription.StatusActive,
		StartDate: now,
		EndDate:   period.SubscriptionEnd(now, p.IsFree()),
	}
}

// ──────────────────────────────────────────────────
// Usage summary
// ──────────────────────────────────────────────────

// MetricUsage is one counter next to the limit that applies to it.
type MetricUsage struct {
	Metric   string    `json:"metric"`
	LimitKey string    `json:"limit_key"`
	Current  int64     `json:"current"`
	Limit    int64     `json:"limit"` // plan.Unlimited when uncapped
	Unit     gate.Unit `json:"unit"`
	ResetsAt time.Time `json:"resets_at"`
}

// Summary is an organization's entitlement with its current usage.
type Summary struct {
	Entitlement *entitlement.Result     `json:"entitlement"`
	Usage       map[string]*MetricUsage `json:"usage"`
}

// Usage returns the org's current plan together with documents, storage
// and every other metric its plan limits.
func (t *Tollgate) Usage(ctx context.Context, orgID id.OrgID) (*Summary, error) {
	res, err := t.resolver.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}

	metrics := []string{usage.MetricDocuments, usage.MetricStorage}
	for key := range res.Plan.Limits {
		m := t.metrics.ForLimit(key)
		if m.UsageKey != usage.MetricDocuments && m.UsageKey != usage.MetricStorage {
			metrics = append(metrics, m.UsageKey)
		}
	}

	summary := &Summary{Entitlement: res, Usage: make(map[string]*MetricUsage, len(metrics))}
	for _, name := range metrics {
		rec, err := t.ledger.GetOrCreate(ctx, orgID, name)
		if err != nil {
			return nil, err
		}
		m := t.metrics.ForUsage(name)
		limit, limited := gate.LimitFor(res.Plan, m)
		if !limited {
			limit = plan.Unlimited
		}
		summary.Usage[name] = &MetricUsage{
			Metric:   name,
			LimitKey: m.LimitKey,
			Current:  rec.Count,
			Limit:    limit,
			Unit:     m.Unit,
			ResetsAt: rec.PeriodEnd,
		}
	}
	return summary, nil
}
