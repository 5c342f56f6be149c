// Package store defines the storage contract every tollgate backend
// implements.
package store

import (
	"context"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/usage"
)

// Store is the unified storage interface for all tollgate entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Backends must enforce two uniqueness rules: one usage record per
// (org, metric, period start) and at most one active subscription per
// org. Missing rows are reported with the owning package's ErrNotFound.
type Store interface {
	// Plan methods
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*plan.Plan, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	UpdatePlan(ctx context.Context, p *plan.Plan) error
	ArchivePlan(ctx context.Context, planID id.PlanID) error

	// Organization methods
	CreateOrganization(ctx context.Context, o *organization.Organization) error
	GetOrganization(ctx context.Context, orgID id.OrgID) (*organization.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*organization.Organization, error)
	ListOrganizations(ctx context.Context, opts organization.ListOpts) ([]*organization.Organization, int64, error)
	DeleteOrganization(ctx context.Context, orgID id.OrgID) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	ListActiveSubscriptions(ctx context.Context, orgID id.OrgID) ([]*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, orgID id.OrgID, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	ExpireSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	SupersedeSubscription(ctx context.Context, s *subscription.Subscription) (int64, error)

	// Usage methods
	GetOrCreateUsage(ctx context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) (*usage.Record, error)
	IncrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error)
	DecrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var _ usage.Store = (Store)(nil)
