package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
)

// Source is the storage the resolver reads from.
type Source interface {
	// ListActiveSubscriptions returns the org's active subscriptions,
	// newest first.
	ListActiveSubscriptions(ctx context.Context, orgID id.OrgID) ([]*subscription.Subscription, error)
	ExpireSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
}

// ExpiryHook is told about every subscription the resolver expires.
type ExpiryHook func(ctx context.Context, sub *subscription.Subscription)

// Resolver resolves an organization's current plan.
type Resolver struct {
	src      Source
	cache    *expirable.LRU[id.OrgID, *Result]
	now      func() time.Time
	logger   *slog.Logger
	onExpire ExpiryHook
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache keeps up to size resolved entitlements for ttl. An entry is
// never served past its subscription's end date. A non-positive size or
// ttl disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		if size <= 0 || ttl <= 0 {
			r.cache = nil
			return
		}
		r.cache = expirable.NewLRU[id.OrgID, *Result](size, nil, ttl)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithExpiryHook registers fn to run after a subscription is expired.
func WithExpiryHook(fn ExpiryHook) Option {
	return func(r *Resolver) { r.onExpire = fn }
}

// NewResolver creates a resolver over src.
func NewResolver(src Source, opts ...Option) *Resolver {
	r := &Resolver{
		src:    src,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the org's entitlement. It fails with a
// *NoEntitlementError when nothing is active, an *ExpiredError when the
// active subscription has lapsed (after persisting the expiry), or a
// *types.StorageError.
func (r *Resolver) Resolve(ctx context.Context, orgID id.OrgID) (*Result, error) {
	now := r.now()

	if res, ok := r.cached(orgID, now); ok {
		return res, nil
	}

	subs, err := r.src.ListActiveSubscriptions(ctx, orgID)
	if err != nil {
		return nil, types.WrapStorage("list active subscriptions", err)
	}
	if len(subs) == 0 {
		return nil, &NoEntitlementError{OrgID: orgID}
	}

	current := subs[0]
	if len(subs) > 1 {
		r.collapse(ctx, current, subs[1:], now)
	}

	if current.Lapsed(now) {
		if err := r.src.ExpireSubscription(ctx, current.ID, now); err != nil {
			return nil, types.WrapStorage("expire subscription", err)
		}
		r.Invalidate(orgID)

		expiredAt := now
		current.Status = subscription.StatusExpired
		current.ExpiredAt = &expiredAt

		r.logger.Info("entitlement: subscription expired",
			"org_id", orgID.String(),
			"subscription_id", current.ID.String(),
			"end_date", current.EndDate,
		)
		if r.onExpire != nil {
			r.onExpire(ctx, current)
		}

		return nil, &ExpiredError{
			OrgID:          orgID,
			SubscriptionID: current.ID,
			PlanID:         current.PlanID,
			ExpiredAt:      current.EndDate,
		}
	}

	p, err := r.src.GetPlan(ctx, current.PlanID)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			return nil, fmt.Errorf("entitlement: plan %s of subscription %s: %w", current.PlanID, current.ID, err)
		}
		return nil, types.WrapStorage("get plan", err)
	}

	res := &Result{
		OrgID:          orgID,
		SubscriptionID: current.ID,
		Plan:           p,
		Status:         current.Status,
		StartDate:      current.StartDate,
		EndDate:        current.EndDate,
	}
	if r.cache != nil {
		r.cache.Add(orgID, res.clone())
	}
	return res, nil
}

// Invalidate drops the cached entitlement of orgID.
func (r *Resolver) Invalidate(orgID id.OrgID) {
	if r.cache != nil {
		r.cache.Remove(orgID)
	}
}

// Purge drops every cached entitlement.
func (r *Resolver) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

func (r *Resolver) cached(orgID id.OrgID, now time.Time) (*Result, bool) {
	if r.cache == nil {
		return nil, false
	}
	res, ok := r.cache.Get(orgID)
	if !ok {
		return nil, false
	}
	if res.EndDate.Before(now) {
		r.cache.Remove(orgID)
		return nil, false
	}
	return res.clone(), true
}

// collapse expires duplicate active subscriptions, keeping the newest.
// Failures are logged; the next read retries.
func (r *Resolver) collapse(ctx context.Context, keep *subscription.Subscription, dups []*subscription.Subscription, now time.Time) {
	for _, dup := range dups {
		r.logger.Warn("entitlement: collapsing duplicate active subscription",
			"org_id", keep.OrgID.String(),
			"kept", keep.ID.String(),
			"expired", dup.ID.String(),
		)
		if err := r.src.ExpireSubscription(ctx, dup.ID, now); err != nil {
			r.logger.Error("entitlement: collapse failed",
				"subscription_id", dup.ID.String(),
				"error", err,
			)
		}
	}
}
