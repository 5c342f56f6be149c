// Package entitlement resolves which plan an organization is entitled to
// right now, expiring lapsed subscriptions as it reads them.
package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
)

var (
	ErrNoEntitlement = errors.New("tollgate: no entitlement")
	// ErrEntitlementExpired also matches ErrNoEntitlement.
	ErrEntitlementExpired = errors.New("tollgate: entitlement expired")
)

// Result is an organization's resolved entitlement.
type Result struct {
	OrgID          id.OrgID            `json:"org_id"`
	SubscriptionID id.SubscriptionID   `json:"subscription_id"`
	Plan           *plan.Plan          `json:"plan"`
	Status         subscription.Status `json:"status"`
	StartDate      time.Time           `json:"start_date"`
	EndDate        time.Time           `json:"end_date"`
}

func (r *Result) clone() *Result {
	cp := *r
	cp.Plan = r.Plan.Clone()
	return &cp
}

// NoEntitlementError means the organization has no active subscription.
type NoEntitlementError struct {
	OrgID id.OrgID
}

func (e *NoEntitlementError) Error() string {
	return fmt.Sprintf("tollgate: organization %s has no active subscription", e.OrgID)
}

func (e *NoEntitlementError) Is(target error) bool { return target == ErrNoEntitlement }

// ExpiredError means the organization's subscription ran out. It is
// reported once, by the read that discovers it; that read also persists
// the expiry.
type ExpiredError struct {
	OrgID          id.OrgID
	SubscriptionID id.SubscriptionID
	PlanID         id.PlanID
	ExpiredAt      time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("tollgate: subscription %s of organization %s expired at %s",
		e.SubscriptionID, e.OrgID, e.ExpiredAt.Format(time.RFC3339))
}

func (e *ExpiredError) Is(target error) bool {
	return target == ErrEntitlementExpired || target == ErrNoEntitlement
}
