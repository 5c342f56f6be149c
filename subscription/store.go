package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/tollgate/id"
)

var (
	// ErrNotFound is returned by Get when no subscription has the given ID.
	ErrNotFound = errors.New("tollgate: subscription not found")
	// ErrConflict is returned when inserting an active subscription would
	// leave the organization with two.
	ErrConflict = errors.New("tollgate: organization already has an active subscription")
)

type Store interface {
	// Create inserts s. It fails with ErrConflict when s is active and
	// the organization already has an active subscription.
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)

	// ListActive returns the org's active subscriptions, newest first.
	// More than one entry is an anomaly that callers collapse.
	ListActive(ctx context.Context, orgID id.OrgID) ([]*Subscription, error)
	List(ctx context.Context, orgID id.OrgID, opts ListOpts) ([]*Subscription, error)

	// Expire marks an active subscription expired at the given time.
	// Expiring an already expired subscription is a no-op.
	Expire(ctx context.Context, subID id.SubscriptionID, at time.Time) error

	// Supersede expires every active subscription of s.OrgID and inserts
	// s in their place. A concurrent change that inserts first makes it
	// fail with ErrConflict; no state exists with two active rows.
	Supersede(ctx context.Context, s *Subscription) (expired int64, err error)
}

// ListOpts filters List. Results are newest first.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
