package subscription

import (
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Subscription binds an organization to a plan for a date range.
// At most one subscription per organization is active at a time.
type Subscription struct {
	types.Entity
	ID        id.SubscriptionID `json:"id"`
	OrgID     id.OrgID          `json:"org_id"`
	PlanID    id.PlanID         `json:"plan_id"`
	Status    Status            `json:"status"`
	StartDate time.Time         `json:"start_date"`
	EndDate   time.Time         `json:"end_date"`
	ExpiredAt *time.Time        `json:"expired_at,omitempty"`
}

// IsActive reports whether the subscription is marked active.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// Lapsed reports whether an active subscription's end date has passed.
// A lapsed subscription must be expired before anything is served from it.
func (s *Subscription) Lapsed(now time.Time) bool {
	return s.IsActive() && s.EndDate.Before(now)
}
