package usage

import (
	"context"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/period"
)

// Store holds usage records. Every method is a single atomic operation at
// the storage level; implementations must never read a count, change it in
// memory and write it back.
//
// Each method first rolls a stale record of (org, metric), one whose
// PeriodEnd is before now, into window w with a zero count and
// LastResetAt = now. Under concurrency exactly one caller performs the
// reset. (org, metric, w.Start) identifies at most one record.
type Store interface {
	// GetOrCreateUsage returns the current record, creating it with a zero
	// count when absent.
	GetOrCreateUsage(ctx context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) (*Record, error)

	// IncrementUsage adds delta to the current record, creating it when
	// absent, and returns the record as of right after the increment.
	IncrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*Record, error)

	// DecrementUsage subtracts delta only if the current count is at least
	// delta. It returns (nil, nil) when the guard does not match.
	DecrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*Record, error)
}
