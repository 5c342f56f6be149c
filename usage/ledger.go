package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/types"
)

var (
	ErrInvalidDelta  = errors.New("tollgate: usage delta must be positive")
	ErrInvalidMetric = errors.New("tollgate: usage metric is required")
)

// Ledger is the usage ledger: it computes the current period and applies
// atomic counter operations through a Store. Storage failures surface as
// *types.StorageError.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a Ledger over s.
func NewLedger(s Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the backing store.
func (l *Ledger) Store() Store { return l.store }

// GetOrCreate returns the org's current-period record for metric.
func (l *Ledger) GetOrCreate(ctx context.Context, orgID id.OrgID, metric string) (*Record, error) {
	if metric == "" {
		return nil, ErrInvalidMetric
	}
	now := l.now().UTC()
	rec, err := l.store.GetOrCreateUsage(ctx, orgID, metric, period.Monthly(now), now)
	if err != nil {
		l.logger.Error("usage: get or create failed",
			"org_id", orgID.String(),
			"metric", metric,
			"error", err,
		)
		return nil, types.WrapStorage("get usage", err)
	}
	return rec, nil
}

// Increment adds one to the org's current-period count.
func (l *Ledger) Increment(ctx context.Context, orgID id.OrgID, metric string) (*Record, error) {
	return l.IncrementBy(ctx, orgID, metric, 1)
}

// IncrementBy adds delta to the org's current-period count.
func (l *Ledger) IncrementBy(ctx context.Context, orgID id.OrgID, metric string, delta int64) (*Record, error) {
	if metric == "" {
		return nil, ErrInvalidMetric
	}
	if delta <= 0 {
		return nil, ErrInvalidDelta
	}
	now := l.now().UTC()
	rec, err := l.store.IncrementUsage(ctx, orgID, metric, delta, period.Monthly(now), now)
	if err != nil {
		l.logger.Error("usage: increment failed",
			"org_id", orgID.String(),
			"metric", metric,
			"delta", delta,
			"error", err,
		)
		return nil, types.WrapStorage("increment usage", err)
	}
	l.logger.Debug("usage: incremented",
		"org_id", orgID.String(),
		"metric", metric,
		"delta", delta,
		"count", rec.Count,
	)
	return rec, nil
}

// Decrement subtracts delta from the org's current-period count. applied
// is false when the count was below delta and nothing changed; counts
// never go negative.
func (l *Ledger) Decrement(ctx context.Context, orgID id.OrgID, metric string, delta int64) (rec *Record, applied bool, err error) {
	if metric == "" {
		return nil, false, ErrInvalidMetric
	}
	if delta <= 0 {
		return nil, false, ErrInvalidDelta
	}
	now := l.now().UTC()
	rec, err = l.store.DecrementUsage(ctx, orgID, metric, delta, period.Monthly(now), now)
	if err != nil {
		l.logger.Error("usage: decrement failed",
			"org_id", orgID.String(),
			"metric", metric,
			"delta", delta,
			"error", err,
		)
		return nil, false, types.WrapStorage("decrement usage", err)
	}
	if rec == nil {
		l.logger.Debug("usage: decrement skipped, count below delta",
			"org_id", orgID.String(),
			"metric", metric,
			"delta", delta,
		)
		return nil, false, nil
	}
	return rec, true, nil
}
