// Package gate holds the two pure authorization checks run against a
// resolved plan: feature membership and per-metric consumption limits.
package gate

import (
	"context"
	"math"

	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/usage"
)

// Allows reports whether p grants feature.
func Allows(p *plan.Plan, feature plan.Feature) bool {
	return p != nil && p.HasFeature(feature)
}

// CheckFeature returns a *FeatureDeniedError when p lacks feature.
func CheckFeature(p *plan.Plan, feature plan.Feature) error {
	if Allows(p, feature) {
		return nil
	}
	denied := &FeatureDeniedError{Feature: feature}
	if p != nil {
		denied.Plan = p.Name
		denied.PlanID = p.ID
	}
	return denied
}

// UsageReader loads the current usage record for a metric. CheckLimit
// calls it at most once, and not at all for unlimited metrics.
type UsageReader func(ctx context.Context) (*usage.Record, error)

// Decision is the outcome of a limit check.
type Decision struct {
	Metric    Metric        `json:"metric"`
	Allowed   bool          `json:"allowed"`
	Unlimited bool          `json:"unlimited"`
	Current   int64         `json:"current"`
	Limit     int64         `json:"limit"`
	Record    *usage.Record `json:"-"`
}

// LimitFor returns p's limit for m. limited is false when the plan has no
// entry for the key or the entry is plan.Unlimited.
func LimitFor(p *plan.Plan, m Metric) (limit int64, limited bool) {
	if p == nil {
		return 0, false
	}
	limit, ok := p.Limit(m.LimitKey)
	if !ok || limit == plan.Unlimited {
		return 0, false
	}
	return limit, true
}

// Within reports whether current raw usage is still below limit, with
// limit expressed in m's unit. Reaching the limit exactly is not within.
func Within(m Metric, limit, current int64) bool {
	factor := m.Unit.Factor()
	if limit > math.MaxInt64/factor {
		return true
	}
	return current < limit*factor
}

// CheckLimit applies p's limit for m to the usage returned by read. When
// denied the returned error is a *LimitReachedError and the decision is
// still populated. Errors from read are returned unchanged.
func CheckLimit(ctx context.Context, p *plan.Plan, m Metric, read UsageReader) (*Decision, error) {
	limit, limited := LimitFor(p, m)
	if !limited {
		return &Decision{Metric: m, Allowed: true, Unlimited: true, Limit: plan.Unlimited}, nil
	}

	rec, err := read(ctx)
	if err != nil {
		return nil, err
	}

	d := &Decision{
		Metric:  m,
		Current: rec.Count,
		Limit:   limit,
		Record:  rec,
		Allowed: Within(m, limit, rec.Count),
	}
	if d.Allowed {
		return d, nil
	}
	return d, &LimitReachedError{
		Metric:   m.UsageKey,
		LimitKey: m.LimitKey,
		Current:  rec.Count,
		Limit:    limit,
		Unit:     m.Unit,
		ResetsAt: rec.PeriodEnd,
	}
}
