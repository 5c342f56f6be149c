package tollgate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/usage"
)

// Reason classifies why a request may not proceed.
type Reason string

const (
	ReasonNoEntitlement      Reason = "no_entitlement"
	ReasonExpired            Reason = "entitlement_expired"
	ReasonFeatureDenied      Reason = "feature_denied"
	ReasonLimitReached       Reason = "limit_reached"
	ReasonStorageUnavailable Reason = "storage_unavailable"
	ReasonInvalidRequest     Reason = "invalid_request"
	ReasonInternal           Reason = "internal_error"
)

// Request describes an operation that needs enforcement.
type Request struct {
	OrgID id.OrgID
	// Capability is the feature the operation needs. Empty skips the
	// feature gate.
	Capability plan.Feature
	// Deltas is how much of each usage metric the operation consumes.
	Deltas map[string]int64
}

// Outcome is the result of CheckAndReserve.
type Outcome struct {
	Proceed     bool                      `json:"proceed"`
	Reason      Reason                    `json:"reason,omitempty"`
	Err         error                     `json:"-"`
	Entitlement *entitlement.Result       `json:"entitlement,omitempty"`
	Usage       map[string]*gate.Decision `json:"usage,omitempty"`
}

// ResolveEntitlement returns the org's current entitlement.
func (t *Tollgate) ResolveEntitlement(ctx context.Context, orgID id.OrgID) (*entitlement.Result, error) {
	return t.resolver.Resolve(ctx, orgID)
}

// RequireFeature resolves the org's entitlement and applies the feature
// gate to it.
func (t *Tollgate) RequireFeature(ctx context.Context, orgID id.OrgID, feature plan.Feature) (*entitlement.Result, error) {
	res, err := t.resolver.Resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := t.checkFeature(ctx, res, feature); err != nil {
		return res, err
	}
	return res, nil
}

// CheckAndReserve runs the enforcement checks for req in order:
// entitlement, feature, then the limit of every consumed metric. The first
// failure decides the outcome and is also returned as the error. Nothing
// is counted here; call CommitUsage once the operation has succeeded.
func (t *Tollgate) CheckAndReserve(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	out := t.checkAndReserve(ctx, req)
	t.plugins.EmitDecision(ctx, req.OrgID, req.Capability, string(out.Reason), time.Since(start))

	if !out.Proceed {
		t.logger.Debug("tollgate: request denied",
			"org_id", req.OrgID.String(),
			"capability", string(req.Capability),
			"reason", string(out.Reason),
			"error", out.Err,
		)
		return out, out.Err
	}
	return out, nil
}

func (t *Tollgate) checkAndReserve(ctx context.Context, req Request) *Outcome {
	metrics, err := sortedMetrics(req.Deltas)
	if err != nil {
		return deny(nil, err)
	}

	res, err := t.resolver.Resolve(ctx, req.OrgID)
	if err != nil {
		return deny(nil, err)
	}

	if req.Capability != "" {
		if err := t.checkFeature(ctx, res, req.Capability); err != nil {
			return deny(res, err)
		}
	}

	decisions, err := t.checkLimits(ctx, req.OrgID, res.Plan, metrics)
	if err != nil {
		out := deny(res, err)
		out.Usage = decisions
		return out
	}

	return &Outcome{Proceed: true, Entitlement: res, Usage: decisions}
}

func (t *Tollgate) checkFeature(ctx context.Context, res *entitlement.Result, feature plan.Feature) error {
	err := gate.CheckFeature(res.Plan, feature)
	var denied *gate.FeatureDeniedError
	if errors.As(err, &denied) {
		t.plugins.EmitFeatureDenied(ctx, res.OrgID, denied)
	}
	return err
}

// checkLimits reads every limited metric concurrently and evaluates the
// results in metric order, so the reported denial does not depend on
// which read finished first.
func (t *Tollgate) checkLimits(ctx context.Context, orgID id.OrgID, p *plan.Plan, metrics []string) (map[string]*gate.Decision, error) {
	decisions := make([]*gate.Decision, len(metrics))
	denials := make([]error, len(metrics))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range metrics {
		m := t.metrics.ForUsage(name)
		g.Go(func() error {
			d, err := gate.CheckLimit(gctx, p, m, func(ctx context.Context) (*usage.Record, error) {
				return t.ledger.GetOrCreate(ctx, orgID, name)
			})
			if errors.Is(err, gate.ErrLimitReached) {
				decisions[i], denials[i] = d, err
				return nil
			}
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byMetric := make(map[string]*gate.Decision, len(metrics))
	for i, name := range metrics {
		byMetric[name] = decisions[i]
	}
	for _, err := range denials {
		if err == nil {
			continue
		}
		var reached *gate.LimitReachedError
		if errors.As(err, &reached) {
			t.plugins.EmitLimitReached(ctx, orgID, reached)
		}
		return byMetric, err
	}
	return byMetric, nil
}

// CommitUsage counts a completed operation's consumption. A failure leaves
// the resource uncounted: it is logged, reported to OnUsageDrift plugins
// and returned, but the operation itself stands.
func (t *Tollgate) CommitUsage(ctx context.Context, orgID id.OrgID, deltas map[string]int64) error {
	metrics, err := sortedMetrics(deltas)
	if err != nil {
		return err
	}

	var errs MultiError
	applied := make(map[string]int64, len(metrics))
	for _, name := range metrics {
		if _, err := t.ledger.IncrementBy(ctx, orgID, name, deltas[name]); err != nil {
			t.drift(ctx, orgID, name, deltas[name], err)
			errs.Add(fmt.Errorf("commit %s: %w", name, err))
			continue
		}
		applied[name] = deltas[name]
	}

	if len(applied) > 0 {
		t.plugins.EmitUsageCommitted(ctx, orgID, applied)
	}
	return errs.ErrorOrNil()
}

// ReleaseUsage gives back consumption after a resource was removed. A
// counter already below the amount is left alone, so counts never go
// negative.
func (t *Tollgate) ReleaseUsage(ctx context.Context, orgID id.OrgID, deltas map[string]int64) error {
	metrics, err := sortedMetrics(deltas)
	if err != nil {
		return err
	}

	var errs MultiError
	released := make(map[string]int64, len(metrics))
	for _, name := range metrics {
		_, ok, err := t.ledger.Decrement(ctx, orgID, name, deltas[name])
		if err != nil {
			t.drift(ctx, orgID, name, -deltas[name], err)
			errs.Add(fmt.Errorf("release %s: %w", name, err))
			continue
		}
		if ok {
			released[name] = deltas[name]
		}
	}

	if len(released) > 0 {
		t.plugins.EmitUsageReleased(ctx, orgID, released)
	}
	return errs.ErrorOrNil()
}

// Enforce runs op only if req passes CheckAndReserve and counts its usage
// once op succeeds. If op fails nothing is counted. If counting fails
// after op succeeded, Enforce still returns nil; the drift is logged and
// reported to plugins.
func (t *Tollgate) Enforce(ctx context.Context, req Request, op func(ctx context.Context) error) error {
	if _, err := t.CheckAndReserve(ctx, req); err != nil {
		return err
	}
	if err := op(ctx); err != nil {
		return err
	}
	_ = t.CommitUsage(ctx, req.OrgID, req.Deltas) //nolint:errcheck // drift is reported, the operation stands
	return nil
}

// EnforceRelease is the deletion path: it checks entitlement and the
// capability, runs op, then releases req.Deltas. Limits are not checked.
func (t *Tollgate) EnforceRelease(ctx context.Context, req Request, op func(ctx context.Context) error) error {
	if _, err := sortedMetrics(req.Deltas); err != nil {
		return err
	}

	res, err := t.resolver.Resolve(ctx, req.OrgID)
	if err != nil {
		return err
	}
	if req.Capability != "" {
		if err := t.checkFeature(ctx, res, req.Capability); err != nil {
			return err
		}
	}

	if err := op(ctx); err != nil {
		return err
	}
	_ = t.ReleaseUsage(ctx, req.OrgID, req.Deltas) //nolint:errcheck // under-counting is the safe direction
	return nil
}

func (t *Tollgate) drift(ctx context.Context, orgID id.OrgID, metric string, delta int64, err error) {
	t.logger.Warn("tollgate: usage drift",
		"org_id", orgID.String(),
		"metric", metric,
		"delta", delta,
		"error", err,
	)
	t.plugins.EmitUsageDrift(ctx, orgID, metric, delta, err)
}

// sortedMetrics validates deltas and returns the metrics with a positive
// amount in order.
func sortedMetrics(deltas map[string]int64) ([]string, error) {
	for name, delta := range deltas {
		if name == "" {
			return nil, ValidationError{Field: "deltas", Message: "empty metric name"}
		}
		if delta < 0 {
			return nil, ValidationError{Field: "deltas." + name, Message: "negative amount"}
		}
	}
	metrics := slices.Sorted(maps.Keys(deltas))
	return slices.DeleteFunc(metrics, func(name string) bool { return deltas[name] == 0 }), nil
}

func deny(res *entitlement.Result, err error) *Outcome {
	return &Outcome{Reason: reasonFor(err), Err: err, Entitlement: res}
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrEntitlementExpired):
		return ReasonExpired
	case errors.Is(err, ErrNoEntitlement):
		return ReasonNoEntitlement
	case errors.Is(err, ErrFeatureDenied):
		return ReasonFeatureDenied
	case errors.Is(err, ErrLimitReached):
		return ReasonLimitReached
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidMetric), errors.Is(err, ErrInvalidDelta):
		return ReasonInvalidRequest
	case errors.Is(err, ErrStorageUnavailable):
		return ReasonStorageUnavailable
	default:
		return ReasonInternal
	}
}
