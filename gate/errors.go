package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plan"
)

var (
	ErrFeatureDenied = errors.New("tollgate: feature not available on plan")
	ErrLimitReached  = errors.New("tollgate: limit reached")
)

// FeatureDeniedError reports a capability missing from the org's plan.
type FeatureDeniedError struct {
	Plan    string       `json:"plan"`
	PlanID  id.PlanID    `json:"plan_id"`
	Feature plan.Feature `json:"feature"`
}

func (e *FeatureDeniedError) Error() string {
	return fmt.Sprintf("tollgate: feature %q is not available on the %s plan", e.Feature, e.Plan)
}

func (e *FeatureDeniedError) Is(target error) bool { return target == ErrFeatureDenied }

// LimitReachedError reports a usage counter that has hit its plan limit.
// Current is raw usage; Limit is in the limit's own unit.
type LimitReachedError struct {
	Metric   string    `json:"metric"`
	LimitKey string    `json:"limit_key"`
	Current  int64     `json:"current"`
	Limit    int64     `json:"limit"`
	Unit     Unit      `json:"unit"`
	ResetsAt time.Time `json:"resets_at"`
}

// CurrentInUnit expresses Current in the limit's unit.
func (e *LimitReachedError) CurrentInUnit() float64 {
	return float64(e.Current) / float64(e.Unit.Factor())
}

func (e *LimitReachedError) Error() string {
	if e.Unit == UnitMegabytes {
		return fmt.Sprintf("tollgate: %s limit reached: %.2f/%d %s", e.Metric, e.CurrentInUnit(), e.Limit, e.Unit)
	}
	return fmt.Sprintf("tollgate: %s limit reached: %d/%d", e.Metric, e.Current, e.Limit)
}

func (e *LimitReachedError) Is(target error) bool { return target == ErrLimitReached }
