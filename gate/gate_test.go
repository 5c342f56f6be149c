package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/usage"
)

func freePlan() *plan.Plan {
	return &plan.Plan{
		ID:       id.NewPlanID(),
		Name:     "Free",
		Features: []plan.Feature{plan.FeatureDocCRUD},
		Limits:   map[string]int64{plan.LimitMaxDocuments: 10},
	}
}

func reader(count int64, calls *int) UsageReader {
	return func(context.Context) (*usage.Record, error) {
		*calls++
		now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		rec := usage.NewRecord(id.NewOrgID(), usage.MetricDocuments, period.Monthly(now), now)
		rec.Count = count
		return rec, nil
	}
}

func TestFeatureGate(t *testing.T) {
	free := freePlan()
	pro := &plan.Plan{Name: "Pro", Features: []plan.Feature{plan.FeatureDocCRUD, plan.FeatureSharing}}

	assert.True(t, Allows(free, plan.FeatureDocCRUD))
	assert.False(t, Allows(free, plan.FeatureSharing))
	assert.True(t, Allows(pro, plan.FeatureDocCRUD))
	assert.True(t, Allows(pro, plan.FeatureSharing))
	assert.False(t, Allows(nil, plan.FeatureDocCRUD))

	err := CheckFeature(free, plan.FeatureSharing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeatureDenied)

	var denied *FeatureDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "Free", denied.Plan)
	assert.Equal(t, free.ID, denied.PlanID)
	assert.Equal(t, plan.FeatureSharing, denied.Feature)

	assert.NoError(t, CheckFeature(pro, plan.FeatureSharing))
}

func TestCheckLimit(t *testing.T) {
	docs := DefaultRegistry().ForLimit(plan.LimitMaxDocuments)

	tests := []struct {
		name    string
		current int64
		allowed bool
	}{
		{"below", 9, true},
		{"equal denies", 10, false},
		{"above", 11, false},
		{"empty", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			d, err := CheckLimit(context.Background(), freePlan(), docs, reader(tt.current, &calls))
			require.NotNil(t, d)
			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.allowed, d.Allowed)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}

			var reached *LimitReachedError
			require.True(t, errors.As(err, &reached))
			assert.Equal(t, usage.MetricDocuments, reached.Metric)
			assert.Equal(t, tt.current, reached.Current)
			assert.Equal(t, int64(10), reached.Limit)
			assert.False(t, reached.ResetsAt.IsZero())
			assert.ErrorIs(t, err, ErrLimitReached)
		})
	}
}

func TestCheckLimitUnlimitedSkipsRead(t *testing.T) {
	docs := DefaultRegistry().ForLimit(plan.LimitMaxDocuments)

	unlimited := freePlan()
	unlimited.Limits[plan.LimitMaxDocuments] = plan.Unlimited
	absent := freePlan()
	delete(absent.Limits, plan.LimitMaxDocuments)

	for _, p := range []*plan.Plan{unlimited, absent} {
		calls := 0
		d, err := CheckLimit(context.Background(), p, docs, reader(1_000_000, &calls))
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.True(t, d.Unlimited)
		assert.Zero(t, calls, "usage must not be read for unlimited metrics")
	}
}

func TestCheckLimitReadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := CheckLimit(context.Background(), freePlan(), DefaultRegistry().ForUsage(usage.MetricDocuments),
		func(context.Context) (*usage.Record, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestStorageLimitIsNormalized(t *testing.T) {
	storage := DefaultRegistry().ForLimit(plan.LimitMaxStorage)
	assert.Equal(t, usage.MetricStorage, storage.UsageKey)
	assert.Equal(t, UnitMegabytes, storage.Unit)

	assert.True(t, Within(storage, 1, bytesPerMB-1))
	assert.False(t, Within(storage, 1, bytesPerMB))

	p := freePlan()
	p.Limits[plan.LimitMaxStorage] = 2
	calls := 0
	_, err := CheckLimit(context.Background(), p, storage, reader(3*bytesPerMB, &calls))

	var reached *LimitReachedError
	require.True(t, errors.As(err, &reached))
	assert.InDelta(t, 3.0, reached.CurrentInUnit(), 0.001)
	assert.Equal(t, "tollgate: storage limit reached: 3.00/2 MB", reached.Error())
}

func TestRegistryFallback(t *testing.T) {
	r := DefaultRegistry()

	m := r.ForLimit("maxSeats")
	assert.Equal(t, Metric{LimitKey: "maxSeats", UsageKey: "maxSeats", Unit: UnitCount}, m)

	assert.Equal(t, plan.LimitMaxDocuments, r.ForUsage(usage.MetricDocuments).LimitKey)

	r.Register(Metric{LimitKey: "maxSeats", UsageKey: "seats"})
	assert.Equal(t, "seats", r.ForLimit("maxSeats").UsageKey)
	assert.Equal(t, UnitCount, r.ForUsage("seats").Unit)
}

func TestWithinHugeLimit(t *testing.T) {
	storage := DefaultRegistry().ForLimit(plan.LimitMaxStorage)
	assert.True(t, Within(storage, 1<<62, 1<<62))
}
