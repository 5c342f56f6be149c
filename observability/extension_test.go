package observability_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/observability"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/store/memory"
)

func TestMetricsFromEngine(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(reg)

	tg := tollgate.New(memory.New(),
		tollgate.WithSeedPlans(plan.DefaultCatalog()...),
		tollgate.WithPlugin(m),
	)
	require.NoError(t, tg.Start(ctx))
	defer tg.Stop() //nolint:errcheck // test cleanup

	org, _, err := tg.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)

	upload := tollgate.Request{
		OrgID:      org.ID,
		Capability: tollgate.FeatureDocCRUD,
		Deltas:     map[string]int64{tollgate.MetricDocuments: 1},
	}
	for range 10 {
		require.NoError(t, tg.Enforce(ctx, upload, func(context.Context) error { return nil }))
	}
	err = tg.Enforce(ctx, upload, func(context.Context) error { return nil })
	require.ErrorIs(t, err, tollgate.ErrLimitReached)

	_, err = tg.CheckAndReserve(ctx, tollgate.Request{OrgID: org.ID, Capability: tollgate.FeatureSharing})
	require.ErrorIs(t, err, tollgate.ErrFeatureDenied)

	assert.InDelta(t, 3, testutil.ToFloat64(m.PlansCreated), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OrganizationsCreated), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(m.Decisions.WithLabelValues("doc_crud", "allowed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Decisions.WithLabelValues("doc_crud", "limit_reached")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Decisions.WithLabelValues("sharing", "feature_denied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LimitReached.WithLabelValues(tollgate.MetricDocuments)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FeatureDenied.WithLabelValues("sharing", "Free")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(m.UsageCommitted.WithLabelValues(tollgate.MetricDocuments)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.DecisionDuration))
}

func TestSubscriptionDirection(t *testing.T) {
	ctx := context.Background()
	m := observability.NewMetricsExtension(prometheus.NewRegistry())

	tg := tollgate.New(memory.New(),
		tollgate.WithSeedPlans(plan.DefaultCatalog()...),
		tollgate.WithPlugin(m),
	)
	require.NoError(t, tg.Start(ctx))
	defer tg.Stop() //nolint:errcheck // test cleanup

	org, _, err := tg.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)

	pro, err := tg.GetPlanByName(ctx, "Pro")
	require.NoError(t, err)
	free, err := tg.GetPlanByName(ctx, "Free")
	require.NoError(t, err)

	_, err = tg.ChangePlan(ctx, org.ID, pro.ID)
	require.NoError(t, err)
	_, err = tg.ChangePlan(ctx, org.ID, free.ID)
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.SubscriptionChanges.WithLabelValues("upgrade")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SubscriptionChanges.WithLabelValues("downgrade")), 0)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.NewMetricsExtension(reg)
	assert.Panics(t, func() { observability.NewMetricsExtension(reg) })
}
