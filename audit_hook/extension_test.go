package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate"
	audithook "github.com/xraph/tollgate/audit_hook"
	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/subscription"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func (r *memRecorder) find(action string) *audithook.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func TestAuditTrailFromEngine(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}

	tg := tollgate.New(memory.New(),
		tollgate.WithSeedPlans(plan.DefaultCatalog()...),
		tollgate.WithPlugin(audithook.New(rec)),
	)
	require.NoError(t, tg.Start(ctx))
	defer tg.Stop() //nolint:errcheck // test cleanup

	org, _, err := tg.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)

	_, err = tg.RequireFeature(ctx, org.ID, tollgate.FeatureSharing)
	require.ErrorIs(t, err, tollgate.ErrFeatureDenied)

	pro, err := tg.GetPlanByName(ctx, "Pro")
	require.NoError(t, err)
	_, err = tg.ChangePlan(ctx, org.ID, pro.ID)
	require.NoError(t, err)

	free, err := tg.GetPlanByName(ctx, "Free")
	require.NoError(t, err)
	_, err = tg.ChangePlan(ctx, org.ID, free.ID)
	require.NoError(t, err)

	actions := rec.actions()
	assert.Contains(t, actions, audithook.ActionPlanCreated)
	assert.Contains(t, actions, audithook.ActionOrganizationCreated)
	assert.Contains(t, actions, audithook.ActionFeatureDenied)
	assert.Contains(t, actions, audithook.ActionSubscriptionUpgraded)
	assert.Contains(t, actions, audithook.ActionSubscriptionDowngraded)

	denied := rec.find(audithook.ActionFeatureDenied)
	require.NotNil(t, denied)
	assert.Equal(t, org.ID.String(), denied.ResourceID)
	assert.Equal(t, "sharing", denied.Metadata["feature"])
	assert.Equal(t, audithook.OutcomeFailure, denied.Outcome)
	assert.NotEmpty(t, denied.Reason)
}

func TestLimitReachedEvent(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	resets := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	orgID := id.NewOrgID()
	require.NoError(t, ext.OnLimitReached(context.Background(), orgID, &gate.LimitReachedError{
		Metric:   "documents",
		LimitKey: plan.LimitMaxDocuments,
		Current:  10,
		Limit:    10,
		Unit:     gate.UnitCount,
		ResetsAt: resets,
	}))

	evt := rec.find(audithook.ActionLimitReached)
	require.NotNil(t, evt)
	assert.Equal(t, audithook.SeverityWarning, evt.Severity)
	assert.Equal(t, int64(10), evt.Metadata["current"])
	assert.Equal(t, resets, evt.Metadata["resets_at"])
}

func TestUsageDriftEvent(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	cause := errors.New("connection reset")
	require.NoError(t, ext.OnUsageDrift(context.Background(), id.NewOrgID(), "storage", -2048, cause))

	evt := rec.find(audithook.ActionUsageDrift)
	require.NotNil(t, evt)
	assert.Equal(t, audithook.OutcomePartial, evt.Outcome)
	assert.Equal(t, int64(-2048), evt.Metadata["delta"])
	assert.Equal(t, "connection reset", evt.Reason)
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), OrgID: id.NewOrgID(), PlanID: id.NewPlanID()}

	t.Run("enabled", func(t *testing.T) {
		rec := &memRecorder{}
		ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionSubscriptionExpired))

		require.NoError(t, ext.OnSubscriptionCreated(ctx, sub))
		require.NoError(t, ext.OnSubscriptionExpired(ctx, sub))
		assert.Equal(t, []string{audithook.ActionSubscriptionExpired}, rec.actions())
	})

	t.Run("disabled", func(t *testing.T) {
		rec := &memRecorder{}
		ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionSubscriptionCreated))

		require.NoError(t, ext.OnSubscriptionCreated(ctx, sub))
		require.NoError(t, ext.OnSubscriptionExpired(ctx, sub))
		assert.Equal(t, []string{audithook.ActionSubscriptionExpired}, rec.actions())
	})
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("sink down")
	}))
	assert.NoError(t, ext.OnPlanArchived(context.Background(), id.NewPlanID()))
}
