package tollgate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/usage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingStore counts usage reads and can fail usage and subscription writes.
type countingStore struct {
	*memory.Store
	reads         atomic.Int64
	failReads     atomic.Bool
	failIncrement atomic.Bool
	failSubscribe atomic.Bool
}

func (s *countingStore) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if s.failSubscribe.Load() {
		return errors.New("dial tcp: i/o timeout")
	}
	return s.Store.CreateSubscription(ctx, sub)
}

func (s *countingStore) GetOrCreateUsage(ctx context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) (*usage.Record, error) {
	s.reads.Add(1)
	if s.failReads.Load() {
		return nil, errors.New("dial tcp: i/o timeout")
	}
	return s.Store.GetOrCreateUsage(ctx, orgID, metric, w, now)
}

func (s *countingStore) IncrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	if s.failIncrement.Load() {
		return nil, errors.New("dial tcp: i/o timeout")
	}
	return s.Store.IncrementUsage(ctx, orgID, metric, delta, w, now)
}

type events struct {
	mu       sync.Mutex
	drift    []string
	reached  []*gate.LimitReachedError
	expired  []id.SubscriptionID
	changed  int
	denied   int
	released map[string]int64
}

func (e *events) Name() string { return "events" }

func (e *events) OnUsageDrift(_ context.Context, _ id.OrgID, metric string, _ int64, _ error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drift = append(e.drift, metric)
	return nil
}

func (e *events) OnLimitReached(_ context.Context, _ id.OrgID, reached *gate.LimitReachedError) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reached = append(e.reached, reached)
	return nil
}

func (e *events) OnSubscriptionExpired(_ context.Context, sub *subscription.Subscription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired = append(e.expired, sub.ID)
	return nil
}

func (e *events) OnSubscriptionChanged(_ context.Context, _ *subscription.Subscription, _, _ *plan.Plan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed++
	return nil
}

func (e *events) OnFeatureDenied(_ context.Context, _ id.OrgID, _ *gate.FeatureDeniedError) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.denied++
	return nil
}

func (e *events) OnUsageReleased(_ context.Context, _ id.OrgID, deltas map[string]int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = deltas
	return nil
}

type fixture struct {
	t      *tollgate.Tollgate
	store  *countingStore
	clock  *clock
	events *events
}

func newFixture(t *testing.T, opts ...tollgate.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:  &countingStore{Store: memory.New()},
		clock:  &clock{now: time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)},
		events: &events{},
	}
	opts = append([]tollgate.Option{
		tollgate.WithClock(f.clock.Now),
		tollgate.WithPlugin(f.events),
		tollgate.WithSeedPlans(plan.DefaultCatalog()...),
	}, opts...)
	f.t = tollgate.New(f.store, opts...)

	require.NoError(t, f.t.Start(context.Background()))
	t.Cleanup(func() { _ = f.t.Stop() })
	return f
}

func (f *fixture) org(t *testing.T, name string) *organization.Organization {
	t.Helper()
	org, _, err := f.t.CreateOrganization(context.Background(), name)
	require.NoError(t, err)
	return org
}

func (f *fixture) planID(t *testing.T, name string) id.PlanID {
	t.Helper()
	p, err := f.t.GetPlanByName(context.Background(), name)
	require.NoError(t, err)
	return p.ID
}

func upload(orgID id.OrgID) tollgate.Request {
	return tollgate.Request{
		OrgID:      orgID,
		Capability: tollgate.FeatureDocCRUD,
		Deltas:     map[string]int64{tollgate.MetricDocuments: 1, tollgate.MetricStorage: 2048},
	}
}

func TestFreePlanStopsAtTenDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	persisted := 0
	op := func(context.Context) error {
		persisted++
		return nil
	}

	for i := range 10 {
		require.NoError(t, f.t.Enforce(ctx, upload(org.ID), op), "upload %d", i+1)
	}

	err := f.t.Enforce(ctx, upload(org.ID), op)
	require.Error(t, err)
	assert.True(t, tollgate.IsDenial(err))
	assert.False(t, tollgate.IsRetryable(err))

	var reached *tollgate.LimitReachedError
	require.True(t, errors.As(err, &reached))
	assert.Equal(t, tollgate.MetricDocuments, reached.Metric)
	assert.Equal(t, int64(10), reached.Current)
	assert.Equal(t, int64(10), reached.Limit)
	assert.Equal(t, period.Monthly(f.clock.Now()).End, reached.ResetsAt)

	assert.Equal(t, 10, persisted, "the denied upload never runs")
	rec, err := f.t.Ledger().GetOrCreate(ctx, org.ID, tollgate.MetricDocuments)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Count, "no 11th increment")
	require.Len(t, f.events.reached, 1)
}

func TestChangePlanFreeToPro(t *testing.T) {
	f := newFixture(t, tollgate.WithEntitlementCache(100, time.Hour))
	ctx := context.Background()
	org := f.org(t, "Acme")

	_, err := f.t.RequireFeature(ctx, org.ID, tollgate.FeatureSharing)
	var denied *tollgate.FeatureDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "Free", denied.Plan)
	assert.Equal(t, tollgate.FeatureSharing, denied.Feature)

	f.clock.Advance(time.Minute)
	sub, err := f.t.ChangePlan(ctx, org.ID, f.planID(t, "Pro"))
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().AddDate(0, 1, 0), sub.EndDate)

	active, err := f.t.Store().ListActiveSubscriptions(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sub.ID, active[0].ID)

	res, err := f.t.RequireFeature(ctx, org.ID, tollgate.FeatureSharing)
	require.NoError(t, err)
	assert.Equal(t, "Pro", res.Plan.Name)
	assert.Equal(t, 1, f.events.changed)
	assert.Equal(t, 1, f.events.denied)

	history, err := f.t.Subscriptions(ctx, org.ID, subscription.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, subscription.StatusExpired, history[1].Status)
}

func TestChangePlanRejectsInactivePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	proID := f.planID(t, "Pro")
	require.NoError(t, f.t.ArchivePlan(ctx, proID))

	_, err := f.t.ChangePlan(ctx, org.ID, proID)
	assert.ErrorIs(t, err, tollgate.ErrPlanInactive)

	_, err = f.t.ChangePlan(ctx, org.ID, id.NewPlanID())
	assert.True(t, tollgate.IsNotFound(err))

	_, err = f.t.ChangePlan(ctx, id.NewOrgID(), f.planID(t, "Enterprise"))
	assert.ErrorIs(t, err, tollgate.ErrOrganizationNotFound)
}

func TestCreateOrganizationNeedsActivePlan(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tg := tollgate.New(s)
	require.NoError(t, tg.Start(ctx))

	_, _, err := tg.CreateOrganization(ctx, "Acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, tollgate.ErrNoActivePlan)
	assert.True(t, tollgate.IsConfigError(err))

	_, total, err := tg.ListOrganizations(ctx, organization.ListOpts{})
	require.NoError(t, err)
	assert.Zero(t, total, "nothing is written without a plan")
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, sub, err := f.t.CreateOrganization(ctx, "  Acme Corp ")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", org.Name)
	assert.Equal(t, "acme-corp", org.Slug)
	assert.Equal(t, f.planID(t, "Free"), sub.PlanID)
	assert.Equal(t, f.clock.Now().AddDate(period.Lifetime, 0, 0), sub.EndDate)

	_, _, err = f.t.CreateOrganization(ctx, "ACME corp")
	assert.ErrorIs(t, err, tollgate.ErrOrganizationExists)

	_, _, err = f.t.CreateOrganization(ctx, "   ")
	assert.ErrorIs(t, err, tollgate.ErrInvalidInput)

	got, err := f.t.GetOrganizationBySlug(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)
}

func TestCreateOrganizationUndoesOrgWhenSubscriptionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.failSubscribe.Store(true)
	_, _, err := f.t.CreateOrganization(ctx, "Acme")
	require.Error(t, err)
	assert.True(t, tollgate.IsRetryable(err))

	_, err = f.t.GetOrganizationBySlug(ctx, "acme")
	assert.ErrorIs(t, err, tollgate.ErrOrganizationNotFound)
	_, total, err := f.t.ListOrganizations(ctx, organization.ListOpts{})
	require.NoError(t, err)
	assert.Zero(t, total)

	f.store.failSubscribe.Store(false)
	org, sub, err := f.t.CreateOrganization(ctx, "Acme")
	require.NoError(t, err, "the slug is free again")
	assert.Equal(t, "acme", org.Slug)
	assert.Equal(t, org.ID, sub.OrgID)
}

func TestLazyExpiry(t *testing.T) {
	f := newFixture(t, tollgate.WithEntitlementCache(100, time.Hour))
	ctx := context.Background()
	org := f.org(t, "Acme")

	sub, err := f.t.ChangePlan(ctx, org.ID, f.planID(t, "Pro"))
	require.NoError(t, err)
	_, err = f.t.ResolveEntitlement(ctx, org.ID)
	require.NoError(t, err)

	f.clock.Advance(45 * 24 * time.Hour)

	out, err := f.t.CheckAndReserve(ctx, upload(org.ID))
	require.Error(t, err)
	assert.False(t, out.Proceed)
	assert.Equal(t, tollgate.ReasonExpired, out.Reason)

	var expired *tollgate.ExpiredError
	require.True(t, errors.As(err, &expired))
	assert.Equal(t, sub.ID, expired.SubscriptionID)
	assert.Equal(t, sub.EndDate, expired.ExpiredAt)

	stored, err := f.t.Store().GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, stored.Status)
	assert.Equal(t, []id.SubscriptionID{sub.ID}, f.events.expired)

	out, err = f.t.CheckAndReserve(ctx, upload(org.ID))
	assert.ErrorIs(t, err, tollgate.ErrNoEntitlement)
	assert.Equal(t, tollgate.ReasonNoEntitlement, out.Reason)
}

func TestUnlimitedMetricIsNotRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	_, err := f.t.ChangePlan(ctx, org.ID, f.planID(t, "Enterprise"))
	require.NoError(t, err)

	f.store.reads.Store(0)
	out, err := f.t.CheckAndReserve(ctx, upload(org.ID))
	require.NoError(t, err)
	assert.True(t, out.Proceed)
	assert.True(t, out.Usage[tollgate.MetricDocuments].Unlimited)
	assert.True(t, out.Usage[tollgate.MetricStorage].Unlimited)
	assert.Zero(t, f.store.reads.Load())
}

func TestFailClosedOnStorageError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	f.store.failReads.Store(true)
	ran := false
	err := f.t.Enforce(ctx, upload(org.ID), func(context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, ran)
	assert.True(t, tollgate.IsRetryable(err))
	assert.False(t, tollgate.IsDenial(err))

	out, _ := f.t.CheckAndReserve(ctx, upload(org.ID))
	assert.False(t, out.Proceed)
	assert.Equal(t, tollgate.ReasonStorageUnavailable, out.Reason)
}

func TestFailedOperationCommitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	boom := errors.New("blob store down")
	err := f.t.Enforce(ctx, upload(org.ID), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	rec, err := f.t.Ledger().GetOrCreate(ctx, org.ID, tollgate.MetricDocuments)
	require.NoError(t, err)
	assert.Zero(t, rec.Count)
}

func TestCommitFailureIsReportedAsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	f.store.failIncrement.Store(true)
	require.NoError(t, f.t.Enforce(ctx, upload(org.ID), func(context.Context) error { return nil }))
	assert.ElementsMatch(t, []string{tollgate.MetricDocuments, tollgate.MetricStorage}, f.events.drift)

	err := f.t.CommitUsage(ctx, org.ID, map[string]int64{tollgate.MetricDocuments: 1})
	var multi tollgate.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 1)
	assert.True(t, tollgate.IsRetryable(err))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	require.NoError(t, f.t.Enforce(ctx, upload(org.ID), func(context.Context) error { return nil }))

	del := tollgate.Request{
		OrgID:      org.ID,
		Capability: tollgate.FeatureDocCRUD,
		Deltas:     map[string]int64{tollgate.MetricDocuments: 1, tollgate.MetricStorage: 4096},
	}
	deleted := false
	require.NoError(t, f.t.EnforceRelease(ctx, del, func(context.Context) error {
		deleted = true
		return nil
	}))
	assert.True(t, deleted)

	docs, err := f.t.Ledger().GetOrCreate(ctx, org.ID, tollgate.MetricDocuments)
	require.NoError(t, err)
	assert.Zero(t, docs.Count)

	storage, err := f.t.Ledger().GetOrCreate(ctx, org.ID, tollgate.MetricStorage)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), storage.Count, "guarded decrement left storage alone")
	assert.Equal(t, map[string]int64{tollgate.MetricDocuments: 1}, f.events.released)
}

func TestStorageLimitInMegabytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := &plan.Plan{
		Name:     "Tiny",
		Features: []plan.Feature{plan.FeatureDocCRUD},
		Limits:   map[string]int64{plan.LimitMaxDocuments: 100, plan.LimitMaxStorage: 1},
		Price:    tollgate.USD(500),
		Active:   true,
	}
	require.NoError(t, f.t.CreatePlan(ctx, p))
	assert.Equal(t, plan.DefaultColor, p.Color)

	org := f.org(t, "Acme")
	_, err := f.t.ChangePlan(ctx, org.ID, p.ID)
	require.NoError(t, err)

	req := tollgate.Request{
		OrgID:      org.ID,
		Capability: tollgate.FeatureDocCRUD,
		Deltas:     map[string]int64{tollgate.MetricDocuments: 1, tollgate.MetricStorage: 1024 * 1024},
	}
	require.NoError(t, f.t.Enforce(ctx, req, func(context.Context) error { return nil }))

	out, err := f.t.CheckAndReserve(ctx, req)
	require.Error(t, err)
	assert.Equal(t, tollgate.ReasonLimitReached, out.Reason)
	assert.True(t, out.Usage[tollgate.MetricDocuments].Allowed)

	var reached *tollgate.LimitReachedError
	require.True(t, errors.As(err, &reached))
	assert.Equal(t, tollgate.MetricStorage, reached.Metric)
	assert.Equal(t, gate.UnitMegabytes, reached.Unit)
	assert.Equal(t, "tollgate: storage limit reached: 1.00/1 MB", reached.Error())
}

func TestCheckAndReserveRejectsBadDeltas(t *testing.T) {
	f := newFixture(t)
	org := f.org(t, "Acme")

	out, err := f.t.CheckAndReserve(context.Background(), tollgate.Request{
		OrgID:  org.ID,
		Deltas: map[string]int64{tollgate.MetricDocuments: -1},
	})
	assert.ErrorIs(t, err, tollgate.ErrInvalidInput)
	assert.Equal(t, tollgate.ReasonInvalidRequest, out.Reason)
}

func TestUsageSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	for range 3 {
		require.NoError(t, f.t.Enforce(ctx, upload(org.ID), func(context.Context) error { return nil }))
	}

	summary, err := f.t.Usage(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Free", summary.Entitlement.Plan.Name)

	docs := summary.Usage[tollgate.MetricDocuments]
	require.NotNil(t, docs)
	assert.Equal(t, int64(3), docs.Current)
	assert.Equal(t, int64(10), docs.Limit)
	assert.Equal(t, period.Monthly(f.clock.Now()).End, docs.ResetsAt)

	storage := summary.Usage[tollgate.MetricStorage]
	require.NotNil(t, storage)
	assert.Equal(t, int64(3*2048), storage.Current)
	assert.Equal(t, tollgate.Unlimited, storage.Limit)
}

func TestUsageResetsNextMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.org(t, "Acme")

	for range 10 {
		require.NoError(t, f.t.Enforce(ctx, upload(org.ID), func(context.Context) error { return nil }))
	}
	_, err := f.t.CheckAndReserve(ctx, upload(org.ID))
	require.ErrorIs(t, err, tollgate.ErrLimitReached)

	f.clock.Advance(31 * 24 * time.Hour)
	out, err := f.t.CheckAndReserve(ctx, upload(org.ID))
	require.NoError(t, err)
	assert.Zero(t, out.Usage[tollgate.MetricDocuments].Current)
}

func TestPlanAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	def, err := f.t.DefaultPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Free", def.Name)

	created, err := f.t.SeedPlans(ctx, plan.DefaultCatalog())
	require.NoError(t, err)
	assert.Zero(t, created, "seeding is idempotent")

	limit := int64(25)
	active := false
	updated, err := f.t.UpdatePlan(ctx, def.ID, tollgate.PlanUpdate{
		Limits: map[string]int64{plan.LimitMaxDocuments: limit},
		Active: &active,
	})
	require.NoError(t, err)
	assert.Equal(t, limit, updated.Limits[plan.LimitMaxDocuments])
	assert.Equal(t, "Free", updated.Name)

	def, err = f.t.DefaultPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pro", def.Name)

	bad := "not a color"
	_, err = f.t.UpdatePlan(ctx, def.ID, tollgate.PlanUpdate{Color: &bad})
	assert.ErrorIs(t, err, tollgate.ErrInvalidPlan)

	plans, err := f.t.ListPlans(ctx, plan.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Pro", plans[0].Name)
}
