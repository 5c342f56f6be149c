package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/usage"
)

var march = time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	orgID := id.NewOrgID()
	w := period.Monthly(march)

	const n = 200
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementUsage(ctx, orgID, usage.MetricDocuments, 1, w, march)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.GetOrCreateUsage(ctx, orgID, usage.MetricDocuments, w, march)
	require.NoError(t, err)
	assert.Equal(t, int64(n), rec.Count)
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	orgID := id.NewOrgID()
	w := period.Monthly(march)

	_, err := s.IncrementUsage(ctx, orgID, usage.MetricDocuments, 5, w, march)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				_, _ = s.IncrementUsage(ctx, orgID, usage.MetricDocuments, 1, w, march)
				return
			}
			rec, err := s.DecrementUsage(ctx, orgID, usage.MetricDocuments, 2, w, march)
			assert.NoError(t, err)
			if rec != nil {
				assert.GreaterOrEqual(t, rec.Count, int64(0))
			}
		}()
	}
	wg.Wait()

	rec, err := s.GetOrCreateUsage(ctx, orgID, usage.MetricDocuments, w, march)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.Count, int64(0))

	rec, err = s.DecrementUsage(ctx, orgID, usage.MetricDocuments, rec.Count+1, w, march)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStaleRecordResetsOnce(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	orgID := id.NewOrgID()

	feb := march.AddDate(0, -1, 0)
	_, err := s.IncrementUsage(ctx, orgID, usage.MetricDocuments, 7, period.Monthly(feb), feb)
	require.NoError(t, err)

	w := period.Monthly(march)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementUsage(ctx, orgID, usage.MetricDocuments, 1, w, march)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.GetOrCreateUsage(ctx, orgID, usage.MetricDocuments, w, march)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Count)
	assert.Equal(t, w.Start, rec.PeriodStart)
	assert.Equal(t, w.End, rec.PeriodEnd)
	require.NotNil(t, rec.LastResetAt)
	assert.Equal(t, march, *rec.LastResetAt)
}

func TestGetOrCreateStartsAtZero(t *testing.T) {
	s := memory.New()
	w := period.Monthly(march)

	rec, err := s.GetOrCreateUsage(context.Background(), id.NewOrgID(), usage.MetricStorage, w, march)
	require.NoError(t, err)
	assert.Zero(t, rec.Count)
	assert.Nil(t, rec.LastResetAt)
	assert.Equal(t, id.PrefixUsage, rec.ID.Prefix())
}

func TestSupersedeLeavesOneActive(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	orgID := id.NewOrgID()

	first := newSub(orgID)
	require.NoError(t, s.CreateSubscription(ctx, first))
	assert.ErrorIs(t, s.CreateSubscription(ctx, newSub(orgID)), subscription.ErrConflict)

	second := newSub(orgID)
	second.Entity = types.EntityAt(march.Add(time.Minute))
	expired, err := s.SupersedeSubscription(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	active, err := s.ListActiveSubscriptions(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	old, err := s.GetSubscription(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, old.Status)
	assert.NotNil(t, old.ExpiredAt)

	all, err := s.ListSubscriptions(ctx, orgID, subscription.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
}

func TestConcurrentSupersede(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	orgID := id.NewOrgID()
	require.NoError(t, s.CreateSubscription(ctx, newSub(orgID)))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SupersedeSubscription(ctx, newSub(orgID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := s.ListActiveSubscriptions(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestExpireIsIdempotent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	sub := newSub(id.NewOrgID())
	require.NoError(t, s.CreateSubscription(ctx, sub))

	require.NoError(t, s.ExpireSubscription(ctx, sub.ID, march))
	require.NoError(t, s.ExpireSubscription(ctx, sub.ID, march.Add(time.Hour)))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, march, *got.ExpiredAt)

	assert.ErrorIs(t, s.ExpireSubscription(ctx, id.NewSubscriptionID(), march), subscription.ErrNotFound)
}

func TestPlans(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for _, p := range plan.DefaultCatalog() {
		p.ID = id.NewPlanID()
		p.Entity = types.NewEntity()
		require.NoError(t, s.CreatePlan(ctx, p))
	}

	dup := plan.DefaultCatalog()[0]
	dup.ID = id.NewPlanID()
	assert.ErrorIs(t, s.CreatePlan(ctx, dup), plan.ErrExists)

	pro, err := s.GetPlanByName(ctx, "Pro")
	require.NoError(t, err)
	require.NoError(t, s.ArchivePlan(ctx, pro.ID))

	active, err := s.ListPlans(ctx, plan.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Free", active[0].Name)
	assert.Equal(t, "Enterprise", active[1].Name)

	all, err := s.ListPlans(ctx, plan.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Pro", all[0].Name)

	got, err := s.GetPlan(ctx, pro.ID)
	require.NoError(t, err)
	got.Features = nil
	again, err := s.GetPlan(ctx, pro.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, again.Features, "returned plans are copies")

	_, err = s.GetPlan(ctx, id.NewPlanID())
	assert.ErrorIs(t, err, plan.ErrNotFound)
}

func TestOrganizations(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i, name := range []string{"Acme", "Globex", "Initech"} {
		o := &organization.Organization{
			Entity: types.EntityAt(march.Add(time.Duration(i) * time.Minute)),
			ID:     id.NewOrgID(),
			Name:   name,
			Slug:   organization.Slugify(name),
		}
		require.NoError(t, s.CreateOrganization(ctx, o))
	}

	dup := &organization.Organization{ID: id.NewOrgID(), Name: "ACME", Slug: "acme"}
	assert.ErrorIs(t, s.CreateOrganization(ctx, dup), organization.ErrExists)

	orgs, total, err := s.ListOrganizations(ctx, organization.ListOpts{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Initech", orgs[0].Name)

	got, err := s.GetOrganizationBySlug(ctx, "globex")
	require.NoError(t, err)
	assert.Equal(t, "Globex", got.Name)

	require.NoError(t, s.DeleteOrganization(ctx, got.ID))
	_, err = s.GetOrganizationBySlug(ctx, "globex")
	assert.ErrorIs(t, err, organization.ErrNotFound)
	assert.NoError(t, s.DeleteOrganization(ctx, got.ID), "deleting twice is a no-op")

	_, err = s.GetOrganization(ctx, id.NewOrgID())
	assert.ErrorIs(t, err, organization.ErrNotFound)
}

func newSub(orgID id.OrgID) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:    types.EntityAt(march),
		ID:        id.NewSubscriptionID(),
		OrgID:     orgID,
		PlanID:    id.NewPlanID(),
		Status:    subscription.StatusActive,
		StartDate: march,
		EndDate:   period.SubscriptionEnd(march, true),
	}
}
