// Package memory is an in-process tollgate store. A single mutex
// serializes every operation, which makes each usage primitive atomic.
// Values are copied in and out so callers never share state with it.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/usage"
)

var _ store.Store = (*Store)(nil)

type usageKey struct {
	org    string
	metric string
}

type Store struct {
	mu sync.RWMutex

	plans         map[string]*plan.Plan
	organizations map[string]*organization.Organization
	subscriptions map[string]*subscription.Subscription
	usage         map[usageKey]*usage.Record
}

func New() *Store {
	return &Store{
		plans:         make(map[string]*plan.Plan),
		organizations: make(map[string]*organization.Organization),
		subscriptions: make(map[string]*subscription.Subscription),
		usage:         make(map[usageKey]*usage.Record),
	}
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.plans {
		if existing.Name == p.Name {
			return plan.ErrExists
		}
	}
	if _, exists := s.plans[p.ID.String()]; exists {
		return plan.ErrExists
	}
	s.plans[p.ID.String()] = p.Clone()
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, plan.ErrNotFound
}

func (s *Store) GetPlanByName(_ context.Context, name string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if p.Name == name {
			return p.Clone(), nil
		}
	}
	return nil, plan.ErrNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if opts.ActiveOnly && !p.Active {
			continue
		}
		result = append(result, p.Clone())
	}
	slices.SortFunc(result, func(a, b *plan.Plan) int {
		return cmp.Or(cmp.Compare(a.Price.Amount, b.Price.Amount), cmp.Compare(a.Name, b.Name))
	})

	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; !exists {
		return plan.ErrNotFound
	}
	for key, existing := range s.plans {
		if existing.Name == p.Name && key != p.ID.String() {
			return plan.ErrExists
		}
	}
	s.plans[p.ID.String()] = p.Clone()
	return nil
}

func (s *Store) ArchivePlan(_ context.Context, planID id.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.plans[planID.String()]
	if !exists {
		return plan.ErrNotFound
	}
	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ==================== Organization Store ====================

func (s *Store) CreateOrganization(_ context.Context, o *organization.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.organizations {
		if existing.Slug == o.Slug {
			return organization.ErrExists
		}
	}
	if _, exists := s.organizations[o.ID.String()]; exists {
		return organization.ErrExists
	}
	cp := *o
	s.organizations[o.ID.String()] = &cp
	return nil
}

func (s *Store) GetOrganization(_ context.Context, orgID id.OrgID) (*organization.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.organizations[orgID.String()]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, organization.ErrNotFound
}

func (s *Store) GetOrganizationBySlug(_ context.Context, slug string) (*organization.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.organizations {
		if o.Slug == slug {
			cp := *o
			return &cp, nil
		}
	}
	return nil, organization.ErrNotFound
}

func (s *Store) ListOrganizations(_ context.Context, opts organization.ListOpts) ([]*organization.Organization, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*organization.Organization, 0, len(s.organizations))
	for _, o := range s.organizations {
		cp := *o
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *organization.Organization) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), id.Compare(b.ID, a.ID))
	})

	return page(result, opts.Limit, opts.Offset), int64(len(result)), nil
}

func (s *Store) DeleteOrganization(_ context.Context, orgID id.OrgID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.organizations, orgID.String())
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return subscription.ErrConflict
	}
	if sub.IsActive() && s.hasActive(sub.OrgID) {
		return subscription.ErrConflict
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, subscription.ErrNotFound
}

func (s *Store) ListActiveSubscriptions(ctx context.Context, orgID id.OrgID) ([]*subscription.Subscription, error) {
	return s.ListSubscriptions(ctx, orgID, subscription.ListOpts{Status: subscription.StatusActive})
}

func (s *Store) ListSubscriptions(_ context.Context, orgID id.OrgID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.OrgID != orgID {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *subscription.Subscription) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), id.Compare(b.ID, a.ID))
	})

	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) ExpireSubscription(_ context.Context, subID id.SubscriptionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return subscription.ErrNotFound
	}
	if sub.IsActive() {
		s.expire(sub, at)
	}
	return nil
}

func (s *Store) SupersedeSubscription(_ context.Context, sub *subscription.Subscription) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for _, existing := range s.subscriptions {
		if existing.OrgID == sub.OrgID && existing.IsActive() {
			s.expire(existing, sub.StartDate)
			expired++
		}
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return expired, nil
}

func (s *Store) hasActive(orgID id.OrgID) bool {
	for _, sub := range s.subscriptions {
		if sub.OrgID == orgID && sub.IsActive() {
			return true
		}
	}
	return false
}

func (s *Store) expire(sub *subscription.Subscription, at time.Time) {
	at = at.UTC()
	sub.Status = subscription.StatusExpired
	sub.ExpiredAt = &at
	sub.UpdatedAt = at
}

// ==================== Usage Store ====================

func (s *Store) GetOrCreateUsage(_ context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) (*usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyRecord(s.current(orgID, metric, w, now)), nil
}

func (s *Store) IncrementUsage(_ context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.current(orgID, metric, w, now)
	rec.Count += delta
	rec.UpdatedAt = now
	return copyRecord(rec), nil
}

func (s *Store) DecrementUsage(_ context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.current(orgID, metric, w, now)
	if rec.Count < delta {
		return nil, nil //nolint:nilnil // guard did not match
	}
	rec.Count -= delta
	rec.UpdatedAt = now
	return copyRecord(rec), nil
}

// current returns the live record for (org, metric) in w, rolling a
// stale one over or creating it. Callers hold the write lock.
func (s *Store) current(orgID id.OrgID, metric string, w period.Window, now time.Time) *usage.Record {
	k := usageKey{org: orgID.String(), metric: metric}
	rec, ok := s.usage[k]
	if !ok {
		rec = usage.NewRecord(orgID, metric, w, now)
		s.usage[k] = rec
		return rec
	}
	if rec.PeriodEnd.Before(now) {
		reset := now
		rec.Count = 0
		rec.PeriodStart = w.Start
		rec.PeriodEnd = w.End
		rec.LastResetAt = &reset
		rec.UpdatedAt = now
	}
	return rec
}

func copyRecord(rec *usage.Record) *usage.Record {
	cp := *rec
	if rec.LastResetAt != nil {
		t := *rec.LastResetAt
		cp.LastResetAt = &t
	}
	return &cp
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
