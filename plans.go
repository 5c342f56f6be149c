package tollgate

import (
	"context"
	"errors"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/types"
)

// PlanUpdate is a partial plan change. Nil fields are left as they are.
type PlanUpdate struct {
	Name     *string
	Features []plan.Feature
	Limits   map[string]int64
	Price    *types.Money
	Color    *string
	Active   *bool
}

// CreatePlan validates and stores a new plan.
func (t *Tollgate) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if p.ID.IsNil() {
		p.ID = id.NewPlanID()
	}
	if p.Color == "" {
		p.Color = plan.DefaultColor
	}
	p.Entity = types.EntityAt(t.now())

	if err := plan.Validate(p); err != nil {
		return err
	}
	if err := t.store.CreatePlan(ctx, p); err != nil {
		return storageErr("create plan", err)
	}

	t.logger.Info("tollgate: plan created",
		"plan_id", p.ID.String(),
		"name", p.Name,
		"price", p.Price.String(),
	)
	t.plugins.EmitPlanCreated(ctx, p)
	return nil
}

// GetPlan retrieves a plan by ID.
func (t *Tollgate) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	p, err := t.store.GetPlan(ctx, planID)
	return p, storageErr("get plan", err)
}

// GetPlanByName retrieves a plan by its unique name.
func (t *Tollgate) GetPlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	p, err := t.store.GetPlanByName(ctx, name)
	return p, storageErr("get plan", err)
}

// ListPlans lists plans by ascending price.
func (t *Tollgate) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	plans, err := t.store.ListPlans(ctx, opts)
	return plans, storageErr("list plans", err)
}

// UpdatePlan applies u to the plan. Organizations on the plan see the
// change on their next entitlement read.
func (t *Tollgate) UpdatePlan(ctx context.Context, planID id.PlanID, u PlanUpdate) (*plan.Plan, error) {
	old, err := t.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	p := old.Clone()
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Features != nil {
		p.Features = u.Features
	}
	if u.Limits != nil {
		p.Limits = u.Limits
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Color != nil {
		p.Color = *u.Color
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	p.Entity = old.Entity
	p.UpdatedAt = t.now().UTC()

	if err := plan.Validate(p); err != nil {
		return nil, err
	}
	if err := t.store.UpdatePlan(ctx, p); err != nil {
		return nil, storageErr("update plan", err)
	}

	t.resolver.Purge()
	t.plugins.EmitPlanUpdated(ctx, old, p)
	return p, nil
}

// ArchivePlan stops offering a plan. Existing subscriptions keep it.
func (t *Tollgate) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	if err := t.store.ArchivePlan(ctx, planID); err != nil {
		return storageErr("archive plan", err)
	}

	t.resolver.Purge()
	t.logger.Info("tollgate: plan archived", "plan_id", planID.String())
	t.plugins.EmitPlanArchived(ctx, planID)
	return nil
}

// DefaultPlan returns the cheapest active plan, the one new organizations
// start on. It fails with ErrNoActivePlan when no plan is active.
func (t *Tollgate) DefaultPlan(ctx context.Context) (*plan.Plan, error) {
	plans, err := t.ListPlans(ctx, plan.ListOpts{ActiveOnly: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, ErrNoActivePlan
	}
	return plans[0], nil
}

// SeedPlans creates each plan whose name is not taken yet and returns how
// many were created.
func (t *Tollgate) SeedPlans(ctx context.Context, plans []*plan.Plan) (int, error) {
	created := 0
	for _, p := range plans {
		_, err := t.GetPlanByName(ctx, p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrPlanNotFound) {
			return created, err
		}

		cp := p.Clone()
		if err := t.CreatePlan(ctx, cp); err != nil {
			if errors.Is(err, ErrPlanExists) {
				continue
			}
			return created, err
		}
		created++
	}

	if created > 0 {
		t.logger.Info("tollgate: plans seeded", "created", created)
	}
	return created, nil
}

// storageErr passes domain outcomes through and marks everything else as
// a storage failure.
func storageErr(op string, err error) error {
	if err == nil ||
		IsNotFound(err) ||
		errors.Is(err, ErrPlanExists) ||
		errors.Is(err, ErrOrganizationExists) ||
		errors.Is(err, ErrSubscriptionConflict) {
		return err
	}
	return types.WrapStorage(op, err)
}
