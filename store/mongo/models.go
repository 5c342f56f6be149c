package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/usage"
)

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:tollgate_plans"`

	ID            string           `grove:"id,pk"          bson:"_id"`
	Name          string           `grove:"name"           bson:"name"`
	Features      []string         `grove:"features"       bson:"features"`
	Limits        map[string]int64 `grove:"limits"         bson:"limits,omitempty"`
	PriceAmount   int64            `grove:"price_amount"   bson:"price_amount"`
	PriceCurrency string           `grove:"price_currency" bson:"price_currency"`
	Color         string           `grove:"color"          bson:"color"`
	Active        bool             `grove:"active"         bson:"active"`
	CreatedAt     time.Time        `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time        `grove:"updated_at"     bson:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	features := make([]string, len(p.Features))
	for i, f := range p.Features {
		features[i] = string(f)
	}

	return &planModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Features:      features,
		Limits:        p.Limits,
		PriceAmount:   p.Price.Amount,
		PriceCurrency: p.Price.Currency,
		Color:         p.Color,
		Active:        p.Active,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}

	features := make([]plan.Feature, len(m.Features))
	for i, f := range m.Features {
		features[i] = plan.Feature(f)
	}

	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       planID,
		Name:     m.Name,
		Features: features,
		Limits:   m.Limits,
		Price:    types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		Color:    m.Color,
		Active:   m.Active,
	}, nil
}

// ==================== Organization models ====================

type organizationModel struct {
	grove.BaseModel `grove:"table:tollgate_organizations"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Name      string    `grove:"name"       bson:"name"`
	Slug      string    `grove:"slug"       bson:"slug"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toOrganizationModel(o *organization.Organization) *organizationModel {
	return &organizationModel{
		ID:        o.ID.String(),
		Name:      o.Name,
		Slug:      o.Slug,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func fromOrganizationModel(m *organizationModel) (*organization.Organization, error) {
	orgID, err := id.ParseOrgID(m.ID)
	if err != nil {
		return nil, err
	}
	return &organization.Organization{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:   orgID,
		Name: m.Name,
		Slug: m.Slug,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tollgate_subscriptions"`

	ID        string     `grove:"id,pk"      bson:"_id"`
	OrgID     string     `grove:"org_id"     bson:"org_id"`
	PlanID    string     `grove:"plan_id"    bson:"plan_id"`
	Status    string     `grove:"status"     bson:"status"`
	StartDate time.Time  `grove:"start_date" bson:"start_date"`
	EndDate   time.Time  `grove:"end_date"   bson:"end_date"`
	ExpiredAt *time.Time `grove:"expired_at" bson:"expired_at,omitempty"`
	CreatedAt time.Time  `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at" bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:        s.ID.String(),
		OrgID:     s.OrgID.String(),
		PlanID:    s.PlanID.String(),
		Status:    string(s.Status),
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		ExpiredAt: s.ExpiredAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrgID(m.OrgID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        subID,
		OrgID:     orgID,
		PlanID:    planID,
		Status:    subscription.Status(m.Status),
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
		ExpiredAt: m.ExpiredAt,
	}, nil
}

// ==================== Usage models ====================

type usageModel struct {
	grove.BaseModel `grove:"table:tollgate_usage"`

	ID          string     `grove:"id,pk"         bson:"_id"`
	OrgID       string     `grove:"org_id"        bson:"org_id"`
	Metric      string     `grove:"metric"        bson:"metric"`
	Count       int64      `grove:"count"         bson:"count"`
	PeriodStart time.Time  `grove:"period_start"  bson:"period_start"`
	PeriodEnd   time.Time  `grove:"period_end"    bson:"period_end"`
	LastResetAt *time.Time `grove:"last_reset_at" bson:"last_reset_at,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"    bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"    bson:"updated_at"`
}

func fromUsageModel(m *usageModel) (*usage.Record, error) {
	usageID, err := id.ParseUsageID(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrgID(m.OrgID)
	if err != nil {
		return nil, err
	}

	rec := &usage.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          usageID,
		OrgID:       orgID,
		Metric:      m.Metric,
		Count:       m.Count,
		PeriodStart: m.PeriodStart.UTC(),
		PeriodEnd:   m.PeriodEnd.UTC(),
	}
	if m.LastResetAt != nil {
		t := m.LastResetAt.UTC()
		rec.LastResetAt = &t
	}
	return rec, nil
}
