package postgres

import (
	"encoding/json"
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

	ID            string          `grove:"id,pk"`
	Name          string          `grove:"name"`
	Features      json.RawMessage `grove:"features,type:jsonb"`
	Limits        json.RawMessage `grove:"limits,type:jsonb"`
	PriceAmount   int64           `grove:"price_amount"`
	PriceCurrency string          `grove:"price_currency"`
	Color         string          `grove:"color"`
	Active        bool            `grove:"active"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	features, _ := json.Marshal(p.Features) //nolint:errcheck // string slice
	limits, _ := json.Marshal(p.Limits)     //nolint:errcheck // string-keyed map

	return &planModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		Features:      features,
		Limits:        limits,
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

	var features []plan.Feature
	if len(m.Features) > 0 {
		if err := json.Unmarshal(m.Features, &features); err != nil {
			return nil, err
		}
	}

	var limits map[string]int64
	if len(m.Limits) > 0 && string(m.Limits) != "null" {
		if err := json.Unmarshal(m.Limits, &limits); err != nil {
			return nil, err
		}
	}

	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       planID,
		Name:     m.Name,
		Features: features,
		Limits:   limits,
		Price:    types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		Color:    m.Color,
		Active:   m.Active,
	}, nil
}

// ==================== Organization models ====================

type organizationModel struct {
	grove.BaseModel `grove:"table:tollgate_organizations"`

	ID        string    `grove:"id,pk"`
	Name      string    `grove:"name"`
	Slug      string    `grove:"slug"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

	ID        string     `grove:"id,pk"`
	OrgID     string     `grove:"org_id"`
	PlanID    string     `grove:"plan_id"`
	Status    string     `grove:"status"`
	StartDate time.Time  `grove:"start_date"`
	EndDate   time.Time  `grove:"end_date"`
	ExpiredAt *time.Time `grove:"expired_at"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
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

	ID          string     `grove:"id,pk"`
	OrgID       string     `grove:"org_id"`
	Metric      string     `grove:"metric"`
	Count       int64      `grove:"count"`
	PeriodStart time.Time  `grove:"period_start"`
	PeriodEnd   time.Time  `grove:"period_end"`
	LastResetAt *time.Time `grove:"last_reset_at"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
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

	return &usage.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          usageID,
		OrgID:       orgID,
		Metric:      m.Metric,
		Count:       m.Count,
		PeriodStart: m.PeriodStart,
		PeriodEnd:   m.PeriodEnd,
		LastResetAt: m.LastResetAt,
	}, nil
}
