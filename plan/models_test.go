package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/types"
)

func TestPlanFeaturesAndLimits(t *testing.T) {
	p := &plan.Plan{
		Name:     "Pro",
		Features: []plan.Feature{plan.FeatureDocCRUD, plan.FeatureSharing},
		Limits:   map[string]int64{plan.LimitMaxDocuments: 200},
		Price:    types.USD(2999),
	}

	assert.True(t, p.HasFeature(plan.FeatureSharing))
	assert.False(t, p.HasFeature(plan.FeatureAdvancedSearch))

	limit, ok := p.Limit(plan.LimitMaxDocuments)
	assert.True(t, ok)
	assert.Equal(t, int64(200), limit)

	_, ok = p.Limit(plan.LimitMaxStorage)
	assert.False(t, ok)

	assert.False(t, p.IsFree())
}

func TestPlanClone(t *testing.T) {
	p := &plan.Plan{
		Name:     "Free",
		Features: []plan.Feature{plan.FeatureDocCRUD},
		Limits:   map[string]int64{plan.LimitMaxDocuments: 10},
	}
	cp := p.Clone()
	cp.Features[0] = plan.FeatureSharing
	cp.Limits[plan.LimitMaxDocuments] = 99

	assert.Equal(t, plan.FeatureDocCRUD, p.Features[0])
	assert.Equal(t, int64(10), p.Limits[plan.LimitMaxDocuments])
	assert.Nil(t, (*plan.Plan)(nil).Clone())
}

func TestValidate(t *testing.T) {
	valid := func() *plan.Plan {
		return &plan.Plan{
			Name:     "Team",
			Features: []plan.Feature{plan.FeatureDocCRUD, plan.FeatureVersioning},
			Limits:   map[string]int64{plan.LimitMaxDocuments: 50, plan.LimitMaxStorage: plan.Unlimited},
			Price:    types.USD(1500),
			Color:    "#3b82f6",
			Active:   true,
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *plan.Plan)
		wantErr bool
	}{
		{"valid", func(*plan.Plan) {}, false},
		{"missing name", func(p *plan.Plan) { p.Name = "" }, true},
		{"unknown feature", func(p *plan.Plan) { p.Features = append(p.Features, "teleport") }, true},
		{"limit below unlimited", func(p *plan.Plan) { p.Limits[plan.LimitMaxDocuments] = -2 }, true},
		{"empty limit key", func(p *plan.Plan) { p.Limits[""] = 1 }, true},
		{"negative price", func(p *plan.Plan) { p.Price = types.USD(-1) }, true},
		{"missing currency", func(p *plan.Plan) { p.Price = types.Money{Amount: 100} }, true},
		{"bad color", func(p *plan.Plan) { p.Color = "blue" }, true},
		{"no color", func(p *plan.Plan) { p.Color = "" }, false},
		{"zero limit", func(p *plan.Plan) { p.Limits[plan.LimitMaxDocuments] = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := plan.Validate(p)
			if tt.wantErr {
				assert.ErrorIs(t, err, plan.ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	catalog := plan.DefaultCatalog()
	require.Len(t, catalog, 3)

	byName := map[string]*plan.Plan{}
	for _, p := range catalog {
		require.NoError(t, plan.Validate(p), p.Name)
		byName[p.Name] = p
	}

	assert.True(t, byName["Free"].IsFree())
	assert.Equal(t, int64(10), byName["Free"].Limits[plan.LimitMaxDocuments])
	assert.Equal(t, types.USD(2999), byName["Pro"].Price)
	assert.True(t, byName["Pro"].HasFeature(plan.FeatureVersioning))
	assert.False(t, byName["Pro"].HasFeature(plan.FeatureAdvancedSearch))
	assert.Equal(t, plan.Unlimited, byName["Enterprise"].Limits[plan.LimitMaxDocuments])
	assert.Len(t, byName["Enterprise"].Features, len(plan.Features()))
}
