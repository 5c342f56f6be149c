package plan

import (
	"slices"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

// Feature is a named boolean capability a plan grants.
type Feature string

// The fixed feature vocabulary.
const (
	FeatureDocCRUD        Feature = "doc_crud"
	FeatureSharing        Feature = "sharing"
	FeatureVersioning     Feature = "versioning"
	FeatureAdvancedSearch Feature = "advanced_search"
)

// Features lists every known feature.
func Features() []Feature {
	return []Feature{FeatureDocCRUD, FeatureSharing, FeatureVersioning, FeatureAdvancedSearch}
}

// Limit keys understood out of the box. Plans may carry other keys; those
// are metered as plain counts against a usage metric of the same name.
const (
	LimitMaxDocuments = "maxDocuments"
	LimitMaxStorage   = "maxStorage"
)

// Unlimited is the limit value meaning "no cap".
const Unlimited int64 = -1

// DefaultColor is used when a plan is created without a display color.
const DefaultColor = "#3b82f6"

// Plan is a named bundle of features and numeric limits.
type Plan struct {
	types.Entity
	ID       id.PlanID        `json:"id"`
	Name     string           `json:"name"     validate:"required,max=64"`
	Features []Feature        `json:"features" validate:"dive,oneof=doc_crud sharing versioning advanced_search"`
	Limits   map[string]int64 `json:"limits"   validate:"dive,keys,required,endkeys,gte=-1"`
	Price    types.Money      `json:"price"`
	Color    string           `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Active   bool             `json:"active"`
}

// HasFeature reports whether the plan grants f.
func (p *Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// Limit returns the configured limit for key. ok is false when the plan
// does not define the key at all.
func (p *Plan) Limit(key string) (limit int64, ok bool) {
	limit, ok = p.Limits[key]
	return limit, ok
}

// IsFree reports whether the plan has a zero price.
func (p *Plan) IsFree() bool {
	return p.Price.IsZero()
}

// Clone returns a deep copy so callers can't mutate cached plans.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Features = slices.Clone(p.Features)
	if p.Limits != nil {
		cp.Limits = make(map[string]int64, len(p.Limits))
		for k, v := range p.Limits {
			cp.Limits[k] = v
		}
	}
	return &cp
}
