package plan

import "github.com/xraph/tollgate/types"

// DefaultCatalog returns the built-in Free, Pro and Enterprise plans.
// IDs are left empty; they are assigned on creation. None of them caps
// storage; add a LimitMaxStorage entry (in MB) to do so.
func DefaultCatalog() []*Plan {
	return []*Plan{
		{
			Name:     "Free",
			Features: []Feature{FeatureDocCRUD},
			Limits:   map[string]int64{LimitMaxDocuments: 10},
			Price:    types.USD(0),
			Color:    "#6b7280",
			Active:   true,
		},
		{
			Name:     "Pro",
			Features: []Feature{FeatureDocCRUD, FeatureSharing, FeatureVersioning},
			Limits:   map[string]int64{LimitMaxDocuments: 200},
			Price:    types.USD(2999),
			Color:    DefaultColor,
			Active:   true,
		},
		{
			Name:     "Enterprise",
			Features: Features(),
			Limits:   map[string]int64{LimitMaxDocuments: Unlimited},
			Price:    types.USD(9999),
			Color:    "#7c3aed",
			Active:   true,
		},
	}
}
