package tollgate

import (
	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/usage"
)

// Re-export common types for convenience so users don't have to import the component packages.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Feature is re-exported from plan package.
type Feature = plan.Feature

// Entitlement is re-exported from entitlement package.
type Entitlement = entitlement.Result

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	Zero = types.Zero
)

// Re-export the feature vocabulary and well-known metrics.
const (
	FeatureDocCRUD        = plan.FeatureDocCRUD
	FeatureSharing        = plan.FeatureSharing
	FeatureVersioning     = plan.FeatureVersioning
	FeatureAdvancedSearch = plan.FeatureAdvancedSearch

	MetricDocuments = usage.MetricDocuments
	MetricStorage   = usage.MetricStorage

	Unlimited = plan.Unlimited
)
