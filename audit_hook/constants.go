package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated  = "plan.created"
	ActionPlanUpdated  = "plan.updated"
	ActionPlanArchived = "plan.archived"

	// Organization actions
	ActionOrganizationCreated = "organization.created"

	// Subscription actions
	ActionSubscriptionCreated    = "subscription.created"
	ActionSubscriptionUpgraded   = "subscription.upgraded"
	ActionSubscriptionDowngraded = "subscription.downgraded"
	ActionSubscriptionExpired    = "subscription.expired"

	// Enforcement actions
	ActionFeatureDenied = "feature.denied"
	ActionLimitReached  = "limit.reached"

	// Usage actions
	ActionUsageDrift = "usage.drift"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceOrganization = "organization"
	ResourceSubscription = "subscription"
	ResourceUsage        = "usage"
	ResourceEntitlement  = "entitlement"
)

// Category constants for audit events.
const (
	CategoryCatalog      = "catalog"
	CategoryTenant       = "tenant"
	CategorySubscription = "subscription"
	CategoryUsage        = "usage"
	CategoryAccess       = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
