package tollgate

import (
	"errors"
	"fmt"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/usage"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput = errors.New("tollgate: invalid input")

	// Configuration errors
	ErrNoActivePlan = errors.New("tollgate: no active plan configured")

	// Plan errors
	ErrPlanNotFound = plan.ErrNotFound
	ErrPlanExists   = plan.ErrExists
	ErrPlanInactive = errors.New("tollgate: plan is not active")
	ErrInvalidPlan  = plan.ErrInvalid

	// Organization errors
	ErrOrganizationNotFound = organization.ErrNotFound
	ErrOrganizationExists   = organization.ErrExists

	// Subscription errors
	ErrSubscriptionNotFound = subscription.ErrNotFound
	ErrSubscriptionConflict = subscription.ErrConflict

	// Usage errors
	ErrInvalidDelta  = usage.ErrInvalidDelta
	ErrInvalidMetric = usage.ErrInvalidMetric

	// Enforcement errors. Each is matched by the typed error carrying the
	// details of the denial.
	ErrNoEntitlement      = entitlement.ErrNoEntitlement
	ErrEntitlementExpired = entitlement.ErrEntitlementExpired
	ErrFeatureDenied      = gate.ErrFeatureDenied
	ErrLimitReached       = gate.ErrLimitReached

	// Store errors
	ErrStorageUnavailable = types.ErrStorageUnavailable
)

// Typed errors, re-exported so callers can use errors.As without importing
// the component packages.
type (
	NoEntitlementError = entitlement.NoEntitlementError
	ExpiredError       = entitlement.ExpiredError
	FeatureDeniedError = gate.FeatureDeniedError
	LimitReachedError  = gate.LimitReachedError
	StorageError       = types.StorageError
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tollgate: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tollgate: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tollgate: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrorOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsDenial returns true if the error is an enforcement decision against
// the request: missing or expired entitlement, a feature the plan lacks or
// a reached limit. Denials are surfaced to the caller as-is.
func IsDenial(err error) bool {
	return errors.Is(err, ErrNoEntitlement) ||
		errors.Is(err, ErrFeatureDenied) ||
		errors.Is(err, ErrLimitReached)
}

// IsConfigError returns true if the error comes from how the deployment is
// set up rather than from the request.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNoActivePlan)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
