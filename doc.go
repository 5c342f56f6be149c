// Package tollgate meters per-organization usage and enforces plan
// entitlements for multi-tenant applications.
//
// Tollgate is a library, not a service. It provides:
//
//   - Monthly usage counters with atomic increment and guarded decrement
//   - Lazy period rollover and lazy subscription expiry, with no background jobs
//   - Feature gates and per-metric limit gates against the organization's plan
//   - An ordered decision pipeline around resource-creating operations
//   - Postgres, SQLite and MongoDB stores via grove, plus a Redis usage store
//   - Lifecycle hooks for audit trails and Prometheus metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tollgate"
//	    "github.com/xraph/tollgate/plan"
//	    "github.com/xraph/tollgate/store/postgres"
//	)
//
//	t := tollgate.New(postgres.New(db), tollgate.WithSeedPlans(plan.DefaultCatalog()...))
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
//	org, _, err := t.CreateOrganization(ctx, "Acme Inc")
//
// # Enforcement
//
// Wrap every operation that consumes plan resources:
//
//	err := t.Enforce(ctx, tollgate.Request{
//	    OrgID:      org.ID,
//	    Capability: tollgate.FeatureDocCRUD,
//	    Deltas:     map[string]int64{tollgate.MetricDocuments: 1, tollgate.MetricStorage: size},
//	}, func(ctx context.Context) error {
//	    return blobs.Put(ctx, name, body)
//	})
//
// The pipeline resolves the entitlement, checks the capability, checks
// every metric's limit and only then runs the operation. Usage is counted
// after the operation succeeds. Denials are typed errors:
//
//	var reached *tollgate.LimitReachedError
//	if errors.As(err, &reached) {
//	    // offer an upgrade; reached.Current, reached.Limit, reached.ResetsAt
//	}
//
// Deletions use EnforceRelease, which runs the operation first and then
// gives the usage back. Counts never go negative.
//
// # Consistency
//
// Counters are only ever changed through single atomic storage operations.
// Two requests may both pass a limit check that only one of them should
// have passed; the resulting overshoot is bounded by the number of
// concurrent requests and is accepted in exchange for lock-free writes.
// A failure to count usage after the operation succeeded is reported to
// OnUsageDrift plugins instead of failing the request.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	org_01h2xcejqtf2nbrexx3vqjhp41   // Organization ID
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	usage_01h455vb4pex5vsknk084sn02q // Usage record ID
package tollgate
