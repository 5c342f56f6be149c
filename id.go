package tollgate

import "github.com/xraph/tollgate/id"

// ID is the primary identifier type for all tollgate entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// OrgID identifies an organization.
type OrgID = id.OrgID

// PlanID identifies a plan.
type PlanID = id.PlanID
