// Package id defines the TypeID-based identifiers of tollgate entities.
//
// An ID is "prefix_suffix" where the prefix names the entity and the suffix
// is a UUIDv7, so IDs of one kind sort in the order they were generated.
package id

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixOrg          Prefix = "org"
	PrefixPlan         Prefix = "plan"
	PrefixSubscription Prefix = "sub"
	PrefixUsage        Prefix = "usage"
)

// ID wraps a TypeID. The zero value is Nil and stores as SQL NULL.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

type (
	OrgID          = ID
	PlanID         = ID
	SubscriptionID = ID
	UsageID        = ID
)

// New generates an ID with the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

func NewOrgID() OrgID                   { return New(PrefixOrg) }
func NewPlanID() PlanID                 { return New(PrefixPlan) }
func NewSubscriptionID() SubscriptionID { return New(PrefixSubscription) }
func NewUsageID() UsageID               { return New(PrefixUsage) }

// Parse parses any TypeID string without checking its prefix.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, errors.New("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects IDs of another entity type, so an
// org ID can never be passed where a plan ID is expected.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %s id, want %s", s, got, want)
	}
	return parsed, nil
}

func ParseOrgID(s string) (OrgID, error)   { return ParseWithPrefix(s, PrefixOrg) }
func ParsePlanID(s string) (PlanID, error) { return ParseWithPrefix(s, PrefixPlan) }
func ParseUsageID(s string) (UsageID, error) {
	return ParseWithPrefix(s, PrefixUsage)
}

func ParseSubscriptionID(s string) (SubscriptionID, error) {
	return ParseWithPrefix(s, PrefixSubscription)
}

// Compare orders IDs of one prefix by generation time.
func Compare(a, b ID) int {
	return strings.Compare(a.String(), b.String())
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

func (i ID) IsNil() bool { return !i.valid }

// MarshalText encodes Nil as an empty string.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText decodes an empty string as Nil.
func (i *ID) UnmarshalText(data []byte) error {
	return i.set(string(data))
}

// Value implements driver.Valuer.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner for TEXT, BLOB and NULL columns.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.set(v)
	case []byte:
		return i.set(string(v))
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}

func (i *ID) set(s string) error {
	if s == "" {
		*i = Nil
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
