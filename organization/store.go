package organization

import (
	"context"
	"errors"

	"github.com/xraph/tollgate/id"
)

var (
	ErrNotFound = errors.New("tollgate: organization not found")
	ErrExists   = errors.New("tollgate: organization already exists")
)

type Store interface {
	// Create fails with ErrExists when the slug is taken.
	Create(ctx context.Context, o *Organization) error
	Get(ctx context.Context, orgID id.OrgID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	// Delete is a no-op when the organization does not exist.
	Delete(ctx context.Context, orgID id.OrgID) error
	// List returns organizations newest first together with the total count.
	List(ctx context.Context, opts ListOpts) ([]*Organization, int64, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
