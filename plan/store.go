package plan

import (
	"context"
	"errors"

	"github.com/xraph/tollgate/id"
)

var (
	ErrNotFound = errors.New("tollgate: plan not found")
	// ErrExists is returned by Create when the name is taken.
	ErrExists = errors.New("tollgate: plan already exists")
)

type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, planID id.PlanID) (*Plan, error)
	GetByName(ctx context.Context, name string) (*Plan, error)
	List(ctx context.Context, opts ListOpts) ([]*Plan, error)
	Update(ctx context.Context, p *Plan) error
	Archive(ctx context.Context, planID id.PlanID) error
}

// ListOpts filters List. Results are ordered by ascending price, then name.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
