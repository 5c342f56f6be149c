package plan

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid wraps every definition problem reported by Validate.
var ErrInvalid = errors.New("tollgate: invalid plan")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks a plan definition before it is persisted.
func Validate(p *Plan) error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalid)
	}
	if err := validatorInstance().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalid, p.Price)
	}
	if p.Price.Currency == "" {
		return fmt.Errorf("%w: price currency is required", ErrInvalid)
	}
	return nil
}
