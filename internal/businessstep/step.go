// Package businessstep holds the business steps run against each loan during close of business
// and the registry that orders them per job type.
package businessstep

import (
	"context"
	"time"

	"github.com/tigerroll/loancob/internal/domain/entity"
)

// Step is one unit of business logic applied to a loan. It returns the loan to hand to the
// next step.
type Step interface {
	Name() string
	Execute(ctx context.Context, loan *entity.Loan) (*entity.Loan, error)
}

type businessDateKey struct{}

// WithBusinessDate returns a context carrying the business date being closed.
func WithBusinessDate(ctx context.Context, date time.Time) context.Context {
	return context.WithValue(ctx, businessDateKey{}, entity.DateOnly(date))
}

// BusinessDateFromContext returns the business date set by WithBusinessDate.
func BusinessDateFromContext(ctx context.Context) (time.Time, bool) {
	date, ok := ctx.Value(businessDateKey{}).(time.Time)
	return date, ok
}
