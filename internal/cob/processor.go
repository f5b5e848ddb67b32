package cob

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/domain/entity"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
)

// LoanItemProcessor runs the business step pipeline against each loan and marks it closed for
// the business date.
type LoanItemProcessor struct {
	pipeline     []businessstep.Step
	businessDate time.Time
}

// NewLoanItemProcessor creates a processor running pipeline in the given order.
func NewLoanItemProcessor(pipeline []businessstep.Step, businessDate time.Time) *LoanItemProcessor {
	return &LoanItemProcessor{pipeline: pipeline, businessDate: entity.DateOnly(businessDate)}
}

func (p *LoanItemProcessor) Process(ctx context.Context, loan *entity.Loan) (*entity.Loan, error) {
	if loan == nil {
		return nil, nil
	}
	ctx = businessstep.WithBusinessDate(ctx, p.businessDate)
	id := loan.ID
	current := loan
	for _, step := range p.pipeline {
		next, err := step.Execute(ctx, current)
		if err != nil {
			return nil, NewBusinessStepFailureError(id, step.Name(), err)
		}
		if next == nil {
			return nil, NewBusinessStepFailureError(id, step.Name(), fmt.Errorf("step returned no loan"))
		}
		current = next
	}
	closed := p.businessDate
	current.LastClosedBusinessDate = &closed
	return current, nil
}

var _ port.ItemProcessor[*entity.Loan, *entity.Loan] = (*LoanItemProcessor)(nil)
