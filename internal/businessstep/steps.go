package businessstep

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/event"
)

const (
	CheckDueInstallments      = "CHECK_DUE_INSTALLMENTS"
	UpdateLoanArrearsAging    = "UPDATE_LOAN_ARREARS_AGING"
	CheckLoanRepaymentOverdue = "CHECK_LOAN_REPAYMENT_OVERDUE"
)

const dateLayout = "2006-01-02"

func businessDate(ctx context.Context, step string) (time.Time, error) {
	date, ok := BusinessDateFromContext(ctx)
	if !ok {
		return time.Time{}, fmt.Errorf("%s: no business date in context", step)
	}
	return date, nil
}

// DueInstallmentStep raises LoanInstallmentDue when an installment falls due on the business date.
type DueInstallmentStep struct {
	publisher event.Publisher
}

func NewDueInstallmentStep(publisher event.Publisher) *DueInstallmentStep {
	return &DueInstallmentStep{publisher: publisher}
}

func (s *DueInstallmentStep) Name() string { return CheckDueInstallments }

func (s *DueInstallmentStep) Execute(ctx context.Context, loan *entity.Loan) (*entity.Loan, error) {
	date, err := businessDate(ctx, s.Name())
	if err != nil {
		return nil, err
	}
	if loan.NextDueDate == nil || !entity.DateOnly(*loan.NextDueDate).Equal(date) {
		return loan, nil
	}
	err = s.publisher.Publish(ctx, event.Event{
		Type:         event.TypeLoanInstallmentDue,
		AccountID:    loan.ID,
		BusinessDate: date.Format(dateLayout),
		Payload: map[string]interface{}{
			"accountNo":            loan.AccountNo,
			"principalOutstanding": loan.PrincipalOutstanding,
		},
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ArrearsAgingStep sets DaysInArrears to the whole days between the next due date and the
// business date, or zero when nothing is overdue.
type ArrearsAgingStep struct{}

func NewArrearsAgingStep() *ArrearsAgingStep { return &ArrearsAgingStep{} }

func (s *ArrearsAgingStep) Name() string { return UpdateLoanArrearsAging }

func (s *ArrearsAgingStep) Execute(ctx context.Context, loan *entity.Loan) (*entity.Loan, error) {
	date, err := businessDate(ctx, s.Name())
	if err != nil {
		return nil, err
	}
	loan.DaysInArrears = 0
	if loan.NextDueDate != nil {
		due := entity.DateOnly(*loan.NextDueDate)
		if date.After(due) {
			loan.DaysInArrears = int(date.Sub(due).Hours() / 24)
		}
	}
	return loan, nil
}

// RepaymentOverdueStep raises LoanRepaymentOverdue for loans in arrears.
type RepaymentOverdueStep struct {
	publisher event.Publisher
}

func NewRepaymentOverdueStep(publisher event.Publisher) *RepaymentOverdueStep {
	return &RepaymentOverdueStep{publisher: publisher}
}

func (s *RepaymentOverdueStep) Name() string { return CheckLoanRepaymentOverdue }

func (s *RepaymentOverdueStep) Execute(ctx context.Context, loan *entity.Loan) (*entity.Loan, error) {
	date, err := businessDate(ctx, s.Name())
	if err != nil {
		return nil, err
	}
	if loan.DaysInArrears <= 0 {
		return loan, nil
	}
	err = s.publisher.Publish(ctx, event.Event{
		Type:         event.TypeLoanRepaymentOverdue,
		AccountID:    loan.ID,
		BusinessDate: date.Format(dateLayout),
		Payload:      map[string]interface{}{"daysOverdue": loan.DaysInArrears},
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

var (
	_ Step = (*DueInstallmentStep)(nil)
	_ Step = (*ArrearsAgingStep)(nil)
	_ Step = (*RepaymentOverdueStep)(nil)
)
