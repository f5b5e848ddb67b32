package cob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// InlineResult lists the accounts an inline run closed and the ones it left locked.
type InlineResult struct {
	Processed []int64
	Failed    map[int64]error
}

// InlineCOBService closes a given set of accounts right away, outside the batch job. It runs
// every business date each account missed, up to the COB date, under an inline lock.
type InlineCOBService struct {
	loans     repository.LoanRepository
	locks     repository.AccountLockRepository
	registry  *businessstep.Registry
	dates     businessdate.Provider
	txManager tx.TransactionManager
	jobType   string
}

func NewInlineCOBService(
	loans repository.LoanRepository,
	locks repository.AccountLockRepository,
	registry *businessstep.Registry,
	dates businessdate.Provider,
	txManager tx.TransactionManager,
	jobType string,
) *InlineCOBService {
	return &InlineCOBService{
		loans:     loans,
		locks:     locks,
		registry:  registry,
		dates:     dates,
		txManager: txManager,
		jobType:   jobType,
	}
}

// Run places inline locks on loanIDs, closes each account and releases its lock. It fails
// without touching anything if an account is already locked. A failed account keeps its lock
// with the error recorded and is reported in the result.
func (s *InlineCOBService) Run(ctx context.Context, loanIDs []int64) (*InlineResult, error) {
	const op = "InlineCOBService.Run"
	ids := uniqueSorted(loanIDs)
	result := &InlineResult{Failed: map[int64]error{}}
	if len(ids) == 0 {
		return result, nil
	}

	held, err := s.locks.FindAllByIDIn(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(held) > 0 {
		var conflict error
		for _, l := range held {
			conflict = multierror.Append(conflict, fmt.Errorf("account %d is locked by %s", l.AccountID, l.Owner))
		}
		return nil, exception.NewBatchError(op, "accounts are already locked", conflict, false, false)
	}

	cobDate, err := s.dates.COBDate(ctx)
	if err != nil {
		return nil, err
	}
	steps, err := s.registry.StepsFor(ctx, s.jobType)
	if err != nil {
		return nil, err
	}
	pipeline, err := s.registry.Pipeline(steps)
	if err != nil {
		return nil, err
	}
	if err := s.locks.InsertLocks(ctx, ids, entity.LockOwnerInlineProcessing, cobDate); err != nil {
		return nil, err
	}

	reader := NewLoanListItemReader(s.loans, ids)
	if err := reader.Open(ctx, nil); err != nil {
		return nil, err
	}
	defer reader.Close(ctx)
	writer := NewLoanItemWriter(s.loans, s.locks, entity.LockOwnerInlineProcessing)
	recorder := NewLockErrorRecorder(s.locks)

	for {
		loan, err := reader.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			break
		}
		var readErr *LoanReadError
		if errors.As(err, &readErr) {
			recorder.OnSkipRead(ctx, err)
			result.Failed[readErr.AccountID] = err
			continue
		}
		if err != nil {
			return result, err
		}
		if err := s.close(ctx, loan, pipeline, cobDate, writer); err != nil {
			recorder.OnSkipProcess(ctx, loan, err)
			result.Failed[loan.ID] = err
			continue
		}
		result.Processed = append(result.Processed, loan.ID)
	}
	logger.Infof("Inline COB: closed %d accounts up to %s, %d failed.", len(result.Processed), cobDate.Format(dateLayout), len(result.Failed))
	return result, nil
}

// close runs the pipeline for every missed date and saves the loan in one transaction.
func (s *InlineCOBService) close(ctx context.Context, loan *entity.Loan, pipeline []businessstep.Step, cobDate time.Time, writer *LoanItemWriter) (err error) {
	from := cobDate
	if loan.LastClosedBusinessDate != nil {
		from = entity.DateOnly(*loan.LastClosedBusinessDate).AddDate(0, 0, 1)
	}

	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			err = s.txManager.Commit(t)
			return
		}
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("Inline COB: rollback for account %d failed: %v", loan.ID, rbErr)
		}
	}()
	txCtx := tx.WithTx(ctx, t)

	current := loan
	for date := from; !date.After(cobDate); date = date.AddDate(0, 0, 1) {
		if current, err = NewLoanItemProcessor(pipeline, date).Process(txCtx, current); err != nil {
			return err
		}
	}
	return writer.Write(txCtx, []*entity.Loan{current})
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
