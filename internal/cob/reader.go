package cob

import (
	"context"

	"go.uber.org/atomic"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

// LoanItemReader hands out the loans of one partition. Several chunk goroutines may call Read
// at once; the cursor is advanced with compare-and-swap so each candidate is claimed once.
//
// A partition reader claims each account by moving its lock from BatchPartitioning to
// BatchChunkProcessing and drops accounts whose lock was taken by someone else. A list reader
// (NewLoanListItemReader) reads a fixed set of ids and leaves locks to its caller.
type LoanItemReader struct {
	loans repository.LoanRepository
	locks repository.AccountLockRepository
	ids   []int64

	candidates []int64
	excluded   *entity.ExcludedIDSet
	cursor     atomic.Int64
}

// NewLoanItemReader creates a partition reader.
func NewLoanItemReader(loans repository.LoanRepository, locks repository.AccountLockRepository) *LoanItemReader {
	return &LoanItemReader{loans: loans, locks: locks}
}

// NewLoanListItemReader creates a reader over ids.
func NewLoanListItemReader(loans repository.LoanRepository, ids []int64) *LoanItemReader {
	return &LoanItemReader{loans: loans, ids: append([]int64(nil), ids...)}
}

func (r *LoanItemReader) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.cursor.Store(0)
	if r.locks == nil {
		r.candidates = r.ids
		if set, err := ExcludedIDsFrom(ec); err == nil {
			r.excluded = set
		} else {
			r.excluded = entity.NewExcludedIDSet()
		}
		return nil
	}

	unit, err := WorkUnitFrom(ec)
	if err != nil {
		return err
	}
	if r.excluded, err = ExcludedIDsFrom(ec); err != nil {
		return err
	}
	if unit.IsEmpty() {
		r.candidates = nil
		return nil
	}
	r.candidates, err = r.loans.FindEligibleIDsInRange(ctx, unit.Range.MinID, unit.Range.MaxID, unit.BusinessDate, unit.CatchUp)
	return err
}

// Read returns the next claimed loan or port.ErrNoMoreItems.
func (r *LoanItemReader) Read(ctx context.Context) (*entity.Loan, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, ok := r.claimIndex()
		if !ok {
			return nil, port.ErrNoMoreItems
		}
		id := r.candidates[idx]
		if r.excluded.Contains(id) {
			continue
		}
		if r.locks != nil {
			upgraded, err := r.locks.UpgradeLock(ctx, id, entity.LockOwnerBatchPartitioning, entity.LockOwnerBatchChunkProcessing)
			if err != nil {
				return nil, err
			}
			if !upgraded {
				r.excluded.Add(id)
				continue
			}
		}
		loan, err := r.loans.FindByID(ctx, id)
		if err != nil {
			return nil, NewLoanReadError(id, err)
		}
		return loan, nil
	}
}

func (r *LoanItemReader) claimIndex() (int, bool) {
	n := int64(len(r.candidates))
	for {
		cur := r.cursor.Load()
		if cur >= n {
			return 0, false
		}
		if r.cursor.CompareAndSwap(cur, cur+1) {
			return int(cur), true
		}
	}
}

func (r *LoanItemReader) Close(ctx context.Context) error { return nil }

var _ port.ItemReader[*entity.Loan] = (*LoanItemReader)(nil)
