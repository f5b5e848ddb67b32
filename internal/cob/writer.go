package cob

import (
	"context"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// LoanItemWriter saves a chunk of processed loans and releases the locks owner held on them.
// Locks under any other owner are left alone.
type LoanItemWriter struct {
	loans repository.LoanRepository
	locks repository.AccountLockRepository
	owner entity.LockOwner
}

func NewLoanItemWriter(loans repository.LoanRepository, locks repository.AccountLockRepository, owner entity.LockOwner) *LoanItemWriter {
	return &LoanItemWriter{loans: loans, locks: locks, owner: owner}
}

func (w *LoanItemWriter) Open(ctx context.Context, ec model.ExecutionContext) error { return nil }

func (w *LoanItemWriter) Write(ctx context.Context, items []*entity.Loan) error {
	if len(items) == 0 {
		return nil
	}
	if err := w.loans.Save(ctx, items...); err != nil {
		return err
	}
	ids := make([]int64, len(items))
	for i, l := range items {
		ids[i] = l.ID
	}
	released, err := w.locks.DeleteByIDInAndOwner(ctx, ids, w.owner)
	if err != nil {
		return err
	}
	logger.Debugf("LoanItemWriter: saved %d loans, released %d %s locks.", len(items), released, w.owner)
	return nil
}

func (w *LoanItemWriter) Close(ctx context.Context) error { return nil }

var _ port.ItemWriter[*entity.Loan] = (*LoanItemWriter)(nil)
