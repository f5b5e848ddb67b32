package cob

import (
	"context"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// ApplyLockTasklet soft-locks the free accounts of a partition before it is read.
// Accounts held by an inline close of business or by a chunk are added to the excluded set.
type ApplyLockTasklet struct {
	loans    repository.LoanRepository
	locks    repository.AccountLockRepository
	recorder metrics.MetricRecorder
}

func NewApplyLockTasklet(loans repository.LoanRepository, locks repository.AccountLockRepository, recorder metrics.MetricRecorder) *ApplyLockTasklet {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &ApplyLockTasklet{loans: loans, locks: locks, recorder: recorder}
}

func (t *ApplyLockTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	const op = "ApplyLockTasklet"
	unit, err := WorkUnitFrom(stepExecution.ExecutionContext)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(op, "missing work unit", err, false, false)
	}
	excluded, err := ExcludedIDsFrom(stepExecution.ExecutionContext)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(op, "missing excluded id set", err, false, false)
	}
	if unit.IsEmpty() {
		logger.Debugf("%s: partition %s is empty, nothing to lock.", stepExecution.StepName, unit.Range)
		return model.ExitStatusNoOp, nil
	}

	held, err := t.locks.FindAllByIDBetween(ctx, unit.Range.MinID, unit.Range.MaxID)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	for _, l := range held {
		if l.Owner == entity.LockOwnerInlineProcessing || l.Owner == entity.LockOwnerBatchChunkProcessing {
			excluded.Add(l.AccountID)
		}
	}

	ids, err := t.loans.FindEligibleIDsInRange(ctx, unit.Range.MinID, unit.Range.MaxID, unit.BusinessDate, unit.CatchUp)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	free := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !excluded.Contains(id) {
			free = append(free, id)
		}
	}
	if _, err := t.locks.UpsertSoftLocks(ctx, free, unit.BusinessDate); err != nil {
		return model.ExitStatusFailed, err
	}

	t.recorder.RecordLockAcquired(ctx, stepExecution.StepName, len(free), excluded.Len())
	logger.Infof("%s: locked %d accounts in %s, excluded %d.", stepExecution.StepName, len(free), unit.Range, excluded.Len())
	return model.ExitStatusCompleted, nil
}

var _ port.Tasklet = (*ApplyLockTasklet)(nil)
