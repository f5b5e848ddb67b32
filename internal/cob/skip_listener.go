package cob

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// LockErrorRecorder writes the failure of a skipped account onto its lock row, which stays in
// place so the account is not picked up again until an operator clears it.
type LockErrorRecorder struct {
	locks repository.AccountLockRepository
}

func NewLockErrorRecorder(locks repository.AccountLockRepository) *LockErrorRecorder {
	return &LockErrorRecorder{locks: locks}
}

func (l *LockErrorRecorder) OnSkipRead(ctx context.Context, err error) {
	var readErr *LoanReadError
	if !errors.As(err, &readErr) {
		logger.Warnf("LockErrorRecorder: skipped read without an account id: %v", err)
		return
	}
	l.record(ctx, readErr.AccountID, "read", "", []string{readErr.Cause.Error()}, err)
}

func (l *LockErrorRecorder) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	var stepErr *BusinessStepFailureError
	if errors.As(err, &stepErr) {
		l.record(ctx, stepErr.AccountID, "process", stepErr.Step, stepErr.CauseMessages(), err)
		return
	}
	if loan, ok := item.(*entity.Loan); ok && loan != nil {
		l.record(ctx, loan.ID, "process", "", []string{err.Error()}, err)
	}
}

func (l *LockErrorRecorder) OnSkipWrite(ctx context.Context, item interface{}, err error) {
	if loan, ok := item.(*entity.Loan); ok && loan != nil {
		l.record(ctx, loan.ID, "write", "", []string{err.Error()}, err)
	}
}

func (l *LockErrorRecorder) record(ctx context.Context, accountID int64, phase, step string, causes []string, err error) {
	details := entity.LockErrorDetails{
		Phase:    phase,
		Step:     step,
		Causes:   causes,
		Recorded: time.Now().UTC().Format(time.RFC3339),
	}
	if se := port.GetStepExecutionFromContext(ctx); se != nil && se.JobExecution != nil {
		details.JobName = se.JobExecution.JobName
	}
	raw, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		logger.Errorf("LockErrorRecorder: failed to encode details for account %d: %v", accountID, marshalErr)
		raw = nil
	}
	if err := l.locks.RecordError(ctx, accountID, err.Error(), exception.StackTraceOf(err), datatypes.JSON(raw)); err != nil {
		logger.Errorf("LockErrorRecorder: failed to record error for account %d: %v", accountID, err)
	}
}

var _ port.SkipListener = (*LockErrorRecorder)(nil)
