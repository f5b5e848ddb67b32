package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	jobRepository "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// DefaultJobOperator is the default implementation of the JobOperator interface.
type DefaultJobOperator struct {
	jobRepository jobRepository.JobRepository
	jobLauncher   *SimpleJobLauncher
}

var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a new instance of DefaultJobOperator.
func NewDefaultJobOperator(jobRepository jobRepository.JobRepository, launcher *SimpleJobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobLauncher:   launcher,
	}
}

// Stop moves the execution to STOPPING and cancels its context.
// The job runner moves it to STOPPED once its steps return.
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: Stop called. Execution ID: %s", executionID)

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}

	if status := jobExecution.CurrentStatus(); status.IsFinished() {
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) is already in a finished state (%s)", executionID, status)
	}

	if err := jobExecution.TransitionTo(model.BatchStatusStopping); err != nil {
		logger.Warnf("Failed to update JobExecution (ID: %s) status to STOPPING: %v", executionID, err)
	}
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("failed to update JobExecution (ID: %s) status", executionID), err, false, false)
	}

	cancelFunc, ok := o.jobLauncher.GetCancelFunc(executionID)
	if !ok && jobExecution.CancelFunc != nil {
		cancelFunc, ok = jobExecution.CancelFunc, true
	}
	if !ok {
		return exception.NewBatchErrorf("job_operator", "CancelFunc for JobExecution (ID: %s) not found", executionID)
	}
	cancelFunc()

	logger.Infof("Sent stop signal for JobExecution (ID: %s).", executionID)
	return nil
}

// Abandon marks a stopped or failed execution as ABANDONED.
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) error {
	logger.Infof("JobOperator: Abandon called. Execution ID: %s", executionID)

	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("failed to load JobExecution (ID: %s)", executionID), err, false, false)
	}

	switch status := jobExecution.CurrentStatus(); status {
	case model.BatchStatusAbandoned:
		return nil
	case model.BatchStatusStopped, model.BatchStatusFailed:
	default:
		return exception.NewBatchErrorf("job_operator", "JobExecution (ID: %s) cannot be abandoned in status %s", executionID, status)
	}

	jobExecution.MarkAsAbandoned()
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return exception.NewBatchError("job_operator", fmt.Sprintf("failed to update JobExecution (ID: %s) status", executionID), err, false, false)
	}
	o.jobLauncher.UnregisterCancelFunc(executionID)
	logger.Infof("Abandoned JobExecution (ID: %s).", executionID)
	return nil
}

// GetRunningExecutions returns the unfinished executions of jobName.
func (o *DefaultJobOperator) GetRunningExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	executions, err := o.jobRepository.FindRunningJobExecutions(ctx, jobName)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("failed to find running executions of '%s'", jobName), err, false, false)
	}
	return executions, nil
}
