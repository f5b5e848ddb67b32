package usecase

import (
	"context"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

// JobLauncher launches a Job with JobParameters.
// It is equivalent to Spring Batch's JobLauncher.
type JobLauncher interface {
	// Launch starts the job asynchronously and returns the new JobExecution.
	// The error reports a failure to launch, not a failure of the job itself.
	Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
	// Run launches the job and blocks until the execution finishes or ctx is done.
	Run(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator performs operations on running jobs.
// It is equivalent to Spring Batch's JobOperator.
type JobOperator interface {
	// Stop stops the specified JobExecution by cancelling its context.
	Stop(ctx context.Context, executionID string) error

	// Abandon abandons the specified JobExecution.
	Abandon(ctx context.Context, executionID string) error

	// GetRunningExecutions returns the executions of jobName that have not finished.
	GetRunningExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}

// JobExplorer is an interface for querying batch metadata (JobInstance, JobExecution, StepExecution).
// It is equivalent to Spring Batch's JobExplorer.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution by its ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetJobExecutions retrieves all JobExecutions associated with the specified JobInstance.
	GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error)

	// GetLastJobExecution retrieves the latest JobExecution for a given JobInstance.
	GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error)

	// GetJobInstance retrieves a JobInstance by its ID.
	GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error)

	// GetJobInstances searches for JobInstances matching the specified job name and parameters.
	GetJobInstances(ctx context.Context, jobName string, params model.JobParameters) ([]*model.JobInstance, error)

	// GetJobNames retrieves all job names that have been run.
	GetJobNames(ctx context.Context) ([]string, error)
}
