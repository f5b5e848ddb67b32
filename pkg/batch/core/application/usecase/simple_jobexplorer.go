package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	job "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// SimpleJobExplorer queries batch metadata using a JobRepository.
type SimpleJobExplorer struct {
	jobRepository job.JobRepository
}

var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository job.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

// GetJobExecution retrieves a JobExecution by its ID.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	return jobExecution, nil
}

// GetJobExecutions retrieves all JobExecutions associated with the specified JobInstance, latest first.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error) {
	jobInstance, err := e.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("failed to retrieve JobInstance (ID: %s)", instanceID), err, false, false)
	}
	jobExecutions, err := e.jobRepository.FindJobExecutionsByJobInstance(ctx, jobInstance)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("failed to retrieve JobExecutions of JobInstance (ID: %s)", instanceID), err, false, false)
	}
	logger.Debugf("Retrieved %d JobExecutions associated with JobInstance (ID: %s).", len(jobExecutions), instanceID)
	return jobExecutions, nil
}

// GetLastJobExecution retrieves the latest JobExecution for a given JobInstance, or nil if none exists.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error) {
	executions, err := e.GetJobExecutions(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, nil
	}
	return executions[0], nil
}

// GetJobInstance retrieves a JobInstance by its ID.
func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error) {
	jobInstance, err := e.jobRepository.FindJobInstanceByID(ctx, instanceID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("failed to retrieve JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return jobInstance, nil
}

// GetJobInstances searches for JobInstances whose parameters contain params.
func (e *SimpleJobExplorer) GetJobInstances(ctx context.Context, jobName string, params model.JobParameters) ([]*model.JobInstance, error) {
	instances, err := e.jobRepository.FindJobInstancesByJobNameAndPartialParameters(ctx, jobName, params)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("failed to search JobInstances of '%s'", jobName), err, false, false)
	}
	return instances, nil
}

// GetJobNames retrieves all job names that have instances.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	names, err := e.jobRepository.GetJobNames(ctx)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", "failed to retrieve job names", err, false, false)
	}
	return names, nil
}
