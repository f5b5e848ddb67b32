// Package sql provides a GORM implementation of the JobRepository interface, storing job
// instances, job executions and step executions in the batch_* tables.
//
// Updates are last-write-wins by ID. The operator saves a STOPPING copy of an execution while
// the launcher still owns the live one, so a version check would reject one of the two writers.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
	"github.com/tigerroll/loancob/pkg/batch/support/util/serialization"
)

// unfinishedStatuses are the statuses FindRunningJobExecutions reports.
var unfinishedStatuses = []string{
	string(model.BatchStatusStarting),
	string(model.BatchStatusStarted),
	string(model.BatchStatusStopping),
	string(model.BatchStatusStoppingFailed),
	string(model.BatchStatusUnknown),
}

// SQLJobRepository implements the repository.JobRepository interface.
type SQLJobRepository struct {
	db *gorm.DB
}

// NewSQLJobRepository creates a new instance of SQLJobRepository on db.
func NewSQLJobRepository(db *gorm.DB) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

// conn returns the transaction carried by ctx, or the repository's connection.
func (r *SQLJobRepository) conn(ctx context.Context) *gorm.DB {
	return gormadapter.DBFromContext(ctx, r.db)
}

// Close always returns nil; the connection belongs to the datasource resolver.
func (r *SQLJobRepository) Close() error {
	return nil
}

// --- JobInstance implementation ---

func (r *SQLJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	const op = "SQLJobRepository.SaveJobInstance"
	entity, err := fromDomainJobInstance(instance)
	if err != nil {
		return err
	}
	if err := r.conn(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobInstance (ID: %s)", instance.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	const op = "SQLJobRepository.FindJobInstanceByID"
	var entity JobInstanceEntity
	if err := r.conn(ctx).Where("id = ?", id).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobInstance by ID: %s", id), err, true, false)
	}
	return toDomainJobInstance(&entity)
}

// FindJobInstanceByJobNameAndParameters looks the instance up by parameter hash.
func (r *SQLJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "SQLJobRepository.FindJobInstanceByJobNameAndParameters"
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}
	var entity JobInstanceEntity
	err = r.conn(ctx).
		Where("job_name = ? AND parameters_hash = ?", jobName, hash).
		Order("create_time desc").
		Take(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobInstance for job '%s'", jobName), err, true, false)
	}
	return toDomainJobInstance(&entity)
}

// FindJobInstancesByJobNameAndPartialParameters returns the instances of jobName whose parameters
// contain partialParams, latest first.
func (r *SQLJobRepository) FindJobInstancesByJobNameAndPartialParameters(ctx context.Context, jobName string, partialParams model.JobParameters) ([]*model.JobInstance, error) {
	const op = "SQLJobRepository.FindJobInstancesByJobNameAndPartialParameters"
	partial, err := serialization.NormalizeJobParameters(partialParams.Params)
	if err != nil {
		return nil, err
	}
	var entities []JobInstanceEntity
	if err := r.conn(ctx).Where("job_name = ?", jobName).Order("create_time desc").Find(&entities).Error; err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobInstances for job '%s'", jobName), err, true, false)
	}
	var instances []*model.JobInstance
	for i := range entities {
		instance, err := toDomainJobInstance(&entities[i])
		if err != nil {
			return nil, err
		}
		if instance.Parameters.Contains(model.JobParameters{Params: partial}) {
			instances = append(instances, instance)
		}
	}
	return instances, nil
}

func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	const op = "SQLJobRepository.GetJobNames"
	var names []string
	if err := r.conn(ctx).Model(&JobInstanceEntity{}).Distinct().Order("job_name").Pluck("job_name", &names).Error; err != nil {
		return nil, exception.NewBatchError(op, "failed to list job names", err, true, false)
	}
	return names, nil
}

// --- JobExecution implementation ---

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.SaveJobExecution"
	entity, err := fromDomainJobExecution(jobExecution)
	if err != nil {
		return err
	}
	if err := r.conn(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.UpdateJobExecution"
	entity, err := fromDomainJobExecution(jobExecution)
	if err != nil {
		return err
	}
	entity.Version++
	entity.LastUpdated = time.Now()

	result := r.conn(ctx).Model(entity).Select("*").Omit("id", "create_time").Updates(entity)
	if result.Error != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), result.Error, true, false)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("JobExecution with ID %s not found for update: %w", jobExecution.ID, repository.ErrJobExecutionNotFound)
	}
	jobExecution.Version = entity.Version
	return nil
}

// FindJobExecutionByID loads the execution with its step executions. The result is a copy: it
// carries no cancel func, even when the execution is running in this process.
func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"
	var entity JobExecutionEntity
	if err := r.conn(ctx).Where("id = ?", executionID).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution by ID: %s", executionID), err, true, false)
	}
	execution, err := toDomainJobExecution(&entity)
	if err != nil {
		return nil, err
	}

	steps, err := r.findStepExecutionsByJobExecutionID(ctx, executionID)
	if err != nil {
		logger.Errorf("%s: Failed to load StepExecutions for JobExecution (ID: %s): %v", op, executionID, err)
		return execution, nil
	}
	for _, step := range steps {
		step.JobExecution = execution
		execution.AddStepExecution(step)
	}
	return execution, nil
}

// FindJobExecutionsByJobInstance returns the executions of jobInstance, latest first.
func (r *SQLJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionsByJobInstance"
	var entities []JobExecutionEntity
	err := r.conn(ctx).Where("job_instance_id = ?", jobInstance.ID).Order("create_time desc").Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecutions for JobInstance ID: %s", jobInstance.ID), err, true, false)
	}
	return toDomainJobExecutions(entities)
}

// FindRunningJobExecutions returns the executions of jobName that are not finished, oldest first.
func (r *SQLJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindRunningJobExecutions"
	var entities []JobExecutionEntity
	err := r.conn(ctx).
		Where("job_name = ? AND status IN ?", jobName, unfinishedStatuses).
		Order("create_time asc").
		Find(&entities).Error
	if err != nil {
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find running JobExecutions for job '%s'", jobName), err, true, false)
	}
	return toDomainJobExecutions(entities)
}

func toDomainJobExecutions(entities []JobExecutionEntity) ([]*model.JobExecution, error) {
	executions := make([]*model.JobExecution, 0, len(entities))
	for i := range entities {
		execution, err := toDomainJobExecution(&entities[i])
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

// --- StepExecution implementation ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.SaveStepExecution"
	entity, err := fromDomainStepExecution(stepExecution)
	if err != nil {
		return err
	}
	if err := r.conn(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.UpdateStepExecution"
	entity, err := fromDomainStepExecution(stepExecution)
	if err != nil {
		return err
	}
	entity.Version++
	entity.LastUpdated = time.Now()

	result := r.conn(ctx).Model(entity).Select("*").Omit("id").Updates(entity)
	if result.Error != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), result.Error, true, false)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("StepExecution with ID %s not found for update: %w", stepExecution.ID, repository.ErrStepExecutionNotFound)
	}
	stepExecution.Version = entity.Version
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionByID"
	var entity StepExecutionEntity
	if err := r.conn(ctx).Where("id = ?", executionID).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecution by ID: %s", executionID), err, true, false)
	}
	return toDomainStepExecution(&entity)
}

func (r *SQLJobRepository) findStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	var entities []StepExecutionEntity
	if err := r.conn(ctx).Where("job_execution_id = ?", jobExecutionID).Order("start_time asc").Find(&entities).Error; err != nil {
		return nil, err
	}
	steps := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		step, err := toDomainStepExecution(&entities[i])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
