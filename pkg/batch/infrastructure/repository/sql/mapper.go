package sql

import (
	"gorm.io/datatypes"

	"github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/serialization"
)

// --- Mapper functions ---

func fromDomainJobInstance(ji *model.JobInstance) (*JobInstanceEntity, error) {
	params, err := serialization.MarshalJobParameters(ji.Parameters.Params)
	if err != nil {
		return nil, err
	}
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		Parameters:     datatypes.JSON(params),
		ParametersHash: ji.ParametersHash,
		CreateTime:     ji.CreateTime,
		Version:        ji.Version,
	}, nil
}

func toDomainJobInstance(entity *JobInstanceEntity) (*model.JobInstance, error) {
	params, err := serialization.UnmarshalJobParameters(entity.Parameters)
	if err != nil {
		return nil, err
	}
	return &model.JobInstance{
		ID:             entity.ID,
		JobName:        entity.JobName,
		Parameters:     model.JobParameters{Params: params},
		ParametersHash: entity.ParametersHash,
		CreateTime:     entity.CreateTime,
		Version:        entity.Version,
	}, nil
}

// fromDomainJobExecution reads the live execution through its locked accessors; partitions may
// still be appending failures while it is saved.
func fromDomainJobExecution(je *model.JobExecution) (*JobExecutionEntity, error) {
	state := je.State()
	params, err := serialization.MarshalJobParameters(je.Parameters.Params)
	if err != nil {
		return nil, err
	}
	failures, err := serialization.MarshalFailures(state.Failures)
	if err != nil {
		return nil, err
	}
	ec, err := serialization.MarshalExecutionContext(je.ExecutionContext)
	if err != nil {
		return nil, err
	}
	return &JobExecutionEntity{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       datatypes.JSON(params),
		StartTime:        je.StartTime,
		EndTime:          state.EndTime,
		Status:           string(state.Status),
		ExitStatus:       string(state.ExitStatus),
		Failures:         datatypes.JSON(failures),
		ExecutionContext: datatypes.JSON(ec),
		CurrentStepName:  je.CurrentStepName,
		Version:          je.Version,
		CreateTime:       je.CreateTime,
		LastUpdated:      state.LastUpdated,
	}, nil
}

func toDomainJobExecution(entity *JobExecutionEntity) (*model.JobExecution, error) {
	params, err := serialization.UnmarshalJobParameters(entity.Parameters)
	if err != nil {
		return nil, err
	}
	failures, err := serialization.UnmarshalFailures(entity.Failures)
	if err != nil {
		return nil, err
	}
	ec, err := serialization.UnmarshalExecutionContext(entity.ExecutionContext)
	if err != nil {
		return nil, err
	}
	return &model.JobExecution{
		ID:               entity.ID,
		JobInstanceID:    entity.JobInstanceID,
		JobName:          entity.JobName,
		Parameters:       model.JobParameters{Params: params},
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           model.JobStatus(entity.Status),
		ExitStatus:       model.ExitStatus(entity.ExitStatus),
		Failures:         failures,
		Version:          entity.Version,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
		StepExecutions:   make([]*model.StepExecution, 0),
		ExecutionContext: ec,
		CurrentStepName:  entity.CurrentStepName,
	}, nil
}

func fromDomainStepExecution(se *model.StepExecution) (*StepExecutionEntity, error) {
	state := se.State()
	counts := se.Counts()
	failures, err := serialization.MarshalFailures(state.Failures)
	if err != nil {
		return nil, err
	}
	ec, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return nil, err
	}
	jobExecutionID := se.JobExecutionID
	if jobExecutionID == "" && se.JobExecution != nil {
		jobExecutionID = se.JobExecution.ID
	}
	return &StepExecutionEntity{
		ID:               se.ID,
		StepName:         se.StepName,
		JobExecutionID:   jobExecutionID,
		StartTime:        se.StartTime,
		EndTime:          state.EndTime,
		Status:           string(state.Status),
		ExitStatus:       string(state.ExitStatus),
		Failures:         datatypes.JSON(failures),
		ReadCount:        counts.Read,
		WriteCount:       counts.Write,
		CommitCount:      counts.Commit,
		RollbackCount:    counts.Rollback,
		FilterCount:      counts.Filter,
		SkipReadCount:    counts.SkipRead,
		SkipProcessCount: counts.SkipProcess,
		SkipWriteCount:   counts.SkipWrite,
		ExecutionContext: datatypes.JSON(ec),
		Version:          se.Version,
		LastUpdated:      state.LastUpdated,
	}, nil
}

func toDomainStepExecution(entity *StepExecutionEntity) (*model.StepExecution, error) {
	failures, err := serialization.UnmarshalFailures(entity.Failures)
	if err != nil {
		return nil, err
	}
	ec, err := serialization.UnmarshalExecutionContext(entity.ExecutionContext)
	if err != nil {
		return nil, err
	}
	return &model.StepExecution{
		ID:               entity.ID,
		StepName:         entity.StepName,
		JobExecutionID:   entity.JobExecutionID,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           model.JobStatus(entity.Status),
		ExitStatus:       model.ExitStatus(entity.ExitStatus),
		Failures:         failures,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		CommitCount:      entity.CommitCount,
		RollbackCount:    entity.RollbackCount,
		FilterCount:      entity.FilterCount,
		SkipReadCount:    entity.SkipReadCount,
		SkipProcessCount: entity.SkipProcessCount,
		SkipWriteCount:   entity.SkipWriteCount,
		ExecutionContext: ec,
		LastUpdated:      entity.LastUpdated,
		Version:          entity.Version,
	}, nil
}
