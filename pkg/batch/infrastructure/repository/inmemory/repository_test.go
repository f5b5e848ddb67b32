package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	"github.com/tigerroll/loancob/pkg/batch/infrastructure/repository/inmemory"
)

const jobName = "LOAN_CLOSE_OF_BUSINESS"

func cobParams(date string) model.JobParameters {
	params := model.NewJobParameters()
	params.Put("jobType", jobName)
	params.Put("businessDate", date)
	return params
}

func TestInMemoryJobRepository_Instances(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 11, 1, 0, 0, 0, time.UTC)

	older := model.NewJobInstance(jobName, cobParams("2026-05-09"))
	older.CreateTime = base
	newer := model.NewJobInstance(jobName, cobParams("2026-05-10"))
	newer.CreateTime = base.Add(time.Minute)
	require.NoError(t, repo.SaveJobInstance(ctx, older))
	require.NoError(t, repo.SaveJobInstance(ctx, newer))
	assert.Error(t, repo.SaveJobInstance(ctx, older))

	lookup := cobParams("2026-05-10")
	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, jobName, lookup)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, "OTHER", lookup)
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)

	partial := model.NewJobParameters()
	partial.Put("jobType", jobName)
	instances, err := repo.FindJobInstancesByJobNameAndPartialParameters(ctx, jobName, partial)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, newer.ID, instances[0].ID)
	assert.Equal(t, older.ID, instances[1].ID)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{jobName}, names)
}

func TestInMemoryJobRepository_Executions(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 11, 1, 0, 0, 0, time.UTC)

	instance := model.NewJobInstance(jobName, cobParams("2026-05-10"))
	require.NoError(t, repo.SaveJobInstance(ctx, instance))

	failed := model.NewJobExecution(instance.ID, jobName, instance.Parameters)
	failed.CreateTime = base
	retry := model.NewJobExecution(instance.ID, jobName, instance.Parameters)
	retry.CreateTime = base.Add(time.Minute)
	require.NoError(t, repo.SaveJobExecution(ctx, failed))
	require.NoError(t, repo.SaveJobExecution(ctx, retry))

	failed.MarkAsFailed(assert.AnError)
	require.NoError(t, repo.UpdateJobExecution(ctx, failed))
	retry.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, retry))

	executions, err := repo.FindJobExecutionsByJobInstance(ctx, instance)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, retry.ID, executions[0].ID)

	running, err := repo.FindRunningJobExecutions(ctx, jobName)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, retry.ID, running[0].ID)

	unknown := model.NewJobExecution(instance.ID, jobName, instance.Parameters)
	assert.ErrorIs(t, repo.UpdateJobExecution(ctx, unknown), repository.ErrJobExecutionNotFound)
	_, err = repo.FindJobExecutionByID(ctx, unknown.ID)
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
}

func TestInMemoryJobRepository_StepExecutions(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	ctx := context.Background()

	je := model.NewJobExecution("instance-1", jobName, cobParams("2026-05-10"))
	step := model.NewStepExecution(model.NewID(), je, model.PartitionName("cobWorker", "p0"))
	require.NoError(t, repo.SaveStepExecution(ctx, step))
	assert.Error(t, repo.SaveStepExecution(ctx, step))

	step.AddCounts(model.StepCounts{Read: 5, Write: 5, Commit: 1})
	require.NoError(t, repo.UpdateStepExecution(ctx, step))

	found, err := repo.FindStepExecutionByID(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, found.Counts().Write)

	other := model.NewStepExecution(model.NewID(), je, "cobManager")
	assert.ErrorIs(t, repo.UpdateStepExecution(ctx, other), repository.ErrStepExecutionNotFound)
	_, err = repo.FindStepExecutionByID(ctx, other.ID)
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
}
