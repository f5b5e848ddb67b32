package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/internal/migrations"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	sqlrepo "github.com/tigerroll/loancob/pkg/batch/infrastructure/repository/sql"
	batchtest "github.com/tigerroll/loancob/pkg/batch/test"
)

const jobName = "LOAN_CLOSE_OF_BUSINESS"

func setupRepository(t *testing.T) (*sqlrepo.SQLJobRepository, *gorm.DB) {
	t.Helper()
	db := batchtest.NewSQLiteDB(t, migrations.FS, "sqlite")
	return sqlrepo.NewSQLJobRepository(db), db
}

func cobParams(date string, catchUp bool) model.JobParameters {
	return batchtest.NewTestJobParameters(map[string]interface{}{
		"jobType":      jobName,
		"businessDate": date,
		"catchUp":      catchUp,
	})
}

func saveInstance(t *testing.T, repo *sqlrepo.SQLJobRepository, name string, params model.JobParameters, created time.Time) *model.JobInstance {
	t.Helper()
	instance := model.NewJobInstance(name, params)
	instance.CreateTime = created
	require.NoError(t, repo.SaveJobInstance(context.Background(), instance))
	return instance
}

func saveExecution(t *testing.T, repo *sqlrepo.SQLJobRepository, instance *model.JobInstance, created time.Time) *model.JobExecution {
	t.Helper()
	execution := model.NewJobExecution(instance.ID, instance.JobName, instance.Parameters)
	execution.CreateTime = created
	require.NoError(t, repo.SaveJobExecution(context.Background(), execution))
	return execution
}

func TestSQLJobRepository_FindJobInstanceByParameters(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 11, 1, 0, 0, 0, time.UTC)

	saved := saveInstance(t, repo, jobName, cobParams("2026-05-10", false), base)
	saveInstance(t, repo, jobName, cobParams("2026-05-09", true), base.Add(time.Second))

	found, err := repo.FindJobInstanceByJobNameAndParameters(ctx, jobName, cobParams("2026-05-10", false))
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, saved.ParametersHash, found.ParametersHash)
	assert.True(t, found.Parameters.Equal(saved.Parameters))

	_, err = repo.FindJobInstanceByJobNameAndParameters(ctx, jobName, cobParams("2026-05-10", true))
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)

	byID, err := repo.FindJobInstanceByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, jobName, byID.JobName)

	_, err = repo.FindJobInstanceByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestSQLJobRepository_PartialParametersAndJobNames(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 11, 1, 0, 0, 0, time.UTC)

	first := saveInstance(t, repo, jobName, cobParams("2026-05-09", true), base)
	second := saveInstance(t, repo, jobName, cobParams("2026-05-10", true), base.Add(time.Second))
	saveInstance(t, repo, jobName, cobParams("2026-05-10", false), base.Add(2*time.Second))
	saveInstance(t, repo, "OTHER_JOB", cobParams("2026-05-10", true), base.Add(3*time.Second))

	instances, err := repo.FindJobInstancesByJobNameAndPartialParameters(ctx, jobName,
		batchtest.NewTestJobParameters(map[string]interface{}{"catchUp": true}))
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, second.ID, instances[0].ID)
	assert.Equal(t, first.ID, instances[1].ID)

	names, err := repo.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{jobName, "OTHER_JOB"}, names)
}

func TestSQLJobRepository_JobExecutionLifecycle(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 11, 1, 0, 0, 0, time.UTC)
	instance := saveInstance(t, repo, jobName, cobParams("2026-05-10", false), base)

	execution := saveExecution(t, repo, instance, base)
	execution.MarkAsStarted()
	execution.CurrentStepName = "cobPartitionStep"
	require.NoError(t, repo.UpdateJobExecution(ctx, execution))
	assert.Equal(t, 1, execution.Version)

	running, err := repo.FindRunningJobExecutions(ctx, jobName)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, execution.ID, running[0].ID)
	assert.Equal(t, model.BatchStatusStarted, running[0].Status)

	execution.MarkAsFailed(errors.New("partition 3 failed"))
	require.NoError(t, repo.UpdateJobExecution(ctx, execution))

	running, err = repo.FindRunningJobExecutions(ctx, jobName)
	require.NoError(t, err)
	assert.Empty(t, running)

	found, err := repo.FindJobExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, found.Status)
	assert.Equal(t, model.ExitStatusFailed, found.ExitStatus)
	assert.Equal(t, []string{"partition 3 failed"}, found.FailureMessages())
	assert.Equal(t, "cobPartitionStep", found.CurrentStepName)
	assert.Equal(t, 2, found.Version)
	assert.NotNil(t, found.EndTime)
	assert.Nil(t, found.CancelFunc)
	date, _ := found.Parameters.GetString("businessDate")
	assert.Equal(t, "2026-05-10", date)

	rerun := saveExecution(t, repo, instance, base.Add(time.Minute))
	executions, err := repo.FindJobExecutionsByJobInstance(ctx, instance)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, rerun.ID, executions[0].ID)
	assert.Equal(t, execution.ID, executions[1].ID)
}

func TestSQLJobRepository_StoppingCopyDoesNotBlockLiveExecution(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()
	instance := saveInstance(t, repo, jobName, cobParams("2026-05-10", false), time.Now())
	live := saveExecution(t, repo, instance, time.Now())
	live.MarkAsStarted()
	require.NoError(t, repo.UpdateJobExecution(ctx, live))

	stopping, err := repo.FindJobExecutionByID(ctx, live.ID)
	require.NoError(t, err)
	require.NoError(t, stopping.TransitionTo(model.BatchStatusStopping))
	require.NoError(t, repo.UpdateJobExecution(ctx, stopping))

	require.NoError(t, live.TransitionTo(model.BatchStatusStopping))
	live.MarkAsStopped()
	require.NoError(t, repo.UpdateJobExecution(ctx, live))

	found, err := repo.FindJobExecutionByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, found.Status)
}

func TestSQLJobRepository_StepExecutions(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()
	instance := saveInstance(t, repo, jobName, cobParams("2026-05-10", false), time.Now())
	execution := saveExecution(t, repo, instance, time.Now())

	step := model.NewStepExecution(model.NewID(), execution, model.PartitionName("cobWorker", "0"))
	step.ExecutionContext.Put("workUnit", map[string]interface{}{"minId": 1, "maxId": 100})
	require.NoError(t, repo.SaveStepExecution(ctx, step))

	step.MarkAsStarted()
	step.AddCounts(model.StepCounts{Read: 100, Write: 98, Commit: 1, SkipProcess: 2})
	step.MarkAsCompleted()
	require.NoError(t, repo.UpdateStepExecution(ctx, step))

	found, err := repo.FindStepExecutionByID(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, found.JobExecutionID)
	assert.Equal(t, model.BatchStatusCompleted, found.Status)
	assert.Equal(t, model.StepCounts{Read: 100, Write: 98, Commit: 1, SkipProcess: 2}, found.Counts())
	unit, ok := found.ExecutionContext.Get("workUnit")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"minId": float64(1), "maxId": float64(100)}, unit)

	withSteps, err := repo.FindJobExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, withSteps.Steps(), 1)
	assert.Equal(t, step.ID, withSteps.Steps()[0].ID)
	assert.Same(t, withSteps, withSteps.Steps()[0].JobExecution)

	_, err = repo.FindStepExecutionByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
}

func TestSQLJobRepository_UpdateUnknownExecution(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	execution := model.NewJobExecution(model.NewID(), jobName, model.NewJobParameters())
	assert.ErrorIs(t, repo.UpdateJobExecution(ctx, execution), repository.ErrJobExecutionNotFound)

	step := model.NewStepExecution(model.NewID(), execution, "cobWorker")
	assert.ErrorIs(t, repo.UpdateStepExecution(ctx, step), repository.ErrStepExecutionNotFound)

	_, err := repo.FindJobExecutionByID(ctx, execution.ID)
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
}

func TestSQLJobRepository_JoinsTransactionFromContext(t *testing.T) {
	repo, db := setupRepository(t)
	txManager := batchtest.NewTransactionManager(db)
	ctx := context.Background()

	t1, err := txManager.Begin(ctx)
	require.NoError(t, err)
	instance := model.NewJobInstance(jobName, cobParams("2026-05-10", false))
	require.NoError(t, repo.SaveJobInstance(tx.WithTx(ctx, t1), instance))
	require.NoError(t, txManager.Rollback(t1))

	_, err = repo.FindJobInstanceByID(ctx, instance.ID)
	assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
}

func TestSQLJobRepository_QueryErrorIsNotNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	gormDB, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)
	repo := sqlrepo.NewSQLJobRepository(gormDB)

	mock.ExpectQuery("SELECT (.+) FROM `batch_job_execution`").WillReturnError(errors.New("connection reset"))
	_, err = repo.FindJobExecutionByID(context.Background(), "e1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrJobExecutionNotFound)
	assert.ErrorContains(t, err, "connection reset")

	mock.ExpectQuery("SELECT (.+) FROM `batch_job_execution`").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.FindJobExecutionByID(context.Background(), "e1")
	assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
