package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/tigerroll/loancob/internal/app"
	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/migrations"
	"github.com/tigerroll/loancob/pkg/batch/component/tasklet/migration"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

const testConfig = `
loancob:
  batch:
    job_name: LOAN_CLOSE_OF_BUSINESS
    partition_size: 10
    chunk_size: 5
    reader_threads: 2
    datasource_ref: workload
  business_steps:
    LOAN_CLOSE_OF_BUSINESS:
      - name: CHECK_DUE_INSTALLMENTS
        order: 1
      - name: UPDATE_LOAN_ARREARS_AGING
        order: 2
  system:
    logging:
      level: WARN
  database:
    workload:
      type: sqlite
      database: ":memory:"
      log_level: silent
`

func testOptions() app.Options {
	return app.Options{
		EmbeddedConfig: []byte(testConfig),
		DBAdapters:     []string{"sqlite"},
	}
}

func TestModules_GraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		app.Modules(testOptions()),
		fx.Invoke(func(app.Components) {}),
	)
	assert.NoError(t, err)
}

func TestRunApplication_ClosesBusinessDate(t *testing.T) {
	businessDate := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	cobDate := businessDate.AddDate(0, 0, -1)

	err := app.RunApplication(context.Background(), testOptions(), func(ctx context.Context, c app.Components) error {
		require.NoError(t, c.Migrator.Up(ctx, migrations.FS, migrations.Dir(c.DB.Dialector.Name()), migration.AppMigrationsTable))
		require.NoError(t, c.BusinessDates.Save(ctx, entity.BusinessDateTypeBusiness, businessDate))
		require.NoError(t, c.DB.Create(&entity.Loan{ID: 7, AccountNo: "000000007", Status: entity.LoanStatusActive}).Error)

		execution, err := c.COB.RunCOB(ctx, "", false)
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusCompleted, execution.CurrentStatus())

		var loan entity.Loan
		require.NoError(t, c.DB.First(&loan, 7).Error)
		require.NotNil(t, loan.LastClosedBusinessDate)
		assert.True(t, cobDate.Equal(entity.DateOnly(*loan.LastClosedBusinessDate)))
		return nil
	})
	require.NoError(t, err)
}

func TestRunApplication_SQLJobRepositoryRecordsExecution(t *testing.T) {
	opts := testOptions()
	opts.EmbeddedConfig = []byte(strings.Replace(testConfig,
		"    datasource_ref: workload\n",
		"    datasource_ref: workload\n    job_repository: sql\n    migrate_on_start: true\n", 1))

	err := app.RunApplication(context.Background(), opts, func(ctx context.Context, c app.Components) error {
		require.NoError(t, c.BusinessDates.Save(ctx, entity.BusinessDateTypeBusiness, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)))

		execution, err := c.COB.RunCOB(ctx, "", false)
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusCompleted, execution.CurrentStatus())

		stored, err := c.JobRepository.FindJobExecutionByID(ctx, execution.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusCompleted, stored.Status)
		assert.NotEmpty(t, stored.Steps())

		names, err := c.JobRepository.GetJobNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"LOAN_CLOSE_OF_BUSINESS"}, names)
		return nil
	})
	require.NoError(t, err)
}

func TestRunApplication_PropagatesRunError(t *testing.T) {
	err := app.RunApplication(context.Background(), testOptions(), func(context.Context, app.Components) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRunApplication_FailsWithoutDatasourceProvider(t *testing.T) {
	opts := testOptions()
	opts.DBAdapters = []string{"postgres"}
	err := app.RunApplication(context.Background(), opts, func(context.Context, app.Components) error {
		t.Fatal("run must not be called")
		return nil
	})
	assert.Error(t, err)
}
