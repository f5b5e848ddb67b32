package cob_test

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/cob"
	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/pkg/batch/adapter/storage"
	_ "github.com/tigerroll/loancob/pkg/batch/adapter/storage/local"
	usecase "github.com/tigerroll/loancob/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	batchrepo "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	"github.com/tigerroll/loancob/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/loancob/pkg/batch/infrastructure/repository/sql"
	batchtest "github.com/tigerroll/loancob/pkg/batch/test"
)

type harness struct {
	*fixture
	launcher *usecase.SimpleJobLauncher
	service  *cob.Service
}

func batchConfig() config.BatchConfig {
	return config.BatchConfig{
		JobName:       jobName,
		PartitionSize: 2,
		GridSize:      1,
		ChunkSize:     2,
		ReaderThreads: 1,
		ItemRetry:     config.ItemRetryConfig{MaxAttempts: 1},
		ItemSkip: config.ItemSkipConfig{
			SkipLimit:           math.MaxInt32,
			SkippableExceptions: []string{"LoanReadError", "BusinessStepFailureError"},
		},
	}
}

// newHarness registers the COB job on an in-memory job repository. reportDir enables the
// failure report on local storage when not empty.
func newHarness(t *testing.T, f *fixture, dates businessdate.Provider, reportDir string) *harness {
	t.Helper()
	return newHarnessWith(t, f, dates, batchConfig(), inmemory.NewInMemoryJobRepository(), reportDir)
}

func newHarnessWith(t *testing.T, f *fixture, dates businessdate.Provider, batch config.BatchConfig, jobRepo batchrepo.JobRepository, reportDir string) *harness {
	t.Helper()
	registry := usecase.NewJobRegistry()
	launcher := usecase.NewSimpleJobLauncher(jobRepo, registry)

	c := cob.JobComponents{
		Batch:         batch,
		JobRepository: jobRepo,
		Loans:         f.loans,
		Locks:         f.locks,
		Registry:      f.registry,
		Operator:      usecase.NewDefaultJobOperator(jobRepo, launcher),
		Dates:         dates,
		TxManager:     batchtest.NewTransactionManager(f.db),
	}
	if reportDir != "" {
		c.Report = config.ReportConfig{Enabled: true, Storage: "local", Bucket: reportDir, BaseDir: "cob-failures", Compression: "SNAPPY"}
		conn, err := storage.Open(context.Background(), "report", cob.ReportStorageConfig(c.Report))
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		c.ReportConn = conn
	}
	registry.Register(cob.NewJob(c))
	return &harness{fixture: f, launcher: launcher, service: cob.NewService(launcher, dates, jobName)}
}

func TestCOBJob_ClosesEveryEligibleLoan(t *testing.T) {
	f := newFixture(t)
	prior := datePtr(businessDate.AddDate(0, 0, -1))
	f.seed(t,
		activeLoan(1, prior),
		activeLoan(2, nil),
		activeLoan(3, prior),
		activeLoan(4, prior),
		activeLoan(5, prior),
	)
	closedAlready := &entity.Loan{ID: 6, AccountNo: "000000006", Status: entity.LoanStatusClosedObligations, LastClosedBusinessDate: prior}
	f.seed(t, closedAlready)
	h := newHarness(t, f, businessDateProvider(), "")

	execution, err := h.service.RunCOB(context.Background(), jobType, false)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, execution.CurrentStatus())

	for id := int64(1); id <= 5; id++ {
		loan := f.loan(t, id)
		require.NotNil(t, loan.LastClosedBusinessDate, "account %d", id)
		assert.True(t, businessDate.Equal(*loan.LastClosedBusinessDate), "account %d", id)
		assert.Equal(t, int64(1), loan.Version)
	}
	assert.True(t, prior.Equal(*f.loan(t, 6).LastClosedBusinessDate))
	assert.Empty(t, f.allLocks(t))

	params := execution.Parameters
	date, _ := params.GetString(cob.ParamBusinessDate)
	assert.Equal(t, "2026-05-10", date)
	catchUp, _ := params.GetBool(cob.ParamCatchUp)
	assert.False(t, catchUp)
}

func TestCOBJob_FailedAccountKeepsLockAndIsReported(t *testing.T) {
	f := newFixture(t, 2)
	prior := datePtr(businessDate.AddDate(0, 0, -1))
	f.seed(t, activeLoan(1, prior), activeLoan(2, prior), activeLoan(3, prior))
	reportDir := t.TempDir()
	h := newHarness(t, f, businessDateProvider(), reportDir)

	execution, err := h.service.RunCOBForDate(context.Background(), jobType, businessDate, false)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, execution.CurrentStatus())

	locks := f.allLocks(t)
	require.Len(t, locks, 1)
	lock := locks[2]
	assert.Equal(t, entity.LockOwnerBatchChunkProcessing, lock.Owner)
	assert.Contains(t, lock.Error, "account 2 rejected")
	var details entity.LockErrorDetails
	require.NoError(t, json.Unmarshal(lock.ErrorDetails, &details))
	assert.Equal(t, rejectStepName, details.Step)
	assert.Equal(t, jobName, details.JobName)

	assert.True(t, prior.Equal(*f.loan(t, 2).LastClosedBusinessDate))
	assert.True(t, businessDate.Equal(*f.loan(t, 1).LastClosedBusinessDate))
	assert.True(t, businessDate.Equal(*f.loan(t, 3).LastClosedBusinessDate))

	files, err := filepath.Glob(filepath.Join(reportDir, "cob-failures", "2026-05-10", "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data[:4]))

	// A rerun of the date leaves the failed account alone until its lock is cleared.
	rerun, err := h.service.RunCOBForDate(context.Background(), jobType, businessDate, false)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, rerun.CurrentStatus())
	assert.NotEqual(t, execution.ID, rerun.ID)
	assert.True(t, prior.Equal(*f.loan(t, 2).LastClosedBusinessDate))
	assert.Equal(t, lock.Error, f.allLocks(t)[2].Error)
}

func TestCOBJob_ConcurrentPartitionsAndReaders(t *testing.T) {
	const (
		loans    = 30
		inlineID = 7
		rejectID = 13
	)
	tests := []struct {
		name    string
		jobRepo func(f *fixture) batchrepo.JobRepository
	}{
		{name: "inmemory job repository", jobRepo: func(*fixture) batchrepo.JobRepository { return inmemory.NewInMemoryJobRepository() }},
		{name: "sql job repository", jobRepo: func(f *fixture) batchrepo.JobRepository { return sqlrepo.NewSQLJobRepository(f.db) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, rejectID)
			prior := datePtr(businessDate.AddDate(0, 0, -1))
			for id := int64(1); id <= loans; id++ {
				f.seed(t, activeLoan(id, prior))
			}
			require.NoError(t, f.locks.InsertLocks(context.Background(), []int64{inlineID}, entity.LockOwnerInlineProcessing, businessDate))

			batch := batchConfig()
			batch.PartitionSize = 4
			batch.GridSize = 4
			batch.ReaderThreads = 3
			h := newHarnessWith(t, f, businessDateProvider(), batch, tt.jobRepo(f), "")

			execution, err := h.service.RunCOB(context.Background(), jobType, false)
			require.NoError(t, err)
			assert.Equal(t, model.BatchStatusCompleted, execution.CurrentStatus())

			locks := f.allLocks(t)
			require.Len(t, locks, 2)
			assert.Equal(t, entity.LockOwnerInlineProcessing, locks[inlineID].Owner)
			assert.Equal(t, entity.LockOwnerBatchChunkProcessing, locks[rejectID].Owner)
			assert.NotEmpty(t, locks[rejectID].Error)

			for id := int64(1); id <= loans; id++ {
				loan := f.loan(t, id)
				if id == inlineID || id == rejectID {
					assert.True(t, prior.Equal(*loan.LastClosedBusinessDate), "account %d", id)
					assert.Equal(t, int64(0), loan.Version, "account %d", id)
					continue
				}
				assert.True(t, businessDate.Equal(*loan.LastClosedBusinessDate), "account %d", id)
				assert.Equal(t, int64(1), loan.Version, "account %d", id)
			}
		})
	}
}

func TestCOBJob_RejectsMalformedBusinessDate(t *testing.T) {
	f := newFixture(t)
	h := newHarness(t, f, businessDateProvider(), "")

	params := cob.NewJobParameters(jobType, businessDate, false)
	params.Put(cob.ParamBusinessDate, "10/05/2026")
	_, err := h.launcher.Run(context.Background(), jobName, params)
	assert.Error(t, err)
}

func TestFailureReportTasklet_NothingToReport(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	cfg := config.ReportConfig{Storage: "local", Bucket: dir, BaseDir: "reports"}
	conn, err := storage.Open(context.Background(), "report", cob.ReportStorageConfig(cfg))
	require.NoError(t, err)
	defer conn.Close()

	tasklet := cob.NewFailureReportTasklet(f.locks, conn, cfg)
	se := batchtest.NewTestStepExecution(jobName, cob.StepReport, cob.NewJobParameters(jobType, businessDate, false), nil)
	status, err := tasklet.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, status)
	assert.Empty(t, tasklet.Written())
}

func TestFailureReportTasklet_OnlyReportsRunDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.locks.InsertLocks(ctx, []int64{1}, entity.LockOwnerBatchChunkProcessing, businessDate))
	require.NoError(t, f.locks.InsertLocks(ctx, []int64{2}, entity.LockOwnerBatchChunkProcessing, businessDate.AddDate(0, 0, -1)))
	require.NoError(t, f.locks.RecordError(ctx, 1, "today", "", nil))
	require.NoError(t, f.locks.RecordError(ctx, 2, "yesterday", "", nil))

	dir := t.TempDir()
	cfg := config.ReportConfig{Storage: "local", Bucket: dir, BaseDir: "reports", Compression: "GZIP"}
	conn, err := storage.Open(ctx, "report", cob.ReportStorageConfig(cfg))
	require.NoError(t, err)
	defer conn.Close()

	tasklet := cob.NewFailureReportTasklet(f.locks, conn, cfg)
	se := batchtest.NewTestStepExecution(jobName, cob.StepReport, cob.NewJobParameters(jobType, businessDate, false), nil)
	status, err := tasklet.Execute(ctx, se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, status)

	written := tasklet.Written()
	require.Len(t, written, 1)
	assert.Equal(t, "reports/2026-05-10", filepath.ToSlash(filepath.Dir(written[0])))
	_, err = os.Stat(filepath.Join(dir, written[0]))
	assert.NoError(t, err)
}

func TestReportStorageConfig(t *testing.T) {
	local := cob.ReportStorageConfig(config.ReportConfig{Storage: "local", Bucket: "/var/reports"})
	assert.Equal(t, "local", local.Type)
	assert.Equal(t, "/var/reports", local.BaseDir)

	gcs := cob.ReportStorageConfig(config.ReportConfig{Storage: "gcs", Bucket: "cob-reports", CredentialsFile: "sa.json"})
	assert.Equal(t, "gcs", gcs.Type)
	assert.Equal(t, "cob-reports", gcs.BucketName)
	assert.Equal(t, "sa.json", gcs.CredentialsFile)
}
