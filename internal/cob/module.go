package cob

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/migrations"
	"github.com/tigerroll/loancob/internal/repository"
	"github.com/tigerroll/loancob/pkg/batch/adapter/storage"
	"github.com/tigerroll/loancob/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/loancob/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	batchrepo "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	"github.com/tigerroll/loancob/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	"github.com/tigerroll/loancob/pkg/batch/listener/logging"
	"github.com/tigerroll/loancob/pkg/batch/listener/notification"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// JobParams defines the dependencies of ProvideJob.
type JobParams struct {
	fx.In
	Lifecycle fx.Lifecycle

	Config        *config.Config
	JobRepository batchrepo.JobRepository
	Loans         repository.LoanRepository
	Locks         repository.AccountLockRepository
	Registry      *businessstep.Registry
	Operator      usecase.JobOperator
	Dates         businessdate.Provider
	TxManager     tx.TransactionManager
	DB            *gorm.DB
	Migrator      migration.Migrator `optional:"true"`
	Executor      port.StepExecutor  `optional:"true"`

	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer

	JobLogger    *logging.LoggingJobListener
	StepLogger   *logging.LoggingStepListener
	ChunkLogger  *logging.LoggingChunkListener
	SkipLogger   *logging.LoggingSkipListener
	RetryLogger  *logging.LoggingRetryItemListener
	Notification *notification.NotificationListener
}

// ProvideJob assembles the COB job from the configuration. The report storage connection is
// opened only when the failure report is enabled and is closed on stop.
func ProvideJob(p JobParams) (*runner.SimpleJob, error) {
	cob := p.Config.LoanCOB
	c := JobComponents{
		Batch:          cob.Batch,
		Report:         cob.Infrastructure.Report,
		DefaultJobType: cob.Batch.JobName,
		JobRepository:  p.JobRepository,
		Loans:          p.Loans,
		Locks:          p.Locks,
		Registry:       p.Registry,
		Operator:       p.Operator,
		Dates:          p.Dates,
		TxManager:      p.TxManager,
		Executor:       p.Executor,
		Recorder:       p.Recorder,
		Tracer:         p.Tracer,
		JobListeners:   []port.JobExecutionListener{p.JobLogger, p.Notification},
		StepListeners:  []port.StepExecutionListener{p.StepLogger},
		ChunkListeners: []port.ChunkListener{p.ChunkLogger},
		SkipListeners:  []port.SkipListener{p.SkipLogger},
		RetryListeners: []port.RetryItemListener{p.RetryLogger},
	}

	if cob.Batch.MigrateOnStart && p.Migrator != nil {
		c.Migrator = p.Migrator
		c.MigrationDir = migrations.Dir(p.DB.Dialector.Name())
	}

	if cob.Infrastructure.Report.Enabled {
		conn, err := storage.Open(context.Background(), "report", ReportStorageConfig(cob.Infrastructure.Report))
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error { return conn.Close() },
		})
		logger.Infof("Failure report enabled (%s storage, bucket %s).", conn.Type(), cob.Infrastructure.Report.Bucket)
		c.ReportConn = conn
	}

	return NewJob(c), nil
}

// RegisterJob makes the COB job available to the launcher.
func RegisterJob(registry *usecase.JobRegistry, job *runner.SimpleJob) {
	registry.Register(job)
}

// ServiceParams defines the dependencies of the COB services.
type ServiceParams struct {
	fx.In
	Config    *config.Config
	Launcher  usecase.JobLauncher
	Loans     repository.LoanRepository
	Locks     repository.AccountLockRepository
	Registry  *businessstep.Registry
	Dates     businessdate.Provider
	TxManager tx.TransactionManager
}

// ServiceResult groups the COB services.
type ServiceResult struct {
	fx.Out
	COB     *Service
	CatchUp *CatchUpService
	Inline  *InlineCOBService
	Locks   *LockService
}

// ProvideServices builds the services started from the command line.
func ProvideServices(p ServiceParams) ServiceResult {
	jobName := p.Config.LoanCOB.Batch.JobName
	cob := NewService(p.Launcher, p.Dates, jobName)
	return ServiceResult{
		COB:     cob,
		CatchUp: NewCatchUpService(cob, p.Loans, p.Dates),
		Inline:  NewInlineCOBService(p.Loans, p.Locks, p.Registry, p.Dates, p.TxManager, jobName),
		Locks:   NewLockService(p.Locks, p.Dates),
	}
}

// Module provides the COB job and services and registers the job.
var Module = fx.Options(
	fx.Provide(ProvideJob),
	fx.Provide(ProvideServices),
	fx.Invoke(RegisterJob),
)
