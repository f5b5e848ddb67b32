package cob

import (
	"fmt"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/migrations"
	"github.com/tigerroll/loancob/internal/repository"
	"github.com/tigerroll/loancob/pkg/batch/adapter/storage"
	"github.com/tigerroll/loancob/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/loancob/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	batchrepo "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	"github.com/tigerroll/loancob/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	"github.com/tigerroll/loancob/pkg/batch/engine/step/flow"
	"github.com/tigerroll/loancob/pkg/batch/engine/step/item"
	"github.com/tigerroll/loancob/pkg/batch/engine/step/partition"
	"github.com/tigerroll/loancob/pkg/batch/engine/step/tasklet"
)

// Step names of the COB job.
const (
	StepMigrate      = "migrate"
	StepPartitioning = "loanCOBPartitioning"
	StepWorker       = "loanCOBWorker"
	StepApplyLock    = "applyLock"
	StepProcess      = "processLoans"
	StepReport       = "failureReport"
)

// JobComponents is what the COB job definition is assembled from. Migrator and ReportConn
// are optional; without them the migration step and the failure report are left out.
type JobComponents struct {
	Batch          config.BatchConfig
	Report         config.ReportConfig
	DefaultJobType string

	JobRepository batchrepo.JobRepository
	Loans         repository.LoanRepository
	Locks         repository.AccountLockRepository
	Registry      *businessstep.Registry
	Operator      usecase.JobOperator
	Dates         businessdate.Provider
	TxManager     tx.TransactionManager

	Migrator     migration.Migrator
	MigrationDir string
	ReportConn   storage.StorageConnection
	// Executor runs the partition workers; a SimpleStepExecutor is used when nil.
	Executor     port.StepExecutor

	Recorder       metrics.MetricRecorder
	Tracer         metrics.Tracer
	JobListeners   []port.JobExecutionListener
	StepListeners  []port.StepExecutionListener
	ChunkListeners []port.ChunkListener
	SkipListeners  []port.SkipListener
	RetryListeners []port.RetryItemListener
}

// NewJob builds the COB job: an optional migration, the partitioned lock-and-process step and
// the failure report as a final step.
func NewJob(c JobComponents) *runner.SimpleJob {
	if c.Recorder == nil {
		c.Recorder = metrics.NewNoOpMetricRecorder()
	}
	if c.Tracer == nil {
		c.Tracer = metrics.NewNoOpTracer()
	}
	if c.DefaultJobType == "" {
		c.DefaultJobType = c.Batch.JobName
	}
	if c.Executor == nil {
		c.Executor = partition.NewSimpleStepExecutor(c.Tracer, c.Recorder)
	}

	var steps []port.Step
	if c.Migrator != nil {
		steps = append(steps, c.withListeners(tasklet.NewTaskletStep(StepMigrate,
			migration.NewMigrationTasklet(c.Migrator, migrations.FS, c.MigrationDir, "up"), nil)))
	}

	partitioner := NewLoanCOBPartitioner(c.Registry, NewLoanIDRangeService(c.Loans), c.Operator, c.Dates,
		c.Batch.JobName, c.DefaultJobType, c.Batch.PartitionSize)
	partitionStep := partition.NewPartitionStep(StepPartitioning, StepWorker, partitioner,
		func(_ string, ec model.ExecutionContext) (port.Step, error) { return c.newWorker(ec) },
		c.Batch.GridSize, c.JobRepository, c.Executor)
	partitionStep.SetMetricRecorder(c.Recorder)
	partitionStep.SetTracer(c.Tracer)
	for _, l := range c.StepListeners {
		partitionStep.AddStepListener(l)
	}
	steps = append(steps, partitionStep)

	job := runner.NewSimpleJob(c.Batch.JobName, steps, c.JobRepository, c.JobListeners, c.Recorder, c.Tracer).
		WithValidator(ValidateJobParameters)
	if c.ReportConn != nil {
		report := c.withListeners(tasklet.NewTaskletStep(StepReport, NewFailureReportTasklet(c.Locks, c.ReportConn, c.Report), nil))
		job.WithFinalStep(report)
	}
	return job
}

func (c JobComponents) withListeners(step *tasklet.TaskletStep) *tasklet.TaskletStep {
	step.SetMetricRecorder(c.Recorder)
	step.SetTracer(c.Tracer)
	for _, l := range c.StepListeners {
		step.AddStepListener(l)
	}
	return step
}

// newWorker builds the steps of one partition: lock acquisition followed by the chunk step,
// sharing the partition's ExecutionContext.
func (c JobComponents) newWorker(ec model.ExecutionContext) (port.Step, error) {
	unit, err := WorkUnitFrom(ec)
	if err != nil {
		return nil, err
	}
	pipeline, err := c.Registry.Pipeline(unit.BusinessSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve business steps: %w", err)
	}

	lockStep := c.withListeners(tasklet.NewTaskletStep(StepApplyLock, NewApplyLockTasklet(c.Loans, c.Locks, c.Recorder), c.TxManager))

	chunk := item.NewChunkStep[*entity.Loan, *entity.Loan](
		StepProcess,
		NewLoanItemReader(c.Loans, c.Locks),
		NewLoanItemProcessor(pipeline, unit.BusinessDate),
		NewLoanItemWriter(c.Loans, c.Locks, entity.LockOwnerBatchChunkProcessing),
		c.TxManager,
		item.Settings{
			ChunkSize: c.Batch.ChunkSize,
			Threads:   c.Batch.ReaderThreads,
			ItemRetry: c.Batch.ItemRetry,
			ItemSkip:  c.Batch.ItemSkip,
		},
	)
	chunk.AddSkipListener(NewLockErrorRecorder(c.Locks))
	for _, l := range c.SkipListeners {
		chunk.AddSkipListener(l)
	}
	for _, l := range c.StepListeners {
		chunk.AddStepListener(l)
	}
	for _, l := range c.ChunkListeners {
		chunk.AddChunkListener(l)
	}
	for _, l := range c.RetryListeners {
		chunk.AddRetryListener(l)
	}

	return flow.NewFlowStep(StepWorker, c.JobRepository, lockStep, chunk), nil
}
