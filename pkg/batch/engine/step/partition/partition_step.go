// Package partition provides the controller step that fans a worker step out over partitions.
package partition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// WorkerFactory builds the worker step for one partition.
// Every partition gets its own instance, so stateful readers are never shared between partitions.
type WorkerFactory func(partitionKey string, ec model.ExecutionContext) (port.Step, error)

// PartitionStep is the controller step. It asks the Partitioner for the partitions, runs one worker
// step per partition through the StepExecutor and aggregates their counts and failures.
// A failing partition never cancels its siblings.
type PartitionStep struct {
	id                     string
	workerName             string
	partitioner            port.Partitioner
	workerFactory          WorkerFactory
	gridSize               int
	jobRepository          repository.JobRepository
	stepExecutor           port.StepExecutor
	stepExecutionListeners []port.StepExecutionListener
	metricRecorder         metrics.MetricRecorder
	tracer                 metrics.Tracer
}

// NewPartitionStep creates a new PartitionStep. gridSize bounds how many partitions run at once;
// zero or less runs every partition concurrently.
func NewPartitionStep(
	id string,
	workerName string,
	partitioner port.Partitioner,
	workerFactory WorkerFactory,
	gridSize int,
	jobRepository repository.JobRepository,
	stepExecutor port.StepExecutor,
) *PartitionStep {
	return &PartitionStep{
		id:             id,
		workerName:     workerName,
		partitioner:    partitioner,
		workerFactory:  workerFactory,
		gridSize:       gridSize,
		jobRepository:  jobRepository,
		stepExecutor:   stepExecutor,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
}

// AddStepListener registers a StepExecutionListener on the controller execution.
func (s *PartitionStep) AddStepListener(l port.StepExecutionListener) {
	s.stepExecutionListeners = append(s.stepExecutionListeners, l)
}

// SetMetricRecorder implements port.Step.
func (s *PartitionStep) SetMetricRecorder(recorder metrics.MetricRecorder) {
	s.metricRecorder = recorder
}

// SetTracer implements port.Step.
func (s *PartitionStep) SetTracer(tracer metrics.Tracer) {
	s.tracer = tracer
}

// ID returns the step ID.
func (s *PartitionStep) ID() string {
	return s.id
}

// StepName returns the step name.
func (s *PartitionStep) StepName() string {
	return s.id
}

func (s *PartitionStep) notifyBeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}
}

func (s *PartitionStep) notifyAfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
}

// Execute runs the partitioning logic.
func (s *PartitionStep) Execute(ctx context.Context, jobExecution *model.JobExecution, controllerExecution *model.StepExecution) error {
	logger.Infof("PartitionStep '%s' executing (GridSize: %d).", s.id, s.gridSize)

	ctx, finishSpan := s.tracer.StartStepSpan(ctx, controllerExecution)
	defer finishSpan()

	controllerExecution.MarkAsStarted()
	s.metricRecorder.RecordStepStart(ctx, controllerExecution)
	s.notifyBeforeStep(ctx, controllerExecution)

	err := s.execute(ctx, jobExecution, controllerExecution)

	switch {
	case err == nil:
		controllerExecution.MarkAsCompleted()
	case errors.Is(err, context.Canceled):
		controllerExecution.AddFailureException(err)
		controllerExecution.MarkAsStopped()
	default:
		s.tracer.RecordError(ctx, s.id, err)
		controllerExecution.MarkAsFailed(err)
	}

	afterCtx := context.WithoutCancel(ctx)
	s.notifyAfterStep(afterCtx, controllerExecution)
	s.metricRecorder.RecordStepEnd(afterCtx, controllerExecution)
	logger.Infof("PartitionStep '%s' finished. ExitStatus: %s", s.id, controllerExecution.ExitStatus)
	return err
}

func (s *PartitionStep) execute(ctx context.Context, jobExecution *model.JobExecution, controllerExecution *model.StepExecution) error {
	partitionContexts, err := s.partitioner.Partition(ctx, s.gridSize)
	if err != nil {
		return exception.NewBatchError(s.id, "failed to execute Partitioner", err, false, false)
	}
	logger.Infof("PartitionStep '%s': Partitioner returned %d partitions.", s.id, len(partitionContexts))
	s.metricRecorder.RecordPartitions(ctx, jobExecution.JobName, len(partitionContexts))
	if len(partitionContexts) == 0 {
		return ctx.Err()
	}

	var (
		mu        sync.Mutex
		workerErr error
	)
	g := new(errgroup.Group)
	if s.gridSize > 0 {
		g.SetLimit(s.gridSize)
	}
	for _, key := range SortedKeys(partitionContexts) {
		partitionEC := partitionContexts[key]
		workerExecution := model.NewStepExecution(model.NewID(), jobExecution, model.PartitionName(s.workerName, key))
		workerExecution.ExecutionContext = partitionEC
		jobExecution.AddStepExecution(workerExecution)

		g.Go(func() error {
			err := s.runWorker(ctx, key, jobExecution, workerExecution)
			controllerExecution.AddCounts(workerExecution.Counts())
			if err != nil {
				for _, msg := range workerExecution.Failures {
					controllerExecution.AddFailureException(errors.New(msg))
				}
				mu.Lock()
				workerErr = errors.Join(workerErr, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if workerErr != nil {
		if errors.Is(workerErr, context.Canceled) {
			return workerErr
		}
		return exception.NewBatchError(s.id, "one or more partitions failed", workerErr, false, false)
	}
	return ctx.Err()
}

func (s *PartitionStep) runWorker(ctx context.Context, key string, jobExecution *model.JobExecution, workerExecution *model.StepExecution) error {
	if err := s.jobRepository.SaveStepExecution(ctx, workerExecution); err != nil {
		workerExecution.MarkAsFailed(err)
		return exception.NewBatchError(s.id, fmt.Sprintf("failed to save worker StepExecution %s", workerExecution.ID), err, false, false)
	}
	worker, err := s.workerFactory(key, workerExecution.ExecutionContext)
	if err != nil {
		workerExecution.MarkAsFailed(err)
		s.updateWorker(ctx, workerExecution)
		return exception.NewBatchError(s.id, fmt.Sprintf("failed to build worker for partition %s", key), err, false, false)
	}

	logger.Debugf("PartitionStep '%s': starting worker '%s' (StepExecution ID: %s).", s.id, workerExecution.StepName, workerExecution.ID)
	_, err = s.stepExecutor.ExecuteStep(ctx, worker, jobExecution, workerExecution)
	s.updateWorker(ctx, workerExecution)
	if err != nil {
		logger.Errorf("PartitionStep '%s': worker '%s' failed: %v", s.id, workerExecution.StepName, err)
		return err
	}
	return nil
}

func (s *PartitionStep) updateWorker(ctx context.Context, workerExecution *model.StepExecution) {
	if err := s.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), workerExecution); err != nil {
		logger.Errorf("PartitionStep '%s': failed to update worker StepExecution '%s': %v", s.id, workerExecution.ID, err)
	}
}

// SortedKeys returns partition keys in numeric order when they are numbers, lexical order otherwise.
func SortedKeys(partitions map[string]model.ExecutionContext) []string {
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

var _ port.Step = (*PartitionStep)(nil)
