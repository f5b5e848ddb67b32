// Package tasklet provides the step that runs a single Tasklet.
package tasklet

import (
	"context"
	"database/sql"
	"errors"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// TaskletStep is an implementation of port.Step for Tasklet-oriented processing.
// When a TransactionManager is set, the tasklet runs inside one transaction carried by the context.
type TaskletStep struct {
	id                     string
	tasklet                port.Tasklet
	txManager              tx.TransactionManager
	txOptions              *sql.TxOptions
	stepExecutionListeners []port.StepExecutionListener
	metricRecorder         metrics.MetricRecorder
	tracer                 metrics.Tracer
}

// NewTaskletStep creates a new TaskletStep. txManager may be nil for tasklets that manage their own resources.
func NewTaskletStep(id string, tasklet port.Tasklet, txManager tx.TransactionManager) *TaskletStep {
	return &TaskletStep{
		id:             id,
		tasklet:        tasklet,
		txManager:      txManager,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
}

// WithIsolationLevel sets the isolation level of the tasklet transaction.
// Accepted values: READ_UNCOMMITTED, READ_COMMITTED, REPEATABLE_READ, SERIALIZABLE.
func (s *TaskletStep) WithIsolationLevel(level string) *TaskletStep {
	s.txOptions = &sql.TxOptions{Isolation: parseIsolationLevel(level)}
	return s
}

// AddStepListener registers a StepExecutionListener.
func (s *TaskletStep) AddStepListener(l port.StepExecutionListener) {
	s.stepExecutionListeners = append(s.stepExecutionListeners, l)
}

// SetMetricRecorder implements port.Step.
func (s *TaskletStep) SetMetricRecorder(recorder metrics.MetricRecorder) {
	s.metricRecorder = recorder
}

// SetTracer implements port.Step.
func (s *TaskletStep) SetTracer(tracer metrics.Tracer) {
	s.tracer = tracer
}

func parseIsolationLevel(level string) sql.IsolationLevel {
	switch level {
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ_COMMITTED":
		return sql.LevelReadCommitted
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// ID returns the step ID.
func (s *TaskletStep) ID() string {
	return s.id
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.id
}

// Execute runs the Tasklet and leaves stepExecution in a finished status.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("TaskletStep '%s' executing.", s.id)

	ctx, finishSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer finishSpan()

	stepExecution.MarkAsStarted()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	exitStatus, err := s.run(ctx, stepExecution)

	switch {
	case err == nil && exitStatus == model.ExitStatusNoOp:
		stepExecution.MarkAsNoOp()
	case err == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(err, context.Canceled):
		stepExecution.AddFailureException(err)
		stepExecution.MarkAsStopped()
	default:
		s.tracer.RecordError(ctx, s.id, err)
		stepExecution.MarkAsFailed(err)
	}

	afterCtx := context.WithoutCancel(ctx)
	for _, l := range s.stepExecutionListeners {
		l.AfterStep(afterCtx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(afterCtx, stepExecution)
	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.id, stepExecution.ExitStatus)
	return err
}

func (s *TaskletStep) run(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	if s.txManager == nil {
		return s.tasklet.Execute(ctx, stepExecution)
	}

	var opts []*sql.TxOptions
	if s.txOptions != nil {
		opts = append(opts, s.txOptions)
	}
	t, err := s.txManager.Begin(ctx, opts...)
	if err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(s.id, "failed to begin transaction for tasklet", err, false, true)
	}

	exitStatus, err := s.tasklet.Execute(tx.WithTx(ctx, t), stepExecution)
	if err != nil {
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("TaskletStep '%s': rollback failed: %v", s.id, rbErr)
		}
		return model.ExitStatusFailed, err
	}
	if err := s.txManager.Commit(t); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(s.id, "failed to commit tasklet transaction", err, false, false)
	}
	return exitStatus, nil
}

var _ port.Step = (*TaskletStep)(nil)
