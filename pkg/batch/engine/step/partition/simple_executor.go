package partition

import (
	"context"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// SimpleStepExecutor runs the worker step in the caller's goroutine.
// Worker steps own their transactions (per chunk or per tasklet), so the executor starts none.
type SimpleStepExecutor struct {
	tracer   metrics.Tracer
	recorder metrics.MetricRecorder
}

// NewSimpleStepExecutor creates a new instance of SimpleStepExecutor.
func NewSimpleStepExecutor(tracer metrics.Tracer, recorder metrics.MetricRecorder) *SimpleStepExecutor {
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &SimpleStepExecutor{
		tracer:   tracer,
		recorder: recorder,
	}
}

// ExecuteStep executes the worker Step synchronously.
func (e *SimpleStepExecutor) ExecuteStep(ctx context.Context, step port.Step, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (*model.StepExecution, error) {
	logger.Infof("Partition Step Executor: Starting Worker Step '%s'.", stepExecution.StepName)

	step.SetMetricRecorder(e.recorder)
	step.SetTracer(e.tracer)

	executionCtx := port.GetContextWithStepExecution(ctx, stepExecution)
	if err := step.Execute(executionCtx, jobExecution, stepExecution); err != nil {
		e.tracer.RecordError(ctx, "simple_executor", err)
		return stepExecution, exception.NewBatchError("partition_worker", "worker step '"+stepExecution.StepName+"' execution failed", err, false, false)
	}

	logger.Infof("Partition Step Executor: Worker Step '%s' completed. Status: %s", stepExecution.StepName, stepExecution.Status)
	return stepExecution, nil
}

var _ port.StepExecutor = (*SimpleStepExecutor)(nil)
