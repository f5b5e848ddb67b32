// Package flow provides a step that runs sub-steps in sequence over one shared ExecutionContext.
package flow

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// FlowStep runs its sub-steps one after another and stops at the first failure.
// Each sub-step gets its own StepExecution named "<flow>.<sub-step>", and all of them share
// the flow's ExecutionContext, so a sub-step sees what the previous one stored.
// Counts are summed into the flow execution.
type FlowStep struct {
	name          string
	steps         []port.Step
	jobRepository repository.JobRepository
	recorder      metrics.MetricRecorder
	tracer        metrics.Tracer
}

// NewFlowStep creates a FlowStep.
func NewFlowStep(name string, jobRepository repository.JobRepository, steps ...port.Step) *FlowStep {
	return &FlowStep{
		name:          name,
		steps:         steps,
		jobRepository: jobRepository,
		recorder:      metrics.NewNoOpMetricRecorder(),
		tracer:        metrics.NewNoOpTracer(),
	}
}

// ID returns the step ID.
func (f *FlowStep) ID() string { return f.name }

// StepName returns the step name.
func (f *FlowStep) StepName() string { return f.name }

// SetMetricRecorder implements port.Step and propagates to the sub-steps.
func (f *FlowStep) SetMetricRecorder(recorder metrics.MetricRecorder) {
	f.recorder = recorder
	for _, s := range f.steps {
		s.SetMetricRecorder(recorder)
	}
}

// SetTracer implements port.Step and propagates to the sub-steps.
func (f *FlowStep) SetTracer(tracer metrics.Tracer) {
	f.tracer = tracer
	for _, s := range f.steps {
		s.SetTracer(tracer)
	}
}

// Execute runs the sub-steps.
func (f *FlowStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	stepExecution.MarkAsStarted()

	err := f.run(ctx, jobExecution, stepExecution)
	switch {
	case err == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(err, context.Canceled):
		stepExecution.AddFailureException(err)
		stepExecution.MarkAsStopped()
	default:
		stepExecution.MarkAsFailed(err)
	}
	return err
}

func (f *FlowStep) run(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	for _, step := range f.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub := model.NewStepExecution(model.NewID(), jobExecution, fmt.Sprintf("%s.%s", stepExecution.StepName, step.StepName()))
		sub.ExecutionContext = stepExecution.ExecutionContext
		if err := f.jobRepository.SaveStepExecution(ctx, sub); err != nil {
			return exception.NewBatchError(f.name, fmt.Sprintf("failed to save StepExecution for '%s'", sub.StepName), err, false, false)
		}

		err := step.Execute(port.GetContextWithStepExecution(ctx, sub), jobExecution, sub)
		stepExecution.AddCounts(sub.Counts())
		if updateErr := f.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), sub); updateErr != nil {
			logger.Errorf("FlowStep '%s': failed to update StepExecution '%s': %v", f.name, sub.ID, updateErr)
		}
		if err != nil {
			for _, msg := range sub.Failures {
				stepExecution.AddFailureException(errors.New(msg))
			}
			return err
		}
		logger.Debugf("FlowStep '%s': sub-step '%s' finished with %s.", f.name, sub.StepName, sub.ExitStatus)
	}
	return nil
}

var _ port.Step = (*FlowStep)(nil)
