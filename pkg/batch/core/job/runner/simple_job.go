// Package runner provides the job implementation that executes steps in order.
package runner

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

// ParametersValidator checks job parameters before a launch.
type ParametersValidator func(params model.JobParameters) error

// SimpleJob runs its steps one after another and stops at the first failing step.
// Final steps run after the main steps unless the execution was stopped.
type SimpleJob struct {
	id             string
	name           string
	steps          []port.Step
	finalSteps     []port.Step
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
	validator      ParametersValidator
}

var _ port.Job = (*SimpleJob)(nil)

// NewSimpleJob creates a new instance of SimpleJob.
func NewSimpleJob(
	name string,
	steps []port.Step,
	jobRepository repository.JobRepository,
	jobListeners []port.JobExecutionListener,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *SimpleJob {
	return &SimpleJob{
		id:             name,
		name:           name,
		steps:          steps,
		jobRepository:  jobRepository,
		jobListeners:   jobListeners,
		metricRecorder: metricRecorder,
		tracer:         tracer,
	}
}

// WithFinalStep appends a step that runs after the main steps even when one of them failed.
func (j *SimpleJob) WithFinalStep(step port.Step) *SimpleJob {
	j.finalSteps = append(j.finalSteps, step)
	return j
}

// WithValidator sets the parameters validator.
func (j *SimpleJob) WithValidator(v ParametersValidator) *SimpleJob {
	j.validator = v
	return j
}

// ID returns the job ID.
func (j *SimpleJob) ID() string {
	return j.id
}

// JobName returns the job name.
func (j *SimpleJob) JobName() string {
	return j.name
}

// ValidateParameters runs the configured validator, if any.
func (j *SimpleJob) ValidateParameters(params model.JobParameters) error {
	if j.validator == nil {
		return nil
	}
	return j.validator(params)
}

// Run executes the steps and leaves jobExecution in a finished status.
func (j *SimpleJob) Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	jobExecution.MarkAsStarted()
	j.update(ctx, jobExecution)
	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}

	runErr := j.runSteps(ctx, jobExecution, j.steps)
	stopped := runErr != nil && errors.Is(runErr, context.Canceled)
	if !stopped && len(j.finalSteps) > 0 {
		if err := j.runSteps(ctx, jobExecution, j.finalSteps); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	switch {
	case stopped:
		jobExecution.AddFailureException(runErr)
		jobExecution.MarkAsStopped()
	case runErr != nil:
		jobExecution.MarkAsFailed(runErr)
		j.tracer.RecordError(ctx, "job_runner", runErr)
	default:
		jobExecution.MarkAsCompleted()
	}

	finalCtx := context.WithoutCancel(ctx)
	j.update(finalCtx, jobExecution)
	for _, l := range j.jobListeners {
		l.AfterJob(finalCtx, jobExecution)
	}
	j.metricRecorder.RecordJobEnd(finalCtx, jobExecution)

	logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, Exit Status: %s",
		j.name, jobExecution.ID, jobExecution.CurrentStatus(), jobExecution.ExitStatus)
	return runErr
}

func (j *SimpleJob) runSteps(ctx context.Context, jobExecution *model.JobExecution, steps []port.Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			logger.Warnf("Context cancelled, interrupting Job '%s': %v", j.name, err)
			return err
		}
		if err := j.runStep(ctx, jobExecution, step); err != nil {
			return err
		}
	}
	return nil
}

func (j *SimpleJob) runStep(ctx context.Context, jobExecution *model.JobExecution, step port.Step) error {
	stepName := step.StepName()
	jobExecution.CurrentStepName = stepName

	stepExecution := model.NewStepExecution(model.NewID(), jobExecution, stepName)
	jobExecution.AddStepExecution(stepExecution)
	if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError(j.name, fmt.Sprintf("error saving StepExecution for '%s'", stepName), err, false, false)
	}

	err := step.Execute(port.GetContextWithStepExecution(ctx, stepExecution), jobExecution, stepExecution)
	if updateErr := j.jobRepository.UpdateStepExecution(context.WithoutCancel(ctx), stepExecution); updateErr != nil {
		logger.Errorf("Job '%s': failed to update StepExecution (ID: %s): %v", j.name, stepExecution.ID, updateErr)
	}
	if err != nil {
		logger.Errorf("Job '%s': step '%s' failed: %v", j.name, stepName, err)
		return err
	}
	logger.Infof("Job '%s': step '%s' completed. ExitStatus: %s", j.name, stepName, stepExecution.ExitStatus)
	return nil
}

func (j *SimpleJob) update(ctx context.Context, jobExecution *model.JobExecution) {
	if err := j.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("Job '%s': failed to update JobExecution (ID: %s): %v", j.name, jobExecution.ID, err)
	}
}
