package test

import (
	"context"

	"github.com/google/uuid"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

// NewTestJobParameters creates JobParameters holding params.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	jp := model.NewJobParameters()
	for k, v := range params {
		jp.Put(k, v)
	}
	return jp
}

// NewTestStepExecution creates a StepExecution of a fresh JobExecution of jobName. The
// step's ExecutionContext is ec when given.
func NewTestStepExecution(jobName, stepName string, params model.JobParameters, ec model.ExecutionContext) *model.StepExecution {
	je := model.NewJobExecution(uuid.NewString(), jobName, params)
	se := model.NewStepExecution(uuid.NewString(), je, stepName)
	if ec != nil {
		se.ExecutionContext = ec
	}
	je.AddStepExecution(se)
	return se
}

// ContextWithStep returns ctx carrying se the way the job runner passes it to steps.
func ContextWithStep(ctx context.Context, se *model.StepExecution) context.Context {
	return port.GetContextWithStepExecution(ctx, se)
}
