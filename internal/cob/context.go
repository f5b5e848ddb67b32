package cob

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/loancob/internal/domain/entity"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

// Job parameter names.
const (
	ParamBusinessDate = "businessDate"
	ParamCatchUp      = "catchUp"
	ParamJobType      = "jobType"
)

// Keys of the partition ExecutionContext shared by the lock, reader and writer steps.
const (
	workUnitKey    = "loancob.workUnit"
	excludedIDsKey = "loancob.excludedIds"
)

const dateLayout = "2006-01-02"

// NewJobParameters builds the parameters identifying one COB run.
func NewJobParameters(jobType string, businessDate time.Time, catchUp bool) model.JobParameters {
	params := model.NewJobParameters()
	params.Put(ParamJobType, jobType)
	params.Put(ParamBusinessDate, entity.DateOnly(businessDate).Format(dateLayout))
	params.Put(ParamCatchUp, catchUp)
	return params
}

// ValidateJobParameters rejects a malformed business date.
func ValidateJobParameters(params model.JobParameters) error {
	if s, ok := params.GetString(ParamBusinessDate); ok && s != "" {
		if _, err := time.Parse(dateLayout, s); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", ParamBusinessDate, s, err)
		}
	}
	return nil
}

// runParameters are the job parameters the partitioner reads from the running execution.
type runParameters struct {
	jobType      string
	businessDate *time.Time
	catchUp      bool
	executionID  string
}

func runParametersFrom(ctx context.Context) runParameters {
	var rp runParameters
	se := port.GetStepExecutionFromContext(ctx)
	if se == nil || se.JobExecution == nil {
		return rp
	}
	params := se.JobExecution.Parameters
	rp.executionID = se.JobExecution.ID
	rp.jobType, _ = params.GetString(ParamJobType)
	rp.catchUp, _ = params.GetBool(ParamCatchUp)
	if s, ok := params.GetString(ParamBusinessDate); ok {
		if d, err := time.Parse(dateLayout, s); err == nil {
			d = entity.DateOnly(d)
			rp.businessDate = &d
		}
	}
	return rp
}

// NewPartitionContext stores unit and an empty excluded id set in a new ExecutionContext.
func NewPartitionContext(unit entity.PartitionWorkUnit) model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(workUnitKey, unit)
	ec.Put(excludedIDsKey, entity.NewExcludedIDSet())
	return ec
}

// WorkUnitFrom returns the work unit stored by NewPartitionContext.
func WorkUnitFrom(ec model.ExecutionContext) (entity.PartitionWorkUnit, error) {
	v, ok := ec.Get(workUnitKey)
	if !ok {
		return entity.PartitionWorkUnit{}, fmt.Errorf("no partition work unit in execution context")
	}
	unit, ok := v.(entity.PartitionWorkUnit)
	if !ok {
		return entity.PartitionWorkUnit{}, fmt.Errorf("unexpected work unit type %T", v)
	}
	return unit, nil
}

// ExcludedIDsFrom returns the excluded id set of the partition.
func ExcludedIDsFrom(ec model.ExecutionContext) (*entity.ExcludedIDSet, error) {
	v, ok := ec.Get(excludedIDsKey)
	if !ok {
		return nil, fmt.Errorf("no excluded id set in execution context")
	}
	set, ok := v.(*entity.ExcludedIDSet)
	if !ok {
		return nil, fmt.Errorf("unexpected excluded id set type %T", v)
	}
	return set, nil
}
