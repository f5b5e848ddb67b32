package cob

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/domain/entity"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/loancob/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// StepsProvider returns the ordered business steps of a job type.
type StepsProvider interface {
	StepsFor(ctx context.Context, jobType string) ([]entity.BusinessStepNameAndOrder, error)
}

// LoanCOBPartitioner splits the eligible loans into one work unit per id range.
//
// The business date, catch-up flag and job type are taken from the parameters of the running
// job execution; missing values fall back to the COB date and the partitioner's defaults.
type LoanCOBPartitioner struct {
	steps         StepsProvider
	ranges        *LoanIDRangeService
	operator      usecase.JobOperator
	dates         businessdate.Provider
	jobName       string
	jobType       string
	partitionSize int
}

// NewLoanCOBPartitioner creates a partitioner for jobName. jobType is used when the job
// parameters do not name one.
func NewLoanCOBPartitioner(
	steps StepsProvider,
	ranges *LoanIDRangeService,
	operator usecase.JobOperator,
	dates businessdate.Provider,
	jobName, jobType string,
	partitionSize int,
) *LoanCOBPartitioner {
	return &LoanCOBPartitioner{
		steps:         steps,
		ranges:        ranges,
		operator:      operator,
		dates:         dates,
		jobName:       jobName,
		jobType:       jobType,
		partitionSize: partitionSize,
	}
}

// Partition implements port.Partitioner.
func (p *LoanCOBPartitioner) Partition(ctx context.Context, gridSize int) (map[string]model.ExecutionContext, error) {
	units, err := p.PartitionWorkUnits(ctx, gridSize)
	if err != nil {
		return nil, err
	}
	contexts := make(map[string]model.ExecutionContext, len(units))
	for key, unit := range units {
		contexts[key] = NewPartitionContext(unit)
	}
	return contexts, nil
}

// PartitionWorkUnits returns the work units keyed "1".."N". gridSize only limits how many run
// at once and does not affect the split. A job type without business steps stops every
// running execution of the job and yields no units.
func (p *LoanCOBPartitioner) PartitionWorkUnits(ctx context.Context, gridSize int) (map[string]entity.PartitionWorkUnit, error) {
	rp := runParametersFrom(ctx)
	jobType := rp.jobType
	if jobType == "" {
		jobType = p.jobType
	}

	steps, err := p.steps.StepsFor(ctx, jobType)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		logger.Warnf("No business steps configured for job type '%s'; stopping running executions of '%s'.", jobType, p.jobName)
		p.stopRunningExecutions(ctx)
		return map[string]entity.PartitionWorkUnit{}, nil
	}

	var businessDate time.Time
	if rp.businessDate != nil {
		businessDate = *rp.businessDate
	} else if businessDate, err = p.dates.COBDate(ctx); err != nil {
		return nil, err
	}

	jobRunnerID := rp.executionID
	if jobRunnerID == "" {
		jobRunnerID = uuid.NewString()
	}
	ranges, err := p.ranges.ComputeRanges(ctx, jobRunnerID, businessDate, rp.catchUp, p.partitionSize)
	if err != nil {
		return nil, err
	}

	units := make(map[string]entity.PartitionWorkUnit, len(ranges))
	for i, r := range ranges {
		units[strconv.Itoa(i+1)] = entity.PartitionWorkUnit{
			Range:         r,
			BusinessSteps: steps,
			BusinessDate:  businessDate,
			CatchUp:       rp.catchUp,
		}
	}
	logger.Infof("Partitioned job type '%s' for %s into %d work units (grid size %d).",
		jobType, businessDate.Format(dateLayout), len(units), gridSize)
	return units, nil
}

func (p *LoanCOBPartitioner) stopRunningExecutions(ctx context.Context) {
	executions, err := p.operator.GetRunningExecutions(ctx, p.jobName)
	if err != nil {
		logger.Errorf("Failed to list running executions of '%s': %v", p.jobName, err)
		return
	}
	stopped := make(map[string]struct{}, len(executions))
	for _, e := range executions {
		if _, ok := stopped[e.ID]; ok {
			continue
		}
		stopped[e.ID] = struct{}{}
		if err := p.operator.Stop(ctx, e.ID); err != nil {
			logger.Errorf("Failed to stop execution %s of '%s': %v", e.ID, p.jobName, err)
		}
	}
}

var _ port.Partitioner = (*LoanCOBPartitioner)(nil)
