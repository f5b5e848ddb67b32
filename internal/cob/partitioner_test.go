package cob_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/cob"
	"github.com/tigerroll/loancob/internal/domain/entity"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	batchtest "github.com/tigerroll/loancob/pkg/batch/test"
)

func partitionContext(catchUp bool) context.Context {
	se := batchtest.NewTestStepExecution(jobName, cob.StepPartitioning, cob.NewJobParameters(jobType, businessDate, catchUp), nil)
	return batchtest.ContextWithStep(context.Background(), se)
}

func newPartitioner(f *fixture, operator *batchtest.MockJobOperator, partitionSize int) *cob.LoanCOBPartitioner {
	return cob.NewLoanCOBPartitioner(f.registry, cob.NewLoanIDRangeService(f.loans), operator,
		businessDateProvider(), jobName, jobType, partitionSize)
}

func TestLoanCOBPartitioner_SameStepsOnEveryPartition(t *testing.T) {
	f := newFixture(t)
	prior := datePtr(businessDate.AddDate(0, 0, -1))
	for id := int64(1); id <= 5; id++ {
		f.seed(t, activeLoan(id, prior))
	}
	operator := new(batchtest.MockJobOperator)

	units, err := newPartitioner(f, operator, 2).PartitionWorkUnits(partitionContext(false), 4)
	require.NoError(t, err)
	require.Len(t, units, 3)

	expected, err := f.registry.StepsFor(context.Background(), jobType)
	require.NoError(t, err)
	for _, key := range []string{"1", "2", "3"} {
		unit, ok := units[key]
		require.True(t, ok, "missing partition %s", key)
		assert.Equal(t, expected, unit.BusinessSteps)
		assert.True(t, businessDate.Equal(unit.BusinessDate))
		assert.False(t, unit.CatchUp)
	}
	assert.Equal(t, entity.IdRangePartition{MinID: 5, MaxID: 5, SequenceNumber: 3, Count: 1}, units["3"].Range)
	operator.AssertNotCalled(t, "Stop", mock.Anything, mock.Anything)
}

func TestLoanCOBPartitioner_CatchUpNarrowsEligibility(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		activeLoan(1, datePtr(businessDate.AddDate(0, 0, -1))),
		activeLoan(2, nil),
		activeLoan(3, datePtr(businessDate.AddDate(0, 0, -3))),
	)
	p := newPartitioner(f, new(batchtest.MockJobOperator), 10)

	normal, err := p.PartitionWorkUnits(partitionContext(false), 1)
	require.NoError(t, err)
	require.Len(t, normal, 1)
	assert.Equal(t, entity.IdRangePartition{MinID: 1, MaxID: 2, SequenceNumber: 1, Count: 2}, normal["1"].Range)

	catchUp, err := p.PartitionWorkUnits(partitionContext(true), 1)
	require.NoError(t, err)
	require.Len(t, catchUp, 1)
	assert.Equal(t, entity.IdRangePartition{MinID: 1, MaxID: 1, SequenceNumber: 1, Count: 1}, catchUp["1"].Range)
	assert.True(t, catchUp["1"].CatchUp)
}

func TestLoanCOBPartitioner_NothingEligibleYieldsEmptyUnit(t *testing.T) {
	f := newFixture(t)
	contexts, err := newPartitioner(f, new(batchtest.MockJobOperator), 10).Partition(partitionContext(false), 1)
	require.NoError(t, err)
	require.Len(t, contexts, 1)

	unit, err := cob.WorkUnitFrom(contexts["1"])
	require.NoError(t, err)
	assert.True(t, unit.IsEmpty())
	excluded, err := cob.ExcludedIDsFrom(contexts["1"])
	require.NoError(t, err)
	assert.Zero(t, excluded.Len())
}

func TestLoanCOBPartitioner_NoStepsStopsRunningExecutions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, activeLoan(1, nil))

	running := model.NewJobExecution("instance-1", jobName, model.NewJobParameters())
	operator := new(batchtest.MockJobOperator)
	operator.On("GetRunningExecutions", mock.Anything, jobName).Return([]*model.JobExecution{running, running}, nil)
	operator.On("Stop", mock.Anything, running.ID).Return(nil).Once()

	p := cob.NewLoanCOBPartitioner(f.registry, cob.NewLoanIDRangeService(f.loans), operator,
		businessdate.Fixed(businessDate), jobName, "UNCONFIGURED", 10)
	se := batchtest.NewTestStepExecution(jobName, cob.StepPartitioning, cob.NewJobParameters("UNCONFIGURED", businessDate, false), nil)

	units, err := p.PartitionWorkUnits(batchtest.ContextWithStep(context.Background(), se), 1)
	require.NoError(t, err)
	assert.Empty(t, units)
	operator.AssertExpectations(t)
	operator.AssertNumberOfCalls(t, "Stop", 1)
}

func TestLoanCOBPartitioner_FallsBackToCOBDate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, activeLoan(1, datePtr(businessDate.AddDate(0, 0, -1))))
	p := newPartitioner(f, new(batchtest.MockJobOperator), 10)

	units, err := p.PartitionWorkUnits(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.True(t, businessDate.Equal(units["1"].BusinessDate))
	assert.Equal(t, int64(1), units["1"].Range.Count)
}

func TestLoanIDRangeService_PropagatesErrors(t *testing.T) {
	loans := new(mockLoanRepository)
	loans.On("FindIDRanges", mock.Anything, businessDate, false, 5).Return(nil, assert.AnError)

	_, err := cob.NewLoanIDRangeService(loans).ComputeRanges(context.Background(), "runner", businessDate, false, 5)
	assert.ErrorIs(t, err, assert.AnError)
	loans.AssertExpectations(t)
}

var _ cob.StepsProvider = (*businessstep.Registry)(nil)
