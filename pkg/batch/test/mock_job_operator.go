package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	usecase "github.com/tigerroll/loancob/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

// MockJobOperator is a testify mock of usecase.JobOperator.
type MockJobOperator struct {
	mock.Mock
}

func (m *MockJobOperator) Stop(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)
	return args.Error(0)
}

func (m *MockJobOperator) Abandon(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)
	return args.Error(0)
}

func (m *MockJobOperator) GetRunningExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	args := m.Called(ctx, jobName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.JobExecution), args.Error(1)
}

var _ usecase.JobOperator = (*MockJobOperator)(nil)
