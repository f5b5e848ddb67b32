package businessstep_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/event"
	"github.com/tigerroll/loancob/internal/migrations"
	"github.com/tigerroll/loancob/internal/repository"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	batchtest "github.com/tigerroll/loancob/pkg/batch/test"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e event.Event) error {
	return m.Called(ctx, e).Error(0)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRegistry_StepsFor(t *testing.T) {
	db := batchtest.NewSQLiteDB(t, migrations.FS, "sqlite")
	repo := repository.NewBusinessStepRepository(db)
	ctx := context.Background()

	// Rows of an unconfigured job type survive seeding.
	require.NoError(t, repo.Replace(ctx, "LEGACY", []entity.BusinessStepNameAndOrder{{Name: businessstep.UpdateLoanArrearsAging, Order: 1}}))

	reg := businessstep.NewRegistry(repo, map[string][]config.BusinessStepConfig{
		"LOAN_CLOSE_OF_BUSINESS": {
			{Name: businessstep.CheckLoanRepaymentOverdue, Order: 3},
			{Name: businessstep.CheckDueInstallments, Order: 1},
			{Name: businessstep.UpdateLoanArrearsAging, Order: 2},
		},
	}, businessstep.NewDueInstallmentStep(event.LogPublisher{}), businessstep.NewArrearsAgingStep(), businessstep.NewRepaymentOverdueStep(event.LogPublisher{}))

	steps, err := reg.StepsFor(ctx, "LOAN_CLOSE_OF_BUSINESS")
	require.NoError(t, err)
	assert.Equal(t, []entity.BusinessStepNameAndOrder{
		{Name: businessstep.CheckDueInstallments, Order: 1},
		{Name: businessstep.UpdateLoanArrearsAging, Order: 2},
		{Name: businessstep.CheckLoanRepaymentOverdue, Order: 3},
	}, steps)

	legacy, err := reg.StepsFor(ctx, "LEGACY")
	require.NoError(t, err)
	assert.Len(t, legacy, 1)

	none, err := reg.StepsFor(ctx, "UNKNOWN")
	require.NoError(t, err)
	assert.Empty(t, none)

	pipeline, err := reg.Pipeline(steps)
	require.NoError(t, err)
	require.Len(t, pipeline, 3)
	assert.Equal(t, businessstep.CheckDueInstallments, pipeline[0].Name())
	assert.Equal(t, businessstep.CheckLoanRepaymentOverdue, pipeline[2].Name())
}

func TestRegistry_UnknownStep(t *testing.T) {
	db := batchtest.NewSQLiteDB(t, migrations.FS, "sqlite")
	reg := businessstep.NewRegistry(repository.NewBusinessStepRepository(db), map[string][]config.BusinessStepConfig{
		"LOAN_CLOSE_OF_BUSINESS": {{Name: "NOT_A_STEP", Order: 1}},
	})

	_, err := reg.StepsFor(context.Background(), "LOAN_CLOSE_OF_BUSINESS")
	assert.ErrorContains(t, err, "NOT_A_STEP")

	_, err = reg.Pipeline([]entity.BusinessStepNameAndOrder{{Name: "NOT_A_STEP"}})
	assert.Error(t, err)
}

func TestArrearsAgingStep(t *testing.T) {
	ctx := businessstep.WithBusinessDate(context.Background(), date(2026, 5, 10))
	step := businessstep.NewArrearsAgingStep()

	due := date(2026, 5, 1)
	loan, err := step.Execute(ctx, &entity.Loan{ID: 1, NextDueDate: &due, DaysInArrears: 2})
	require.NoError(t, err)
	assert.Equal(t, 9, loan.DaysInArrears)

	future := date(2026, 6, 1)
	loan, err = step.Execute(ctx, &entity.Loan{ID: 2, NextDueDate: &future, DaysInArrears: 4})
	require.NoError(t, err)
	assert.Zero(t, loan.DaysInArrears)

	_, err = step.Execute(context.Background(), &entity.Loan{ID: 3})
	assert.ErrorContains(t, err, "no business date")
}

func TestDueInstallmentStep(t *testing.T) {
	ctx := businessstep.WithBusinessDate(context.Background(), date(2026, 5, 10))
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e event.Event) bool {
		return e.Type == event.TypeLoanInstallmentDue && e.AccountID == 7 && e.BusinessDate == "2026-05-10"
	})).Return(nil).Once()
	step := businessstep.NewDueInstallmentStep(pub)

	due := date(2026, 5, 10)
	_, err := step.Execute(ctx, &entity.Loan{ID: 7, NextDueDate: &due})
	require.NoError(t, err)

	other := date(2026, 5, 11)
	_, err = step.Execute(ctx, &entity.Loan{ID: 8, NextDueDate: &other})
	require.NoError(t, err)

	pub.AssertExpectations(t)
}

func TestRepaymentOverdueStep(t *testing.T) {
	ctx := businessstep.WithBusinessDate(context.Background(), date(2026, 5, 10))
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	step := businessstep.NewRepaymentOverdueStep(pub)

	loan, err := step.Execute(ctx, &entity.Loan{ID: 1})
	require.NoError(t, err)
	assert.NotNil(t, loan)

	_, err = step.Execute(ctx, &entity.Loan{ID: 2, DaysInArrears: 3})
	assert.ErrorContains(t, err, "broker down")
	pub.AssertExpectations(t)
}
