package cob_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/businessstep"
	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/event"
	"github.com/tigerroll/loancob/internal/migrations"
	"github.com/tigerroll/loancob/internal/repository"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	batchtest "github.com/tigerroll/loancob/pkg/batch/test"
)

const (
	jobName = config.DefaultJobName
	jobType = config.DefaultJobName
)

var businessDate = time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

func datePtr(t time.Time) *time.Time { return &t }

// businessDateProvider closes businessDate.
func businessDateProvider() businessdate.Provider {
	return businessdate.Fixed(businessDate.AddDate(0, 0, 1))
}

func activeLoan(id int64, lastClosed *time.Time) *entity.Loan {
	return &entity.Loan{
		ID:                     id,
		AccountNo:              fmt.Sprintf("%09d", id),
		Status:                 entity.LoanStatusActive,
		LastClosedBusinessDate: lastClosed,
		PrincipalOutstanding:   1000,
	}
}

// rejectStep fails for the listed accounts.
type rejectStep struct {
	ids map[int64]bool
}

const rejectStepName = "REJECT_ACCOUNT"

func (s *rejectStep) Name() string { return rejectStepName }

func (s *rejectStep) Execute(ctx context.Context, loan *entity.Loan) (*entity.Loan, error) {
	if s.ids[loan.ID] {
		return nil, fmt.Errorf("account %d rejected", loan.ID)
	}
	return loan, nil
}

type fixture struct {
	db       *gorm.DB
	loans    repository.LoanRepository
	locks    repository.AccountLockRepository
	registry *businessstep.Registry
}

// newFixture opens a migrated database with the shipped steps configured for jobType. Accounts
// listed in reject fail the last step.
func newFixture(t *testing.T, reject ...int64) *fixture {
	t.Helper()
	db := batchtest.NewSQLiteDB(t, migrations.FS, "sqlite")
	rejected := map[int64]bool{}
	for _, id := range reject {
		rejected[id] = true
	}
	registry := businessstep.NewRegistry(repository.NewBusinessStepRepository(db),
		map[string][]config.BusinessStepConfig{
			jobType: {
				{Name: businessstep.CheckDueInstallments, Order: 1},
				{Name: businessstep.UpdateLoanArrearsAging, Order: 2},
				{Name: businessstep.CheckLoanRepaymentOverdue, Order: 3},
				{Name: rejectStepName, Order: 4},
			},
		},
		businessstep.NewDueInstallmentStep(event.LogPublisher{}),
		businessstep.NewArrearsAgingStep(),
		businessstep.NewRepaymentOverdueStep(event.LogPublisher{}),
		&rejectStep{ids: rejected},
	)
	return &fixture{
		db:       db,
		loans:    repository.NewLoanRepository(db),
		locks:    repository.NewAccountLockRepository(db),
		registry: registry,
	}
}

func (f *fixture) seed(t *testing.T, loans ...*entity.Loan) {
	t.Helper()
	require.NoError(t, f.loans.Insert(context.Background(), loans...))
}

func (f *fixture) allLocks(t *testing.T) map[int64]entity.AccountLock {
	t.Helper()
	var rows []entity.AccountLock
	require.NoError(t, f.db.Order("account_id").Find(&rows).Error)
	out := make(map[int64]entity.AccountLock, len(rows))
	for _, r := range rows {
		out[r.AccountID] = r
	}
	return out
}

func (f *fixture) loan(t *testing.T, id int64) *entity.Loan {
	t.Helper()
	l, err := f.loans.FindByID(context.Background(), id)
	require.NoError(t, err)
	return l
}

type mockLoanRepository struct {
	mock.Mock
}

func (m *mockLoanRepository) FindByID(ctx context.Context, id int64) (*entity.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Loan), args.Error(1)
}

func (m *mockLoanRepository) Save(ctx context.Context, loans ...*entity.Loan) error {
	return m.Called(ctx, loans).Error(0)
}

func (m *mockLoanRepository) Insert(ctx context.Context, loans ...*entity.Loan) error {
	return m.Called(ctx, loans).Error(0)
}

func (m *mockLoanRepository) FindEligibleIDsInRange(ctx context.Context, minID, maxID int64, businessDate time.Time, catchUp bool) ([]int64, error) {
	args := m.Called(ctx, minID, maxID, businessDate, catchUp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockLoanRepository) FindIDRanges(ctx context.Context, businessDate time.Time, catchUp bool, pageSize int) ([]entity.IdRangePartition, error) {
	args := m.Called(ctx, businessDate, catchUp, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.IdRangePartition), args.Error(1)
}

func (m *mockLoanRepository) FindOldestClosedBusinessDate(ctx context.Context) (*time.Time, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

type mockLockRepository struct {
	mock.Mock
}

func (m *mockLockRepository) FindAllByIDIn(ctx context.Context, accountIDs []int64) ([]entity.AccountLock, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AccountLock), args.Error(1)
}

func (m *mockLockRepository) FindAllByIDBetween(ctx context.Context, minID, maxID int64) ([]entity.AccountLock, error) {
	args := m.Called(ctx, minID, maxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AccountLock), args.Error(1)
}

func (m *mockLockRepository) UpsertSoftLocks(ctx context.Context, accountIDs []int64, businessDate time.Time) (int64, error) {
	args := m.Called(ctx, accountIDs, businessDate)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLockRepository) InsertLocks(ctx context.Context, accountIDs []int64, owner entity.LockOwner, businessDate time.Time) error {
	return m.Called(ctx, accountIDs, owner, businessDate).Error(0)
}

func (m *mockLockRepository) Upsert(ctx context.Context, lock *entity.AccountLock) error {
	return m.Called(ctx, lock).Error(0)
}

func (m *mockLockRepository) UpgradeLock(ctx context.Context, accountID int64, from, to entity.LockOwner) (bool, error) {
	args := m.Called(ctx, accountID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockLockRepository) DeleteByIDInAndOwner(ctx context.Context, accountIDs []int64, owner entity.LockOwner) (int64, error) {
	args := m.Called(ctx, accountIDs, owner)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLockRepository) RecordError(ctx context.Context, accountID int64, message, stacktrace string, details datatypes.JSON) error {
	return m.Called(ctx, accountID, message, stacktrace, details).Error(0)
}

func (m *mockLockRepository) FindWithErrors(ctx context.Context, businessDate *time.Time) ([]entity.AccountLock, error) {
	args := m.Called(ctx, businessDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AccountLock), args.Error(1)
}

var (
	_ repository.LoanRepository        = (*mockLoanRepository)(nil)
	_ repository.AccountLockRepository = (*mockLockRepository)(nil)
)
