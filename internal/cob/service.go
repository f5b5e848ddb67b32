package cob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/tigerroll/loancob/internal/businessdate"
	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	usecase "github.com/tigerroll/loancob/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// Service starts close-of-business runs through the job launcher.
type Service struct {
	launcher usecase.JobLauncher
	dates    businessdate.Provider
	jobName  string
}

func NewService(launcher usecase.JobLauncher, dates businessdate.Provider, jobName string) *Service {
	return &Service{launcher: launcher, dates: dates, jobName: jobName}
}

// RunCOB closes the current COB date and waits for the run to finish. The returned execution
// carries the final status; an error means the run could not be started or was interrupted.
func (s *Service) RunCOB(ctx context.Context, jobType string, isCatchUp bool) (*model.JobExecution, error) {
	date, err := s.dates.COBDate(ctx)
	if err != nil {
		return nil, err
	}
	return s.RunCOBForDate(ctx, jobType, date, isCatchUp)
}

// RunCOBForDate closes businessDate.
func (s *Service) RunCOBForDate(ctx context.Context, jobType string, businessDate time.Time, isCatchUp bool) (*model.JobExecution, error) {
	if jobType == "" {
		jobType = s.jobName
	}
	return s.launcher.Run(ctx, s.jobName, NewJobParameters(jobType, businessDate, isCatchUp))
}

// ErrCatchUpRunning is returned when a catch-up is requested while one is in progress.
var ErrCatchUpRunning = errors.New("catch-up is already running")

// CatchUpService brings loans that fell behind up to the COB date, one business date at a time.
type CatchUpService struct {
	cob     *Service
	loans   repository.LoanRepository
	dates   businessdate.Provider
	running atomic.Bool
}

func NewCatchUpService(cob *Service, loans repository.LoanRepository, dates businessdate.Provider) *CatchUpService {
	return &CatchUpService{cob: cob, loans: loans, dates: dates}
}

// IsRunning reports whether a catch-up is in progress.
func (c *CatchUpService) IsRunning() bool {
	return c.running.Load()
}

// Run closes every date after the oldest closed business date up to the COB date in catch-up
// mode, then finishes with a normal run of the COB date. It stops at the first run that does
// not complete.
func (c *CatchUpService) Run(ctx context.Context, jobType string) ([]*model.JobExecution, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrCatchUpRunning
	}
	defer c.running.Store(false)

	cobDate, err := c.dates.COBDate(ctx)
	if err != nil {
		return nil, err
	}
	oldest, err := c.loans.FindOldestClosedBusinessDate(ctx)
	if err != nil {
		return nil, err
	}

	var executions []*model.JobExecution
	run := func(date time.Time, catchUp bool) error {
		execution, err := c.cob.RunCOBForDate(ctx, jobType, date, catchUp)
		if execution != nil {
			executions = append(executions, execution)
		}
		if err != nil {
			return err
		}
		if status := execution.CurrentStatus(); status != model.BatchStatusCompleted {
			return fmt.Errorf("close of business for %s ended with status %s", date.Format(dateLayout), status)
		}
		return nil
	}

	if oldest != nil {
		for date := oldest.AddDate(0, 0, 1); !date.After(cobDate); date = date.AddDate(0, 0, 1) {
			logger.Infof("Catch-up: closing business date %s.", date.Format(dateLayout))
			if err := run(date, true); err != nil {
				return executions, err
			}
		}
	}
	if err := run(cobDate, false); err != nil {
		return executions, err
	}
	return executions, nil
}

// LockService places locks on behalf of operators.
type LockService struct {
	locks repository.AccountLockRepository
	dates businessdate.Provider
}

func NewLockService(locks repository.AccountLockRepository, dates businessdate.Provider) *LockService {
	return &LockService{locks: locks, dates: dates}
}

// PlaceSoftLock puts a lock held by owner on the account, replacing any existing lock. A
// non-empty errMsg is recorded as the lock's error.
func (s *LockService) PlaceSoftLock(ctx context.Context, accountID int64, owner entity.LockOwner, errMsg string) error {
	cobDate, err := s.dates.COBDate(ctx)
	if err != nil {
		return err
	}
	return s.locks.Upsert(ctx, &entity.AccountLock{
		AccountID:                   accountID,
		Owner:                       owner,
		LockPlacedOn:                time.Now().UTC(),
		LockPlacedOnCOBBusinessDate: &cobDate,
		Error:                       errMsg,
	})
}
