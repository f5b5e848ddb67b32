// Package repository implements the persistence of loans, account locks, business steps and
// business dates on GORM. Every method joins the transaction carried by ctx, if any.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/loancob/internal/domain/entity"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

// ErrLoanNotFound is returned by FindByID when the loan does not exist.
var ErrLoanNotFound = errors.New("loan not found")

// LoanRepository reads and saves loans.
type LoanRepository interface {
	// FindByID loads one loan. A missing loan yields an error wrapping ErrLoanNotFound.
	FindByID(ctx context.Context, id int64) (*entity.Loan, error)
	// Save updates the loans, bumping their version.
	Save(ctx context.Context, loans ...*entity.Loan) error
	// Insert creates new loans.
	Insert(ctx context.Context, loans ...*entity.Loan) error
	// FindEligibleIDsInRange returns the ids in [minID, maxID] that close of business must visit
	// for businessDate, in ascending order.
	FindEligibleIDsInRange(ctx context.Context, minID, maxID int64, businessDate time.Time, catchUp bool) ([]int64, error)
	// FindIDRanges pages the eligible ids by pageSize and returns min, max and count per page.
	FindIDRanges(ctx context.Context, businessDate time.Time, catchUp bool, pageSize int) ([]entity.IdRangePartition, error)
	// FindOldestClosedBusinessDate returns the earliest last closed business date among eligible
	// loans, or nil when none was ever closed.
	FindOldestClosedBusinessDate(ctx context.Context) (*time.Time, error)
}

type gormLoanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a LoanRepository on db.
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &gormLoanRepository{db: db}
}

func (r *gormLoanRepository) conn(ctx context.Context) *gorm.DB {
	return gormadapter.DBFromContext(ctx, r.db)
}

func (r *gormLoanRepository) FindByID(ctx context.Context, id int64) (*entity.Loan, error) {
	var loan entity.Loan
	err := r.conn(ctx).Where("id = ?", id).Take(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrLoanNotFound, id)
	}
	if err != nil {
		return nil, exception.NewBatchError("LoanRepository.FindByID", fmt.Sprintf("failed to load loan %d", id), err, false, false)
	}
	return &loan, nil
}

func (r *gormLoanRepository) Save(ctx context.Context, loans ...*entity.Loan) error {
	const op = "LoanRepository.Save"
	db := r.conn(ctx)
	now := time.Now().UTC()
	for _, loan := range loans {
		loan.Version++
		loan.UpdatedAt = now
		if err := db.Save(loan).Error; err != nil {
			return exception.NewBatchError(op, fmt.Sprintf("failed to save loan %d", loan.ID), err, false, true)
		}
	}
	return nil
}

func (r *gormLoanRepository) Insert(ctx context.Context, loans ...*entity.Loan) error {
	if len(loans) == 0 {
		return nil
	}
	if err := r.conn(ctx).Create(loans).Error; err != nil {
		return exception.NewBatchError("LoanRepository.Insert", "failed to insert loans", err, false, false)
	}
	return nil
}

// eligible restricts q to loans close of business visits for businessDate. Normal mode also
// picks up loans that were never closed; catch-up mode only continues loans closed on the
// prior day.
func eligible(q *gorm.DB, businessDate time.Time, catchUp bool) *gorm.DB {
	prior := entity.DateOnly(businessDate).AddDate(0, 0, -1)
	q = q.Where("status IN ?", eligibleStatusCodes())
	if catchUp {
		return q.Where("last_closed_business_date = ?", prior)
	}
	return q.Where("(last_closed_business_date = ? OR last_closed_business_date IS NULL)", prior)
}

func eligibleStatusCodes() []int {
	codes := make([]int, len(entity.EligibleStatuses))
	for i, s := range entity.EligibleStatuses {
		codes[i] = int(s)
	}
	return codes
}

func (r *gormLoanRepository) FindEligibleIDsInRange(ctx context.Context, minID, maxID int64, businessDate time.Time, catchUp bool) ([]int64, error) {
	var ids []int64
	q := eligible(r.conn(ctx).Model(&entity.Loan{}), businessDate, catchUp).
		Where("id BETWEEN ? AND ?", minID, maxID).
		Order("id")
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, exception.NewBatchError("LoanRepository.FindEligibleIDsInRange",
			fmt.Sprintf("failed to load eligible ids in [%d, %d]", minID, maxID), err, false, false)
	}
	return ids, nil
}

// FindIDRanges runs one aggregate query: the eligible ids are numbered in id order, divided
// into pages of pageSize and grouped per page.
func (r *gormLoanRepository) FindIDRanges(ctx context.Context, businessDate time.Time, catchUp bool, pageSize int) ([]entity.IdRangePartition, error) {
	const op = "LoanRepository.FindIDRanges"
	if pageSize <= 0 {
		return nil, exception.NewBatchErrorf(op, "page size must be positive, got %d", pageSize)
	}
	db := r.conn(ctx)

	div := "/"
	if db.Dialector.Name() == "mysql" {
		div = "DIV"
	}
	inner := eligible(db.Model(&entity.Loan{}), businessDate, catchUp).
		Select(fmt.Sprintf("id, (ROW_NUMBER() OVER (ORDER BY id) - 1) %s %d AS page", div, pageSize))

	var ranges []entity.IdRangePartition
	err := db.Table("(?) AS numbered", inner).
		Select("MIN(id) AS min_id, MAX(id) AS max_id, page + 1 AS sequence_number, COUNT(*) AS cnt").
		Group("page").
		Order("page").
		Scan(&ranges).Error
	if err != nil {
		return nil, exception.NewBatchError(op, "failed to compute loan id ranges", err, false, false)
	}
	return ranges, nil
}

func (r *gormLoanRepository) FindOldestClosedBusinessDate(ctx context.Context) (*time.Time, error) {
	var loans []entity.Loan
	err := r.conn(ctx).
		Select("last_closed_business_date").
		Where("status IN ?", eligibleStatusCodes()).
		Where("last_closed_business_date IS NOT NULL").
		Order("last_closed_business_date").
		Limit(1).
		Find(&loans).Error
	if err != nil {
		return nil, exception.NewBatchError("LoanRepository.FindOldestClosedBusinessDate", "failed to find the oldest closed business date", err, false, false)
	}
	if len(loans) == 0 || loans[0].LastClosedBusinessDate == nil {
		return nil, nil
	}
	d := entity.DateOnly(*loans[0].LastClosedBusinessDate)
	return &d, nil
}
