package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/loancob/internal/domain/entity"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

const upsertBatchSize = 500

// AccountLockRepository manages the account lock table shared by the batch job and inline
// close of business.
type AccountLockRepository interface {
	FindAllByIDIn(ctx context.Context, accountIDs []int64) ([]entity.AccountLock, error)
	FindAllByIDBetween(ctx context.Context, minID, maxID int64) ([]entity.AccountLock, error)
	// UpsertSoftLocks places BatchPartitioning locks on accountIDs. Existing rows are
	// refreshed only when they are already BatchPartitioning; other owners are left alone.
	UpsertSoftLocks(ctx context.Context, accountIDs []int64, businessDate time.Time) (int64, error)
	// InsertLocks places owner locks and fails if any of the accounts is already locked.
	InsertLocks(ctx context.Context, accountIDs []int64, owner entity.LockOwner, businessDate time.Time) error
	// Upsert writes one lock row, replacing any row of the same account.
	Upsert(ctx context.Context, lock *entity.AccountLock) error
	// UpgradeLock moves the lock of accountID from one owner to another. It reports false when
	// the lock is not held by from.
	UpgradeLock(ctx context.Context, accountID int64, from, to entity.LockOwner) (bool, error)
	DeleteByIDInAndOwner(ctx context.Context, accountIDs []int64, owner entity.LockOwner) (int64, error)
	// RecordError stores a failure on the lock row of accountID.
	RecordError(ctx context.Context, accountID int64, message, stacktrace string, details datatypes.JSON) error
	// FindWithErrors returns the locks carrying an error, optionally only those placed for
	// businessDate.
	FindWithErrors(ctx context.Context, businessDate *time.Time) ([]entity.AccountLock, error)
}

type gormAccountLockRepository struct {
	db *gorm.DB
}

// NewAccountLockRepository creates an AccountLockRepository on db.
func NewAccountLockRepository(db *gorm.DB) AccountLockRepository {
	return &gormAccountLockRepository{db: db}
}

func (r *gormAccountLockRepository) conn(ctx context.Context) *gorm.DB {
	return gormadapter.DBFromContext(ctx, r.db)
}

func (r *gormAccountLockRepository) FindAllByIDIn(ctx context.Context, accountIDs []int64) ([]entity.AccountLock, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	var locks []entity.AccountLock
	if err := r.conn(ctx).Where("account_id IN ?", accountIDs).Order("account_id").Find(&locks).Error; err != nil {
		return nil, exception.NewBatchError("AccountLockRepository.FindAllByIDIn", "failed to load account locks", err, false, false)
	}
	return locks, nil
}

func (r *gormAccountLockRepository) FindAllByIDBetween(ctx context.Context, minID, maxID int64) ([]entity.AccountLock, error) {
	var locks []entity.AccountLock
	if err := r.conn(ctx).Where("account_id BETWEEN ? AND ?", minID, maxID).Order("account_id").Find(&locks).Error; err != nil {
		return nil, exception.NewBatchError("AccountLockRepository.FindAllByIDBetween",
			fmt.Sprintf("failed to load account locks in [%d, %d]", minID, maxID), err, false, false)
	}
	return locks, nil
}

func newLocks(accountIDs []int64, owner entity.LockOwner, businessDate time.Time) []entity.AccountLock {
	now := time.Now().UTC()
	cobDate := entity.DateOnly(businessDate)
	locks := make([]entity.AccountLock, len(accountIDs))
	for i, id := range accountIDs {
		locks[i] = entity.AccountLock{
			AccountID:                   id,
			Owner:                       owner,
			LockPlacedOn:                now,
			LockPlacedOnCOBBusinessDate: &cobDate,
		}
	}
	return locks
}

func (r *gormAccountLockRepository) UpsertSoftLocks(ctx context.Context, accountIDs []int64, businessDate time.Time) (int64, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	locks := newLocks(accountIDs, entity.LockOwnerBatchPartitioning, businessDate)
	db := r.conn(ctx)
	result := db.Clauses(softLockConflict(db.Dialector.Name())).CreateInBatches(locks, upsertBatchSize)
	if result.Error != nil {
		return 0, exception.NewBatchError("AccountLockRepository.UpsertSoftLocks",
			fmt.Sprintf("failed to place %d soft locks", len(accountIDs)), result.Error, false, false)
	}
	return result.RowsAffected, nil
}

var softLockRefreshColumns = []string{"lock_placed_on", "lock_placed_on_cob_business_date"}

// softLockConflict refreshes a conflicting row only while it is still BatchPartitioning.
// MySQL's ON DUPLICATE KEY UPDATE takes no WHERE, so there each assignment carries the guard.
func softLockConflict(dialect string) clause.OnConflict {
	owner := string(entity.LockOwnerBatchPartitioning)
	if dialect == "mysql" {
		set := make(clause.Set, 0, len(softLockRefreshColumns))
		for _, col := range softLockRefreshColumns {
			set = append(set, clause.Assignment{
				Column: clause.Column{Name: col},
				Value:  gorm.Expr(fmt.Sprintf("IF(owner = ?, VALUES(%[1]s), %[1]s)", col), owner),
			})
		}
		return clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoUpdates: set}
	}
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns(softLockRefreshColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: entity.AccountLock{}.TableName(), Name: "owner"}, Value: owner},
		}},
	}
}

func (r *gormAccountLockRepository) InsertLocks(ctx context.Context, accountIDs []int64, owner entity.LockOwner, businessDate time.Time) error {
	if len(accountIDs) == 0 {
		return nil
	}
	locks := newLocks(accountIDs, owner, businessDate)
	if err := r.conn(ctx).CreateInBatches(locks, upsertBatchSize).Error; err != nil {
		return exception.NewBatchError("AccountLockRepository.InsertLocks",
			fmt.Sprintf("failed to place %s locks", owner), err, false, false)
	}
	return nil
}

func (r *gormAccountLockRepository) Upsert(ctx context.Context, lock *entity.AccountLock) error {
	err := r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"owner", "lock_placed_on", "lock_placed_on_cob_business_date", "error", "stacktrace", "error_details",
			}),
		}).
		Create(lock).Error
	if err != nil {
		return exception.NewBatchError("AccountLockRepository.Upsert",
			fmt.Sprintf("failed to write lock for account %d", lock.AccountID), err, false, false)
	}
	return nil
}

func (r *gormAccountLockRepository) UpgradeLock(ctx context.Context, accountID int64, from, to entity.LockOwner) (bool, error) {
	result := r.conn(ctx).Model(&entity.AccountLock{}).
		Where("account_id = ? AND owner = ?", accountID, from).
		Updates(map[string]interface{}{
			"owner":   to,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, exception.NewBatchError("AccountLockRepository.UpgradeLock",
			fmt.Sprintf("failed to move lock of account %d from %s to %s", accountID, from, to), result.Error, false, false)
	}
	return result.RowsAffected == 1, nil
}

func (r *gormAccountLockRepository) DeleteByIDInAndOwner(ctx context.Context, accountIDs []int64, owner entity.LockOwner) (int64, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	result := r.conn(ctx).Where("account_id IN ? AND owner = ?", accountIDs, owner).Delete(&entity.AccountLock{})
	if result.Error != nil {
		return 0, exception.NewBatchError("AccountLockRepository.DeleteByIDInAndOwner",
			fmt.Sprintf("failed to release %s locks", owner), result.Error, false, true)
	}
	return result.RowsAffected, nil
}

func (r *gormAccountLockRepository) RecordError(ctx context.Context, accountID int64, message, stacktrace string, details datatypes.JSON) error {
	result := r.conn(ctx).Model(&entity.AccountLock{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"error":         message,
			"stacktrace":    stacktrace,
			"error_details": details,
			"version":       gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return exception.NewBatchError("AccountLockRepository.RecordError",
			fmt.Sprintf("failed to record error on lock of account %d", accountID), result.Error, false, false)
	}
	if result.RowsAffected == 0 {
		return exception.NewBatchErrorf("AccountLockRepository.RecordError", "no lock found for account %d", accountID)
	}
	return nil
}

func (r *gormAccountLockRepository) FindWithErrors(ctx context.Context, businessDate *time.Time) ([]entity.AccountLock, error) {
	q := r.conn(ctx).Where("error IS NOT NULL AND error <> ''")
	if businessDate != nil {
		q = q.Where("lock_placed_on_cob_business_date = ?", entity.DateOnly(*businessDate))
	}
	var locks []entity.AccountLock
	if err := q.Order("account_id").Find(&locks).Error; err != nil {
		return nil, exception.NewBatchError("AccountLockRepository.FindWithErrors", "failed to load failed account locks", err, false, false)
	}
	return locks, nil
}
