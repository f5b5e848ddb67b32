package entity

import (
	"time"

	"gorm.io/datatypes"
)

// LockOwner identifies who holds an account lock.
type LockOwner string

const (
	// LockOwnerBatchPartitioning is placed by lock acquisition before a partition is read.
	LockOwnerBatchPartitioning LockOwner = "LOAN_COB_PARTITIONING"
	// LockOwnerBatchChunkProcessing is held while the account is inside a chunk. It stays on failure.
	LockOwnerBatchChunkProcessing LockOwner = "LOAN_COB_CHUNK_PROCESSING"
	// LockOwnerInlineProcessing is held by an inline close of business.
	LockOwnerInlineProcessing LockOwner = "LOAN_INLINE_COB_PROCESSING"
)

// IsBatch reports whether the owner belongs to the batch job.
func (o LockOwner) IsBatch() bool {
	return o == LockOwnerBatchPartitioning || o == LockOwnerBatchChunkProcessing
}

// AccountLock is one row of the account lock table. account_id is unique.
type AccountLock struct {
	ID                          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID                   int64          `gorm:"column:account_id;uniqueIndex"`
	Owner                       LockOwner      `gorm:"column:owner"`
	LockPlacedOn                time.Time      `gorm:"column:lock_placed_on"`
	LockPlacedOnCOBBusinessDate *time.Time     `gorm:"column:lock_placed_on_cob_business_date"`
	Error                       string         `gorm:"column:error"`
	Stacktrace                  string         `gorm:"column:stacktrace"`
	ErrorDetails                datatypes.JSON `gorm:"column:error_details"`
	Version                     int64          `gorm:"column:version"`
}

// TableName specifies the table name for AccountLock.
func (AccountLock) TableName() string {
	return "account_locks"
}

// HasError reports whether a failure was recorded on the lock.
func (l AccountLock) HasError() bool {
	return l.Error != ""
}

// LockErrorDetails is stored as JSON in error_details.
type LockErrorDetails struct {
	Phase    string   `json:"phase"`
	Step     string   `json:"step,omitempty"`
	Causes   []string `json:"causes,omitempty"`
	JobName  string   `json:"jobName,omitempty"`
	Recorded string   `json:"recorded"`
}
