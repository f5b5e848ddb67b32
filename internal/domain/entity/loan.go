// Package entity holds the persistent records and value types of the close-of-business run.
package entity

import "time"

// LoanStatus is the integer status code stored on a loan.
type LoanStatus int

const (
	LoanStatusSubmitted          LoanStatus = 100
	LoanStatusApproved           LoanStatus = 200
	LoanStatusActive             LoanStatus = 300
	LoanStatusTransferInProgress LoanStatus = 303
	LoanStatusTransferOnHold     LoanStatus = 304
	LoanStatusWithdrawn          LoanStatus = 400
	LoanStatusRejected           LoanStatus = 500
	LoanStatusClosedObligations  LoanStatus = 600
	LoanStatusClosedWrittenOff   LoanStatus = 601
	LoanStatusOverpaid           LoanStatus = 700
)

// EligibleStatuses are the statuses visited by close of business, in ascending code order.
var EligibleStatuses = []LoanStatus{
	LoanStatusSubmitted,
	LoanStatusApproved,
	LoanStatusActive,
	LoanStatusTransferInProgress,
	LoanStatusTransferOnHold,
}

// IsEligible reports whether a loan in status s takes part in close of business.
func (s LoanStatus) IsEligible() bool {
	for _, e := range EligibleStatuses {
		if s == e {
			return true
		}
	}
	return false
}

// Loan is a loan account. Only the columns the shipped business steps read or write are mapped.
type Loan struct {
	ID                     int64      `gorm:"column:id;primaryKey"`
	AccountNo              string     `gorm:"column:account_no"`
	Status                 LoanStatus `gorm:"column:status"`
	LastClosedBusinessDate *time.Time `gorm:"column:last_closed_business_date"`
	PrincipalOutstanding   float64    `gorm:"column:principal_outstanding"`
	NextDueDate            *time.Time `gorm:"column:next_due_date"`
	DaysInArrears          int        `gorm:"column:days_in_arrears"`
	Version                int64      `gorm:"column:version"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for Loan.
func (Loan) TableName() string {
	return "loans"
}
