package entity

import "time"

// BusinessDateType distinguishes the rows of the business_dates table.
type BusinessDateType string

const (
	BusinessDateTypeBusiness BusinessDateType = "BUSINESS_DATE"
	BusinessDateTypeCOB      BusinessDateType = "COB_DATE"
)

// BusinessDate is one row of business_dates.
type BusinessDate struct {
	Type    BusinessDateType `gorm:"column:type;primaryKey"`
	Date    time.Time        `gorm:"column:date"`
	Version int64            `gorm:"column:version"`
}

// TableName specifies the table name for BusinessDate.
func (BusinessDate) TableName() string {
	return "business_dates"
}

// BatchBusinessStep configures one business step of a job type.
type BatchBusinessStep struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	JobType   string `gorm:"column:job_type"`
	StepName  string `gorm:"column:step_name"`
	StepOrder int64  `gorm:"column:step_order"`
}

// TableName specifies the table name for BatchBusinessStep.
func (BatchBusinessStep) TableName() string {
	return "batch_business_steps"
}

// FailureReportRow is one account left locked with an error, as exported to Parquet.
type FailureReportRow struct {
	AccountID    int64  `parquet:"name=account_id, type=INT64"`
	Owner        string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
	BusinessDate int32  `parquet:"name=business_date, type=INT32, convertedtype=DATE"`
	LockPlacedOn int64  `parquet:"name=lock_placed_on, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Error        string `parquet:"name=error, type=BYTE_ARRAY, convertedtype=UTF8"`
	ErrorDetails string `parquet:"name=error_details, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
