package sql

import (
	"time"

	"gorm.io/datatypes"
)

// JobInstanceEntity is a schema model used for persistence.
type JobInstanceEntity struct {
	ID             string `gorm:"primaryKey"`
	JobName        string
	Parameters     datatypes.JSON
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

func (JobInstanceEntity) TableName() string {
	return "batch_job_instance"
}

// JobExecutionEntity is a schema model used for persistence.
type JobExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	JobInstanceID    string
	JobName          string
	Parameters       datatypes.JSON
	StartTime        time.Time
	EndTime          *time.Time
	Status           string
	ExitStatus       string
	Failures         datatypes.JSON
	ExecutionContext datatypes.JSON
	CurrentStepName  string
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is a schema model used for persistence.
type StepExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	StepName         string
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           string
	ExitStatus       string
	Failures         datatypes.JSON
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext datatypes.JSON
	Version          int
	LastUpdated      time.Time
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
