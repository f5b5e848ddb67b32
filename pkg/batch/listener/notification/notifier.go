// Package notification announces finished job executions.
package notification

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// Notifier sends a job completion notice somewhere.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, summary JobSummary) error
}

// JobSummary is the notice sent when a job execution finishes.
type JobSummary struct {
	JobName     string        `json:"job_name"`
	ExecutionID string        `json:"execution_id"`
	Parameters  string        `json:"parameters"`
	Status      string        `json:"status"`
	ExitStatus  string        `json:"exit_status"`
	Duration    time.Duration `json:"duration"`
	Failures    []string      `json:"failures,omitempty"`
}

// Summarize builds a JobSummary from a finished execution.
func Summarize(execution *model.JobExecution) JobSummary {
	duration := time.Duration(0)
	if execution.EndTime != nil {
		duration = execution.EndTime.Sub(execution.StartTime)
	}
	return JobSummary{
		JobName:     execution.JobName,
		ExecutionID: execution.ID,
		Parameters:  execution.Parameters.String(),
		Status:      string(execution.CurrentStatus()),
		ExitStatus:  string(execution.ExitStatus),
		Duration:    duration,
		Failures:    execution.FailureMessages(),
	}
}

// LogNotifier writes the notice to the logger.
type LogNotifier struct{}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyJobCompletion logs the summary.
func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, s JobSummary) error {
	message := fmt.Sprintf(
		"Job Notification: Job '%s' (ID: %s) finished with Status: %s, ExitStatus: %s. Duration: %s, Failures: %d",
		s.JobName, s.ExecutionID, s.Status, s.ExitStatus, s.Duration, len(s.Failures),
	)
	if s.Status == string(model.BatchStatusCompleted) {
		logger.Infof("%s", message)
	} else {
		logger.Warnf("%s", message)
	}
	return nil
}

var _ Notifier = (*LogNotifier)(nil)

// NotificationListener is a JobExecutionListener that hands the summary to a Notifier after each job.
type NotificationListener struct {
	notifier Notifier
}

// NewNotificationListener creates a new instance of NotificationListener.
func NewNotificationListener(notifier Notifier) *NotificationListener {
	return &NotificationListener{notifier: notifier}
}

// BeforeJob does nothing.
func (l *NotificationListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {}

// AfterJob sends the summary. A notifier failure is logged and never fails the job.
func (l *NotificationListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if err := l.notifier.NotifyJobCompletion(ctx, Summarize(jobExecution)); err != nil {
		logger.Warnf("Notification: failed to send completion notice for job '%s' (ID: %s): %v", jobExecution.JobName, jobExecution.ID, err)
	}
}

var _ port.JobExecutionListener = (*NotificationListener)(nil)
