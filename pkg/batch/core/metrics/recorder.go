// Package metrics defines the recorder and tracer abstractions used by the batch engine.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording metrics related to batch execution.
//
// This facilitates integration with different metrics backends (e.g., Prometheus, OpenTelemetry Metrics).
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd records the end of a StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records the successful reading of an item.
	RecordItemRead(ctx context.Context, stepName string)
	// RecordItemProcess records the successful processing of an item.
	RecordItemProcess(ctx context.Context, stepName string)
	// RecordItemWrite records the successful writing of items.
	RecordItemWrite(ctx context.Context, stepName string, count int)
	// RecordItemSkip records the skipping of an item.
	//
	// reason: A string indicating the reason for skipping (e.g., error type).
	RecordItemSkip(ctx context.Context, stepName string, reason string)
	// RecordItemRetry records the retry of a chunk write.
	RecordItemRetry(ctx context.Context, stepName string, reason string)
	// RecordChunkCommit records the commitment of a chunk.
	RecordChunkCommit(ctx context.Context, stepName string, count int)

	// RecordLockAcquired records how many accounts a partition locked and how many it excluded.
	RecordLockAcquired(ctx context.Context, partition string, locked, excluded int)
	// RecordPartitions records the number of partitions produced for a run.
	RecordPartitions(ctx context.Context, jobName string, count int)

	// RecordDuration records the execution time of a specific operation.
	//
	// tags: A map of additional tags or attributes to associate with the duration.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
