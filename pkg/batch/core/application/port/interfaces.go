// Package port defines the core interfaces (ports) for the batch application.
// These interfaces abstract the application's capabilities and dependencies,
// allowing for flexible implementation and testing.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
)

// ErrNoMoreItems is returned by ItemReader.Read when the input is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// Job is the interface for an executable batch job.
type Job interface {
	// Run executes the entire job flow.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   jobParameters: The job parameters for the execution.
	//
	// Returns:
	//   error: An error if the job execution fails.
	Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error
	// JobName returns the logical name of the job.
	JobName() string
	// ID returns the unique ID of the job definition.
	ID() string
	// ValidateParameters validates job parameters before job execution.
	ValidateParameters(params model.JobParameters) error
}

// Step is the interface for a single step executed within a job.
// It is implemented as Chunk-oriented, Tasklet-oriented, a Flow of sub-steps, or a Partitioning controller.
type Step interface {
	// Execute executes the business logic of the step.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   stepExecution: The current StepExecution instance.
	//
	// Returns:
	//   error: An error if the step execution encounters a fatal issue or exceeds retry/skip limits.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
	// StepName returns the logical name of the step.
	StepName() string
	// ID returns the unique ID of the step definition.
	ID() string
	// SetMetricRecorder sets the MetricRecorder.
	SetMetricRecorder(recorder metrics.MetricRecorder)
	// SetTracer sets the Tracer.
	SetTracer(tracer metrics.Tracer)
}

// StepExecutor abstracts the execution of a worker step.
type StepExecutor interface {
	// ExecuteStep executes the specified Step and returns the completed StepExecution and any error.
	ExecuteStep(ctx context.Context, step Step, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (*model.StepExecution, error)
}

// ItemReader is the interface for a data reading step.
// O is the type of item to be read. Implementations used with more than one
// chunk thread must be safe for concurrent Read calls.
type ItemReader[O any] interface {
	// Open opens resources and resolves state from the step's ExecutionContext.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read reads the next item. Returns ErrNoMoreItems if no more items are available.
	Read(ctx context.Context) (O, error)
	// Close closes resources.
	Close(ctx context.Context) error
}

// ItemProcessor is the interface for an item processing step.
// I is the type of input item, O is the type of output item.
type ItemProcessor[I, O any] interface {
	// Process processes an input item and returns an output item. A nil output filters the item.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter is the interface for a data writing step.
// The chunk transaction is carried by ctx (see tx.FromContext).
type ItemWriter[I any] interface {
	// Open opens resources and resolves state from the step's ExecutionContext.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Write persists a list of items.
	Write(ctx context.Context, items []I) error
	// Close closes resources.
	Close(ctx context.Context) error
}

// Tasklet is the interface for a step that performs a single operation.
type Tasklet interface {
	// Execute executes the business logic of the Tasklet.
	// Returns an ExitStatus such as ExitStatusCompleted upon success.
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
}

// Partitioner divides step execution into multiple partitions.
type Partitioner interface {
	// Partition returns a map of ExecutionContexts based on the specified grid size.
	// Each ExecutionContext is passed to a separate worker (StepExecution).
	//
	// Parameters:
	//   ctx: The context.
	//   gridSize: The grid size hint for the partitioner.
	//
	// Returns:
	//   map[string]model.ExecutionContext: A map of ExecutionContexts, where keys are partition names.
	//   error: An error if partitioning fails.
	Partition(ctx context.Context, gridSize int) (map[string]model.ExecutionContext, error)
}

// SkipListener is an interface for handling item skip events.
type SkipListener interface {
	// OnSkipRead is called after a skip occurs during reading.
	OnSkipRead(ctx context.Context, err error)
	// OnSkipProcess is called after a skip occurs during processing.
	OnSkipProcess(ctx context.Context, item interface{}, err error)
	// OnSkipWrite is called after a skip occurs during writing.
	OnSkipWrite(ctx context.Context, item interface{}, err error)
}

// RetryItemListener is an interface for handling chunk write retries.
type RetryItemListener interface {
	// OnRetryWrite is called before a chunk write is retried.
	OnRetryWrite(ctx context.Context, items []interface{}, err error)
}

// StepExecutionListener is an interface for handling step execution events.
type StepExecutionListener interface {
	// BeforeStep is called just before a step execution starts.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called after a step execution completes (regardless of success or failure).
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is an interface for handling chunk processing events.
type ChunkListener interface {
	// BeforeChunk is called just before chunk processing (read, process, write) begins.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after chunk processing completes (after commit or rollback).
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
}

// JobExecutionListener is an interface for handling job execution events.
type JobExecutionListener interface {
	// BeforeJob is called just before a job execution starts.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called after a job execution completes (regardless of success or failure).
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

type contextKey string

// StepExecutionKey is the context key under which the running StepExecution is stored.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores a StepExecution in the Context.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext retrieves a StepExecution from the Context. Returns nil if not found.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
