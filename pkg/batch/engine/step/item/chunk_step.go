// Package item provides the chunk-oriented step.
package item

import (
	"context"
	"errors"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	"github.com/tigerroll/loancob/pkg/batch/engine/step/retry"
	"github.com/tigerroll/loancob/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

const (
	writeSavepoint = "chunk_write"
	itemSavepoint  = "chunk_item"
)

// Settings holds the chunk size, thread count and item policies of a ChunkStep.
// Threads is the number of goroutines sharing the reader, processor and writer.
type Settings struct {
	ChunkSize int
	Threads   int
	ItemRetry config.ItemRetryConfig
	ItemSkip  config.ItemSkipConfig
}

// ChunkStep reads, processes and writes items in chunks, one transaction per chunk.
// With Threads > 1 the reader must be safe for concurrent Read calls; each goroutine
// owns its own chunk transaction, which is carried to the components through the context.
type ChunkStep[I, O any] struct {
	name      string
	reader    port.ItemReader[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	txManager tx.TransactionManager
	settings  Settings

	retryPolicy retry.RetryPolicy
	skipFactory *skip.DefaultSkipPolicyFactory

	stepListeners  []port.StepExecutionListener
	chunkListeners []port.ChunkListener
	skipListeners  []port.SkipListener
	retryListeners []port.RetryItemListener

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep creates a ChunkStep.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	settings Settings,
) *ChunkStep[I, O] {
	if settings.ChunkSize <= 0 {
		settings.ChunkSize = 1
	}
	if settings.Threads <= 0 {
		settings.Threads = 1
	}
	return &ChunkStep[I, O]{
		name:      name,
		reader:    reader,
		processor: processor,
		writer:    writer,
		txManager: txManager,
		settings:  settings,
		retryPolicy: retry.NewDefaultRetryPolicyFactory().Create(
			settings.ItemRetry.MaxAttempts,
			settings.ItemRetry.InitialInterval,
			settings.ItemRetry.RetryableExceptions,
		),
		skipFactory:    skip.NewDefaultSkipPolicyFactory(),
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
}

// AddStepListener registers a StepExecutionListener.
func (s *ChunkStep[I, O]) AddStepListener(l port.StepExecutionListener) { s.stepListeners = append(s.stepListeners, l) }

// AddChunkListener registers a ChunkListener.
func (s *ChunkStep[I, O]) AddChunkListener(l port.ChunkListener) { s.chunkListeners = append(s.chunkListeners, l) }

// AddSkipListener registers a SkipListener.
func (s *ChunkStep[I, O]) AddSkipListener(l port.SkipListener) { s.skipListeners = append(s.skipListeners, l) }

// AddRetryListener registers a RetryItemListener.
func (s *ChunkStep[I, O]) AddRetryListener(l port.RetryItemListener) { s.retryListeners = append(s.retryListeners, l) }

// SetMetricRecorder implements port.Step.
func (s *ChunkStep[I, O]) SetMetricRecorder(recorder metrics.MetricRecorder) { s.metricRecorder = recorder }

// SetTracer implements port.Step.
func (s *ChunkStep[I, O]) SetTracer(tracer metrics.Tracer) { s.tracer = tracer }

// ID returns the step ID.
func (s *ChunkStep[I, O]) ID() string { return s.name }

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string { return s.name }

// Execute runs the chunk loop on Settings.Threads goroutines until the reader is exhausted
// or a non-skippable error occurs. The first fatal error cancels the sibling goroutines.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()

	stepExecution.MarkAsStarted()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	err := s.run(ctx, stepExecution)

	switch {
	case err == nil:
		stepExecution.MarkAsCompleted()
	case errors.Is(err, context.Canceled):
		stepExecution.AddFailureException(err)
		stepExecution.MarkAsStopped()
	default:
		s.tracer.RecordError(ctx, s.name, err)
		stepExecution.MarkAsFailed(err)
	}

	afterCtx := context.WithoutCancel(ctx)
	for _, l := range s.stepListeners {
		l.AfterStep(afterCtx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(afterCtx, stepExecution)
	return err
}

func (s *ChunkStep[I, O]) run(ctx context.Context, stepExecution *model.StepExecution) (err error) {
	if err := s.reader.Open(ctx, stepExecution.ExecutionContext); err != nil {
		return exception.NewBatchError(s.name, "failed to open ItemReader", err, false, false)
	}
	defer func() {
		if closeErr := s.reader.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.name, closeErr)
			err = errors.Join(err, closeErr)
		}
	}()
	if err := s.writer.Open(ctx, stepExecution.ExecutionContext); err != nil {
		return exception.NewBatchError(s.name, "failed to open ItemWriter", err, false, false)
	}
	defer func() {
		if closeErr := s.writer.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemWriter: %v", s.name, closeErr)
			err = errors.Join(err, closeErr)
		}
	}()

	policy := s.skipFactory.Create(s.settings.ItemSkip.SkipLimit, s.settings.ItemSkip.SkippableExceptions)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.settings.Threads; i++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				eof, err := s.runChunk(gctx, stepExecution, policy)
				if err != nil {
					return err
				}
				if eof {
					return nil
				}
			}
		})
	}
	err = g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	c := stepExecution.Counts()
	logger.Infof("ChunkStep '%s' finished. Read: %d, Write: %d, Filter: %d, Skip: %d, Commit: %d, Rollback: %d",
		s.name, c.Read, c.Write, c.Filter, c.Skips(), c.Commit, c.Rollback)
	return err
}

// runChunk processes one chunk in its own transaction and reports whether the reader is exhausted.
func (s *ChunkStep[I, O]) runChunk(ctx context.Context, stepExecution *model.StepExecution, policy skip.SkipPolicy) (bool, error) {
	t, err := s.txManager.Begin(ctx)
	if err != nil {
		return false, exception.NewBatchError(s.name, "failed to begin transaction for chunk", err, false, true)
	}
	txCtx := tx.WithTx(ctx, t)
	for _, l := range s.chunkListeners {
		l.BeforeChunk(txCtx, stepExecution)
	}
	defer func() {
		for _, l := range s.chunkListeners {
			l.AfterChunk(txCtx, stepExecution)
		}
	}()

	var delta model.StepCounts
	eof, items, err := s.readAndProcess(txCtx, policy, &delta)
	if err == nil && len(items) > 0 {
		err = s.write(txCtx, t, items, policy, &delta)
	}
	if err != nil {
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("ChunkStep '%s': rollback failed: %v", s.name, rbErr)
		}
		stepExecution.AddCounts(model.StepCounts{Rollback: 1})
		return false, err
	}

	if err := s.txManager.Commit(t); err != nil {
		stepExecution.AddCounts(model.StepCounts{Rollback: 1})
		return false, exception.NewBatchError(s.name, "failed to commit chunk transaction", err, false, false)
	}
	if delta.Read > 0 || delta.SkipRead > 0 {
		delta.Commit = 1
		s.metricRecorder.RecordChunkCommit(ctx, s.name, delta.Write)
	}
	stepExecution.AddCounts(delta)
	return eof, nil
}

func (s *ChunkStep[I, O]) readAndProcess(ctx context.Context, policy skip.SkipPolicy, delta *model.StepCounts) (bool, []O, error) {
	items := make([]O, 0, s.settings.ChunkSize)
	for attempted := 0; attempted < s.settings.ChunkSize; attempted++ {
		item, err := s.reader.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return true, items, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return false, nil, ctx.Err()
			}
			if !policy.TrySkip(err) {
				return false, nil, exception.NewBatchError(s.name, "item read failed", err, false, false)
			}
			delta.SkipRead++
			s.notifySkipRead(ctx, err)
			continue
		}
		delta.Read++
		s.metricRecorder.RecordItemRead(ctx, s.name)

		out, err := s.processor.Process(ctx, item)
		if err != nil {
			if !policy.TrySkip(err) {
				return false, nil, exception.NewBatchError(s.name, "item process failed", err, false, false)
			}
			delta.SkipProcess++
			s.notifySkipProcess(ctx, item, err)
			continue
		}
		if isNil(out) {
			delta.Filter++
			continue
		}
		s.metricRecorder.RecordItemProcess(ctx, s.name)
		items = append(items, out)
	}
	return false, items, nil
}

// write retries a retryable failure inside the same transaction by rolling back to a savepoint.
// A skippable failure falls back to writing the chunk item by item, skipping the failing ones.
func (s *ChunkStep[I, O]) write(ctx context.Context, t tx.Tx, items []O, policy skip.SkipPolicy, delta *model.StepCounts) error {
	if err := t.Savepoint(writeSavepoint); err != nil {
		return exception.NewBatchError(s.name, "failed to create savepoint", err, false, false)
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = s.writer.Write(ctx, items)
		if err == nil {
			delta.Write += len(items)
			s.metricRecorder.RecordItemWrite(ctx, s.name, len(items))
			return nil
		}
		if !s.retryPolicy.ShouldRetry(err) || attempt >= s.retryPolicy.GetMaxAttempts() {
			break
		}
		logger.Warnf("ChunkStep '%s': chunk write failed (attempt %d/%d), retrying: %v", s.name, attempt, s.retryPolicy.GetMaxAttempts(), err)
		s.notifyRetryWrite(ctx, items, err)
		if rbErr := t.RollbackToSavepoint(writeSavepoint); rbErr != nil {
			return exception.NewBatchError(s.name, "failed to roll back to savepoint", rbErr, false, false)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryPolicy.GetBackoffInterval(attempt)):
		}
	}

	if !policy.ShouldSkip(err) {
		return exception.NewBatchError(s.name, "item write failed", err, false, false)
	}
	logger.Warnf("ChunkStep '%s': chunk write failed with a skippable error, writing items one by one: %v", s.name, err)
	if rbErr := t.RollbackToSavepoint(writeSavepoint); rbErr != nil {
		return exception.NewBatchError(s.name, "failed to roll back to savepoint", rbErr, false, false)
	}
	for _, item := range items {
		if err := t.Savepoint(itemSavepoint); err != nil {
			return exception.NewBatchError(s.name, "failed to create savepoint", err, false, false)
		}
		writeErr := s.writer.Write(ctx, []O{item})
		if writeErr == nil {
			delta.Write++
			s.metricRecorder.RecordItemWrite(ctx, s.name, 1)
			continue
		}
		if !policy.TrySkip(writeErr) {
			return exception.NewBatchError(s.name, "item write failed", writeErr, false, false)
		}
		if rbErr := t.RollbackToSavepoint(itemSavepoint); rbErr != nil {
			return exception.NewBatchError(s.name, "failed to roll back to savepoint", rbErr, false, false)
		}
		delta.SkipWrite++
		s.notifySkipWrite(ctx, item, writeErr)
	}
	return nil
}

func (s *ChunkStep[I, O]) notifySkipRead(ctx context.Context, err error) {
	logger.Warnf("ChunkStep '%s': item read skipped: %v", s.name, err)
	s.tracer.RecordError(ctx, s.name, err)
	s.metricRecorder.RecordItemSkip(ctx, s.name, "read")
	for _, l := range s.skipListeners {
		l.OnSkipRead(ctx, err)
	}
}

func (s *ChunkStep[I, O]) notifySkipProcess(ctx context.Context, item I, err error) {
	logger.Warnf("ChunkStep '%s': item process skipped: %v", s.name, err)
	s.tracer.RecordError(ctx, s.name, err)
	s.metricRecorder.RecordItemSkip(ctx, s.name, "process")
	for _, l := range s.skipListeners {
		l.OnSkipProcess(ctx, item, err)
	}
}

func (s *ChunkStep[I, O]) notifySkipWrite(ctx context.Context, item O, err error) {
	logger.Warnf("ChunkStep '%s': item write skipped: %v", s.name, err)
	s.tracer.RecordError(ctx, s.name, err)
	s.metricRecorder.RecordItemSkip(ctx, s.name, "write")
	for _, l := range s.skipListeners {
		l.OnSkipWrite(ctx, item, err)
	}
}

func (s *ChunkStep[I, O]) notifyRetryWrite(ctx context.Context, items []O, err error) {
	s.tracer.RecordError(ctx, s.name, err)
	s.metricRecorder.RecordItemRetry(ctx, s.name, "write")
	if len(s.retryListeners) == 0 {
		return
	}
	generic := make([]interface{}, len(items))
	for i, item := range items {
		generic[i] = item
	}
	for _, l := range s.retryListeners {
		l.OnRetryWrite(ctx, generic, err)
	}
}

// isNil reports whether a processor output means "filtered".
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
