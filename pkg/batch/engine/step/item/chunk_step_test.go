package item_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/loancob/pkg/batch/core/tx"
	item "github.com/tigerroll/loancob/pkg/batch/engine/step/item"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

var (
	errBadItem   = errors.New("bad item")
	errTransient = errors.New("transient write failure")
)

func init() {
	exception.RegisterErrorType("item_test.errBadItem", errBadItem)
	exception.RegisterErrorType("item_test.errTransient", errTransient)
}

type fakeTx struct {
	mu         sync.Mutex
	savepoints []string
	rolledBack []string
}

func (t *fakeTx) Savepoint(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.savepoints = append(t.savepoints, name)
	return nil
}

func (t *fakeTx) RollbackToSavepoint(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolledBack = append(t.rolledBack, name)
	return nil
}

type fakeTxManager struct {
	mu        sync.Mutex
	txs       []*fakeTx
	commits   int
	rollbacks int
}

func (m *fakeTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &fakeTx{}
	m.txs = append(m.txs, t)
	return t, nil
}

func (m *fakeTxManager) Commit(t tx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return nil
}

func (m *fakeTxManager) Rollback(t tx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	return nil
}

func (m *fakeTxManager) rolledBackTo(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.txs {
		for _, sp := range t.rolledBack {
			if sp == name {
				n++
			}
		}
	}
	return n
}

type sliceReader struct {
	mu    sync.Mutex
	items []int
	next  int
}

func (r *sliceReader) Open(ctx context.Context, ec model.ExecutionContext) error { return nil }
func (r *sliceReader) Close(ctx context.Context) error { return nil }

func (r *sliceReader) Read(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.items) {
		return 0, port.ErrNoMoreItems
	}
	v := r.items[r.next]
	r.next++
	return v, nil
}

type funcProcessor func(ctx context.Context, v int) (*int, error)

func (f funcProcessor) Process(ctx context.Context, v int) (*int, error) { return f(ctx, v) }

func identity(ctx context.Context, v int) (*int, error) { return &v, nil }

type recordingWriter struct {
	mu      sync.Mutex
	written []int
	calls   int
	fail    func(items []*int) error
}

func (w *recordingWriter) Open(ctx context.Context, ec model.ExecutionContext) error { return nil }
func (w *recordingWriter) Close(ctx context.Context) error { return nil }

func (w *recordingWriter) Write(ctx context.Context, items []*int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if tx.FromContext(ctx) == nil {
		return errors.New("no transaction in context")
	}
	if w.fail != nil {
		if err := w.fail(items); err != nil {
			return err
		}
	}
	for _, it := range items {
		w.written = append(w.written, *it)
	}
	return nil
}

type recordingSkipListener struct {
	mu      sync.Mutex
	process []interface{}
	write   []interface{}
}

func (l *recordingSkipListener) OnSkipRead(ctx context.Context, err error) {}
func (l *recordingSkipListener) OnSkipProcess(ctx context.Context, it interface{}, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.process = append(l.process, it)
}
func (l *recordingSkipListener) OnSkipWrite(ctx context.Context, it interface{}, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write = append(l.write, it)
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func newExecution(name string) (*model.JobExecution, *model.StepExecution) {
	je := model.NewJobExecution("instance", "job", model.NewJobParameters())
	return je, model.NewStepExecution(model.NewID(), je, name)
}

func settings(threads int) item.Settings {
	return item.Settings{
		ChunkSize: 3,
		Threads:   threads,
		ItemRetry: config.ItemRetryConfig{MaxAttempts: 3, InitialInterval: 1, RetryableExceptions: []string{"item_test.errTransient"}},
		ItemSkip:  config.ItemSkipConfig{SkipLimit: 10, SkippableExceptions: []string{"item_test.errBadItem"}},
	}
}

func TestChunkStep_ProcessesEveryItemOnce(t *testing.T) {
	writer := &recordingWriter{}
	txm := &fakeTxManager{}
	step := item.NewChunkStep[int, *int]("chunk", &sliceReader{items: seq(20)}, funcProcessor(identity), writer, txm, settings(4))

	je, se := newExecution("chunk")
	require.NoError(t, step.Execute(context.Background(), je, se))

	assert.ElementsMatch(t, seq(20), writer.written)
	c := se.Counts()
	assert.Equal(t, 20, c.Read)
	assert.Equal(t, 20, c.Write)
	assert.Equal(t, 0, c.Rollback)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatusCompleted, se.ExitStatus)
	assert.Zero(t, txm.rollbacks)
}

func TestChunkStep_FilteredItemsAreNotWritten(t *testing.T) {
	writer := &recordingWriter{}
	evenOnly := funcProcessor(func(ctx context.Context, v int) (*int, error) {
		if v%2 == 1 {
			return nil, nil
		}
		return &v, nil
	})
	step := item.NewChunkStep[int, *int]("chunk", &sliceReader{items: seq(6)}, evenOnly, writer, &fakeTxManager{}, settings(1))

	je, se := newExecution("chunk")
	require.NoError(t, step.Execute(context.Background(), je, se))

	assert.Equal(t, []int{2, 4, 6}, writer.written)
	assert.Equal(t, 3, se.Counts().Filter)
}

func TestChunkStep_SkipsSkippableProcessFailure(t *testing.T) {
	writer := &recordingWriter{}
	listener := &recordingSkipListener{}
	failOnThree := funcProcessor(func(ctx context.Context, v int) (*int, error) {
		if v == 3 {
			return nil, errBadItem
		}
		return &v, nil
	})
	step := item.NewChunkStep[int, *int]("chunk", &sliceReader{items: seq(5)}, failOnThree, writer, &fakeTxManager{}, settings(1))
	step.AddSkipListener(listener)

	je, se := newExecution("chunk")
	require.NoError(t, step.Execute(context.Background(), je, se))

	assert.Equal(t, []int{1, 2, 4, 5}, writer.written)
	assert.Equal(t, 1, se.Counts().SkipProcess)
	assert.Equal(t, []interface{}{3}, listener.process)
}

func TestChunkStep_FailsOnNonSkippableError(t *testing.T) {
	writer := &recordingWriter{}
	txm := &fakeTxManager{}
	boom := errors.New("boom")
	failing := funcProcessor(func(ctx context.Context, v int) (*int, error) {
		if v == 2 {
			return nil, boom
		}
		return &v, nil
	})
	step := item.NewChunkStep[int, *int]("chunk", &sliceReader{items: seq(5)}, failing, writer, txm, settings(1))

	je, se := newExecution("chunk")
	err := step.Execute(context.Background(), je, se)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, writer.written)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 1, se.Counts().Rollback)
	assert.Equal(t, 1, txm.rollbacks)
}

func TestChunkStep_RetriesWriteWithinTransaction(t *testing.T) {
	attempts := 0
	writer := &recordingWriter{fail: func(items []*int) error {
		attempts++
		if attempts == 1 {
			return errTransient
		}
		return nil
	}}
	txm := &fakeTxManager{}
	step := item.NewChunkStep[int, *int]("chunk", &sliceReader{items: seq(3)}, funcProcessor(identity), writer, txm, settings(1))

	je, se := newExecution("chunk")
	require.NoError(t, step.Execute(context.Background(), je, se))

	assert.Equal(t, []int{1, 2, 3}, writer.written)
	assert.Equal(t, 1, txm.rolledBackTo("chunk_write"))
	assert.Zero(t, txm.rollbacks)
}

func TestChunkStep_ScansChunkOnSkippableWriteFailure(t *testing.T) {
	listener := &recordingSkipListener{}
	writer := &recordingWriter{fail: func(items []*int) error {
		for _, it := range items {
			if *it == 2 {
				return errBadItem
			}
		}
		return nil
	}}
	txm := &fakeTxManager{}
	step := item.NewChunkStep[int, *int]("chunk", &sliceReader{items: seq(3)}, funcProcessor(identity), writer, txm, settings(1))
	step.AddSkipListener(listener)

	je, se := newExecution("chunk")
	require.NoError(t, step.Execute(context.Background(), je, se))

	assert.Equal(t, []int{1, 3}, writer.written)
	c := se.Counts()
	assert.Equal(t, 2, c.Write)
	assert.Equal(t, 1, c.SkipWrite)
	require.Len(t, listener.write, 1)
	assert.Equal(t, 2, *(listener.write[0].(*int)))
	assert.Equal(t, 1, txm.rolledBackTo("chunk_item"))
}

func TestChunkStep_EmptyReaderCompletes(t *testing.T) {
	writer := &recordingWriter{}
	step := item.NewChunkStep[int, *int]("chunk", &sliceReader{}, funcProcessor(identity), writer, &fakeTxManager{}, settings(2))

	je, se := newExecution("chunk")
	require.NoError(t, step.Execute(context.Background(), je, se))

	assert.Zero(t, writer.calls)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Zero(t, se.Counts().Commit)
}
