package model_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

func newTestJobExecution(status model.JobStatus) *model.JobExecution {
	je := model.NewJobExecution("instance-1", "LOAN_CLOSE_OF_BUSINESS", model.NewJobParameters())
	je.Status = status
	return je
}

func TestJobExecution_TransitionTo(t *testing.T) {
	valid := []struct{ from, to model.JobStatus }{
		{model.BatchStatusStarting, model.BatchStatusStarted},
		{model.BatchStatusStarting, model.BatchStatusFailed},
		{model.BatchStatusStarted, model.BatchStatusStopping},
		{model.BatchStatusStarted, model.BatchStatusCompleted},
		{model.BatchStatusStopping, model.BatchStatusStopped},
		{model.BatchStatusStopping, model.BatchStatusStoppingFailed},
		{model.BatchStatusFailed, model.BatchStatusAbandoned},
		{model.BatchStatusStopped, model.BatchStatusAbandoned},
	}
	for _, tt := range valid {
		je := newTestJobExecution(tt.from)
		assert.NoError(t, je.TransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.to, je.CurrentStatus())
	}

	invalid := []struct{ from, to model.JobStatus }{
		{model.BatchStatusFailed, model.BatchStatusStarted},
		{model.BatchStatusCompleted, model.BatchStatusStarted},
		{model.BatchStatusAbandoned, model.BatchStatusStarted},
		{model.BatchStatusFailed, model.BatchStatusFailed},
		{model.BatchStatusStarted, model.BatchStatusStopped},
	}
	for _, tt := range invalid {
		je := newTestJobExecution(tt.from)
		err := je.TransitionTo(tt.to)
		require.Error(t, err, "%s -> %s", tt.from, tt.to)
		assert.Contains(t, err.Error(), "invalid state transition")
		assert.Equal(t, tt.from, je.CurrentStatus())
	}
}

func TestJobStatus_ToExitStatusAndIsFinished(t *testing.T) {
	assert.Equal(t, model.ExitStatusCompleted, model.BatchStatusCompleted.ToExitStatus())
	assert.Equal(t, model.ExitStatusFailed, model.BatchStatusFailed.ToExitStatus())
	assert.Equal(t, model.ExitStatusStopped, model.BatchStatusStopped.ToExitStatus())
	assert.Equal(t, model.ExitStatusUnknown, model.BatchStatusStarted.ToExitStatus())

	assert.True(t, model.BatchStatusAbandoned.IsFinished())
	assert.False(t, model.BatchStatusStopping.IsFinished())
}

func TestJobExecution_MarkStatusHelpers(t *testing.T) {
	je := newTestJobExecution(model.BatchStatusStarting)
	je.MarkAsStarted()
	state := je.State()
	assert.Equal(t, model.BatchStatusStarted, state.Status)
	assert.Nil(t, state.EndTime)

	je.MarkAsCompleted()
	state = je.State()
	assert.Equal(t, model.BatchStatusCompleted, state.Status)
	assert.Equal(t, model.ExitStatusCompleted, state.ExitStatus)
	assert.NotNil(t, state.EndTime)

	// A forced transition still records the final status.
	je = newTestJobExecution(model.BatchStatusCompleted)
	je.MarkAsAbandoned()
	assert.Equal(t, model.BatchStatusAbandoned, je.CurrentStatus())
}

func TestJobExecution_MarkAsFailed_DeduplicatesFailures(t *testing.T) {
	je := newTestJobExecution(model.BatchStatusStarted)
	err := exception.NewBatchError("cob", "partition failed", errors.New("db down"), false, false)

	je.MarkAsFailed(err)
	je.AddFailureException(err)
	je.AddFailureException(errors.New("second"))
	je.AddFailureException(nil)

	assert.Equal(t, []string{"partition failed", "second"}, je.FailureMessages())
	assert.Equal(t, model.ExitStatusFailed, je.State().ExitStatus)
}

func TestJobExecution_ConcurrentStepsAndFailures(t *testing.T) {
	je := newTestJobExecution(model.BatchStatusStarted)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			je.AddStepExecution(model.NewStepExecution(model.NewID(), je, model.PartitionName("cobWorker", string(rune('0'+i)))))
			je.AddFailureException(errors.New("same failure"))
		}(i)
	}
	wg.Wait()
	assert.Len(t, je.Steps(), 8)
	assert.Equal(t, []string{"same failure"}, je.FailureMessages())
}

func TestStepExecution_CountsAndTransitions(t *testing.T) {
	je := newTestJobExecution(model.BatchStatusStarted)
	se := model.NewStepExecution("step-1", je, "cobWorker")
	assert.Equal(t, je.ID, se.JobExecutionID)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			se.AddCounts(model.StepCounts{Read: 10, Write: 9, Commit: 1, SkipProcess: 1})
		}()
	}
	wg.Wait()
	counts := se.Counts()
	assert.Equal(t, model.StepCounts{Read: 100, Write: 90, Commit: 10, SkipProcess: 10}, counts)
	assert.Equal(t, 10, counts.Skips())

	assert.Error(t, se.TransitionTo(model.BatchStatusStopping))
	se.MarkAsStarted()
	se.MarkAsNoOp()
	state := se.State()
	assert.Equal(t, model.BatchStatusCompleted, state.Status)
	assert.Equal(t, model.ExitStatusNoOp, state.ExitStatus)
	assert.NotNil(t, state.EndTime)
}

func TestJobParameters_Contains(t *testing.T) {
	full := model.NewJobParameters()
	full.Put("businessDate", "2026-05-10")
	full.Put("catchUp", true)
	full.Put("jobType", "LOAN_CLOSE_OF_BUSINESS")

	assert.True(t, full.Contains(model.NewJobParameters()))

	partial := model.NewJobParameters()
	partial.Put("catchUp", true)
	assert.True(t, full.Contains(partial))

	partial.Put("businessDate", "2026-05-11")
	assert.False(t, full.Contains(partial))

	missing := model.NewJobParameters()
	missing.Put("partition", "p1")
	assert.False(t, full.Contains(missing))
}

func TestJobParameters_Hash(t *testing.T) {
	jp1 := model.NewJobParameters()
	jp1.Put("keyA", "value1")
	jp1.Put("keyB", 100)

	jp2 := model.NewJobParameters()
	jp2.Put("keyB", 100)
	jp2.Put("keyA", "value1")

	jp3 := model.NewJobParameters()
	jp3.Put("keyA", "valueX")

	hash1, err := jp1.Hash()
	require.NoError(t, err)
	hash2, err := jp2.Hash()
	require.NoError(t, err)
	hash3, err := jp3.Hash()
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)
	assert.NotEqual(t, hash1, hash3)
	assert.Len(t, hash1, 64)

	// A JSON round trip turns 100 into float64(100) without changing the hash.
	jp4 := model.NewJobParameters()
	jp4.Put("keyA", "value1")
	jp4.Put("keyB", float64(100))
	hash4, err := jp4.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash1, hash4)

	bad := model.NewJobParameters()
	bad.Put("ch", make(chan int))
	_, err = bad.Hash()
	assert.Error(t, err)
}

func TestExecutionContext_GetTyped(t *testing.T) {
	ec := model.NewExecutionContext()
	ec.Put("strKey", "hello")
	ec.Put("intKey", 42)
	ec.Put("floatIntKey", 42.0)
	ec.Put("boolKey", true)

	s, ok := ec.GetString("strKey")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)
	_, ok = ec.GetString("intKey")
	assert.False(t, ok)

	i, ok := ec.GetInt("floatIntKey")
	assert.True(t, ok)
	assert.Equal(t, 42, i)
	_, ok = ec.GetInt("strKey")
	assert.False(t, ok)

	b, ok := ec.GetBool("boolKey")
	assert.True(t, ok)
	assert.True(t, b)

	cp := ec.Copy()
	cp.Remove("strKey")
	_, ok = ec.Get("strKey")
	assert.True(t, ok)
}
