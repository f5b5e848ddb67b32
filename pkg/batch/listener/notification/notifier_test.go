package notification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/listener/notification"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyJobCompletion(ctx context.Context, s notification.JobSummary) error {
	return m.Called(ctx, s).Error(0)
}

func finishedExecution() *model.JobExecution {
	params := model.NewJobParameters()
	params.Put("businessDate", "2026-10-17")
	je := model.NewJobExecution("instance", "LOAN_CLOSE_OF_BUSINESS", params)
	je.MarkAsStarted()
	je.MarkAsFailed(errors.New("partition 2 failed"))
	return je
}

func TestSummarize(t *testing.T) {
	je := finishedExecution()
	s := notification.Summarize(je)

	assert.Equal(t, "LOAN_CLOSE_OF_BUSINESS", s.JobName)
	assert.Equal(t, je.ID, s.ExecutionID)
	assert.Equal(t, string(model.BatchStatusFailed), s.Status)
	assert.Equal(t, []string{"partition 2 failed"}, s.Failures)
	assert.Contains(t, s.Parameters, "2026-10-17")
}

func TestNotificationListener_NotifierErrorIsNotFatal(t *testing.T) {
	n := &mockNotifier{}
	n.On("NotifyJobCompletion", mock.Anything, mock.AnythingOfType("notification.JobSummary")).Return(errors.New("redis down")).Once()

	l := notification.NewNotificationListener(n)
	assert.NotPanics(t, func() { l.AfterJob(context.Background(), finishedExecution()) })
	n.AssertExpectations(t)
}
