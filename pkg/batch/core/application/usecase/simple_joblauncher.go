package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

type activeExecution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// SimpleJobLauncher implements JobLauncher for local execution.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	registry      *JobRegistry

	mu     sync.Mutex
	active map[string]*activeExecution
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, registry *JobRegistry) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository: repo,
		registry:      registry,
		active:        make(map[string]*activeExecution),
	}
}

// GetCancelFunc retrieves the cancel function for the specified JobExecution ID.
func (l *SimpleJobLauncher) GetCancelFunc(executionID string) (context.CancelFunc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.active[executionID]
	if !ok {
		return nil, false
	}
	return a.cancel, true
}

// UnregisterCancelFunc forgets the execution without cancelling it.
func (l *SimpleJobLauncher) UnregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, executionID)
}

// Launch resolves the job instance for params, persists a new JobExecution and starts the job on its own goroutine.
// A second launch for an instance that still has a running execution is rejected.
func (l *SimpleJobLauncher) Launch(ctx context.Context, jobName string, jobParameters model.JobParameters) (*model.JobExecution, error) {
	jobExecution, _, err := l.launch(ctx, jobName, jobParameters)
	return jobExecution, err
}

// Run launches the job and waits for it to finish.
func (l *SimpleJobLauncher) Run(ctx context.Context, jobName string, jobParameters model.JobParameters) (*model.JobExecution, error) {
	jobExecution, done, err := l.launch(ctx, jobName, jobParameters)
	if err != nil {
		return jobExecution, err
	}
	select {
	case <-done:
		return jobExecution, nil
	case <-ctx.Done():
		<-done
		return jobExecution, ctx.Err()
	}
}

func (l *SimpleJobLauncher) launch(ctx context.Context, jobName string, jobParameters model.JobParameters) (*model.JobExecution, <-chan struct{}, error) {
	const op = "job_launcher"
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, jobParameters.String())

	job, err := l.registry.Get(jobName)
	if err != nil {
		return nil, nil, exception.NewBatchError(op, "failed to resolve job definition", err, false, false)
	}
	if err := job.ValidateParameters(jobParameters); err != nil {
		logger.Errorf("Job '%s': JobParameters validation failed: %v", jobName, err)
		return nil, nil, exception.NewBatchError(op, "JobParameters validation error", err, false, false)
	}

	jobInstance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, jobParameters)
	switch {
	case errors.Is(err, repository.ErrJobInstanceNotFound):
		jobInstance = model.NewJobInstance(jobName, jobParameters)
		if err := l.jobRepository.SaveJobInstance(ctx, jobInstance); err != nil {
			return nil, nil, exception.NewBatchError(op, fmt.Sprintf("failed to save new JobInstance for '%s'", jobName), err, false, false)
		}
		logger.Infof("Created new JobInstance (ID: %s, JobName: %s).", jobInstance.ID, jobName)
	case err != nil:
		return nil, nil, exception.NewBatchError(op, "failed to search for existing JobInstance", err, false, false)
	default:
		previous, err := l.jobRepository.FindJobExecutionsByJobInstance(ctx, jobInstance)
		if err != nil {
			return nil, nil, exception.NewBatchError(op, "failed to load previous executions", err, false, false)
		}
		for _, p := range previous {
			if status := p.CurrentStatus(); !status.IsFinished() {
				return nil, nil, exception.NewBatchErrorf(op, "a running JobExecution (ID: %s, Status: %s) already exists for JobInstance (ID: %s)", p.ID, status, jobInstance.ID)
			}
		}
	}

	jobExecution := model.NewJobExecution(jobInstance.ID, jobName, jobInstance.Parameters)
	// The job outlives a request-scoped ctx only through Launch; values are kept, cancellation is not.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jobExecution.CancelFunc = cancel

	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		cancel()
		return jobExecution, nil, exception.NewBatchError(op, "failed to save JobExecution", err, false, false)
	}

	done := make(chan struct{})
	l.mu.Lock()
	l.active[jobExecution.ID] = &activeExecution{cancel: cancel, done: done}
	l.mu.Unlock()

	logger.Infof("Starting Job '%s' (Execution ID: %s, Job Instance ID: %s).", jobName, jobExecution.ID, jobInstance.ID)
	go func() {
		defer close(done)
		defer cancel()
		defer l.UnregisterCancelFunc(jobExecution.ID)

		if err := job.Run(jobCtx, jobExecution, jobParameters); err != nil {
			logger.Errorf("Job '%s' (Execution ID: %s) finished with error: %v", jobName, jobExecution.ID, err)
		}
		if err := l.jobRepository.UpdateJobExecution(context.WithoutCancel(jobCtx), jobExecution); err != nil {
			logger.Errorf("Failed to persist final state of JobExecution (ID: %s): %v", jobExecution.ID, err)
		}
	}()

	return jobExecution, done, nil
}
