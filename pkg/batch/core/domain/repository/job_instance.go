package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

// ErrJobInstanceNotFound reports that no instance matches the ID or the job name and parameters.
var ErrJobInstanceNotFound = errors.New("job instance not found")

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
}

// JobInstance identifies a job run by its name and parameter hash; one business date is one instance.
type JobInstance interface {
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error
	FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error)

	// FindJobInstanceByJobNameAndParameters matches on the parameter hash, so numeric values
	// compare equal after a JSON round trip.
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// FindJobInstancesByJobNameAndPartialParameters returns instances whose parameters contain
	// every entry of partialParams, latest first.
	FindJobInstancesByJobNameAndPartialParameters(ctx context.Context, jobName string, partialParams model.JobParameters) ([]*model.JobInstance, error)

	// GetJobNames returns the distinct job names, sorted.
	GetJobNames(ctx context.Context) ([]string, error)
}
