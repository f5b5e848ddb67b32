package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/core/domain/repository"
)

// SaveJobInstance persists a new JobInstance.
// It returns an error if a JobInstance with the same ID already exists.
func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, jobInstance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobInstances[jobInstance.ID]; exists {
		return fmt.Errorf("JobInstance with ID %s already exists", jobInstance.ID)
	}
	r.jobInstances[jobInstance.ID] = jobInstance
	return nil
}

// FindJobInstanceByID finds a JobInstance by its ID.
func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobInstance, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	return jobInstance, nil
}

// FindJobInstanceByJobNameAndParameters finds a JobInstance by job name and exact parameters.
func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.ParametersHash == hash {
			return ji, nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}

// FindJobInstancesByJobNameAndPartialParameters finds JobInstances matching job name and partial parameters, latest first.
func (r *InMemoryJobRepository) FindJobInstancesByJobNameAndPartialParameters(ctx context.Context, jobName string, partialParams model.JobParameters) ([]*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matchingInstances []*model.JobInstance
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.Parameters.Contains(partialParams) {
			matchingInstances = append(matchingInstances, ji)
		}
	}
	sort.Slice(matchingInstances, func(i, j int) bool {
		return matchingInstances[j].CreateTime.Before(matchingInstances[i].CreateTime)
	})
	return matchingInstances, nil
}

// GetJobNames returns a sorted list of all distinct job names.
func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uniqueNames := make(map[string]struct{})
	for _, ji := range r.jobInstances {
		uniqueNames[ji.JobName] = struct{}{}
	}

	names := make([]string, 0, len(uniqueNames))
	for name := range uniqueNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
