// Package inmemory provides an in-memory implementation of the JobRepository interface.
// Executions are stored by pointer so that the operator sees the live status and cancel func
// of a running execution.
package inmemory

import (
	"sync"

	"github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

// InMemoryJobRepository is an in-memory implementation of the JobRepository interface.
type InMemoryJobRepository struct {
	jobInstances   map[string]*model.JobInstance
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	mu             sync.RWMutex
}

// NewInMemoryJobRepository creates and initializes a new instance of InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:   make(map[string]*model.JobInstance),
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
	}
}

// Close always returns nil.
func (r *InMemoryJobRepository) Close() error {
	return nil
}
