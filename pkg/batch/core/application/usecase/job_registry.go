package usecase

import (
	"fmt"
	"sort"
	"sync"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
)

// JobRegistry maps job names to job definitions.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]port.Job
}

// NewJobRegistry creates an empty JobRegistry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]port.Job)}
}

// Register adds job under its JobName, replacing any previous definition.
func (r *JobRegistry) Register(job port.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobName()] = job
}

// Get returns the job registered under name.
func (r *JobRegistry) Get(name string) (port.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job '%s' is not registered", name)
	}
	return job, nil
}

// Names returns the registered job names in sorted order.
func (r *JobRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
