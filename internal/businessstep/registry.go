package businessstep

import (
	"context"
	"fmt"
	"sync"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// Registry knows every Step implementation by name and the configured order of steps per job type.
//
// The configured steps are written to the batch_business_steps table the first time a job type
// is looked up, so the table reflects the configuration of the running binary. Job types absent
// from the configuration keep whatever rows the table already holds.
type Registry struct {
	repo       repository.BusinessStepRepository
	configured map[string][]config.BusinessStepConfig
	steps      map[string]Step

	mu     sync.Mutex
	seeded bool
}

// NewRegistry creates a Registry that resolves names against steps.
func NewRegistry(repo repository.BusinessStepRepository, configured map[string][]config.BusinessStepConfig, steps ...Step) *Registry {
	byName := make(map[string]Step, len(steps))
	for _, s := range steps {
		byName[s.Name()] = s
	}
	return &Registry{repo: repo, configured: configured, steps: byName}
}

// Seed stores the configured steps of every job type. It runs at most once successfully.
func (r *Registry) Seed(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seeded {
		return nil
	}
	for jobType, cfgSteps := range r.configured {
		steps := make([]entity.BusinessStepNameAndOrder, 0, len(cfgSteps))
		for _, s := range cfgSteps {
			if _, ok := r.steps[s.Name]; !ok {
				return exception.NewBatchError("Registry.Seed",
					fmt.Sprintf("job type '%s' configures unknown business step '%s'", jobType, s.Name), nil, false, false)
			}
			steps = append(steps, entity.BusinessStepNameAndOrder{Name: s.Name, Order: s.Order})
		}
		if err := r.repo.Replace(ctx, jobType, entity.SortSteps(steps)); err != nil {
			return err
		}
		logger.Debugf("Registry: stored %d business steps for job type '%s'.", len(steps), jobType)
	}
	r.seeded = true
	return nil
}

// StepsFor returns the steps configured for jobType in ascending order. An empty result means
// the job type is not configured.
func (r *Registry) StepsFor(ctx context.Context, jobType string) ([]entity.BusinessStepNameAndOrder, error) {
	if err := r.Seed(ctx); err != nil {
		return nil, err
	}
	steps, err := r.repo.FindByJobType(ctx, jobType)
	if err != nil {
		return nil, err
	}
	return entity.SortSteps(steps), nil
}

// Lookup returns the Step registered under name.
func (r *Registry) Lookup(name string) (Step, bool) {
	s, ok := r.steps[name]
	return s, ok
}

// Pipeline resolves configured steps into Step implementations, keeping their order.
func (r *Registry) Pipeline(steps []entity.BusinessStepNameAndOrder) ([]Step, error) {
	pipeline := make([]Step, 0, len(steps))
	for _, s := range entity.SortSteps(steps) {
		step, ok := r.Lookup(s.Name)
		if !ok {
			return nil, exception.NewBatchError("Registry.Pipeline",
				fmt.Sprintf("business step '%s' is not registered", s.Name), nil, false, false)
		}
		pipeline = append(pipeline, step)
	}
	return pipeline, nil
}
