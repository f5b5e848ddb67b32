package businessstep

import (
	"go.uber.org/fx"

	"github.com/tigerroll/loancob/internal/event"
	"github.com/tigerroll/loancob/internal/repository"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
)

// NewDefaultRegistry registers the shipped steps and the configured order.
func NewDefaultRegistry(repo repository.BusinessStepRepository, cfg *config.Config, publisher event.Publisher) *Registry {
	return NewRegistry(repo, cfg.LoanCOB.BusinessSteps,
		NewDueInstallmentStep(publisher),
		NewArrearsAgingStep(),
		NewRepaymentOverdueStep(publisher),
	)
}

// Module provides the business step Registry.
var Module = fx.Provide(NewDefaultRegistry)
