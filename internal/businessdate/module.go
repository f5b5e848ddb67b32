package businessdate

import (
	"go.uber.org/fx"

	"github.com/tigerroll/loancob/internal/repository"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
)

// NewProvider builds the stored Provider from the system settings.
func NewProvider(repo repository.BusinessDateRepository, cfg *config.Config) Provider {
	return NewStoredProvider(repo, cfg.LoanCOB.System)
}

// Module provides the business date Provider.
var Module = fx.Provide(NewProvider)
