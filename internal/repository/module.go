package repository

import "go.uber.org/fx"

// Module provides the repositories on the workload *gorm.DB.
var Module = fx.Provide(
	NewLoanRepository,
	NewAccountLockRepository,
	NewBusinessStepRepository,
	NewBusinessDateRepository,
)
