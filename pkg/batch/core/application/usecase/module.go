package usecase

import (
	"go.uber.org/fx"
)

// Module is the Fx module for JobLauncher, JobOperator, and JobExplorer.
var Module = fx.Options(
	fx.Provide(NewJobRegistry),
	fx.Provide(NewSimpleJobLauncher),
	fx.Provide(func(l *SimpleJobLauncher) JobLauncher { return l }),
	fx.Provide(NewDefaultJobOperator),
	fx.Provide(func(o *DefaultJobOperator) JobOperator { return o }),
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
)
