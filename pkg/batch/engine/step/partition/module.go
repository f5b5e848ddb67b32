package partition

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
)

// SimpleStepExecutorParams defines the dependencies for SimpleStepExecutor.
type SimpleStepExecutorParams struct {
	fx.In
	Tracer         metrics.Tracer         `optional:"true"`
	MetricRecorder metrics.MetricRecorder `optional:"true"`
}

// Module provides the local StepExecutor.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(p SimpleStepExecutorParams) *SimpleStepExecutor {
			return NewSimpleStepExecutor(p.Tracer, p.MetricRecorder)
		},
		fx.As(new(port.StepExecutor)),
	)),
)
