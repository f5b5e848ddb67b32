package logging

import "go.uber.org/fx"

// Module provides the logging listeners.
var Module = fx.Options(
	fx.Provide(
		NewLoggingJobListener,
		NewLoggingStepListener,
		NewLoggingChunkListener,
		NewLoggingSkipListener,
		NewLoggingRetryItemListener,
	),
)
