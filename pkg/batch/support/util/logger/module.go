package logger

import (
	"context"

	"go.uber.org/fx"
)

// syncOnStop flushes buffered log entries when the application stops.
func syncOnStop(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// Sync on a terminal returns EINVAL on some platforms.
			_ = Sync()
			return nil
		},
	})
}

// Module routes Fx's own events through the zap logger and flushes it on stop.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
	fx.Invoke(syncOnStop),
)
