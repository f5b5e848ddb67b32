package notification

import "go.uber.org/fx"

// Module provides the NotificationListener. The Notifier itself comes from the event wiring.
var Module = fx.Options(
	fx.Provide(NewNotificationListener),
)
