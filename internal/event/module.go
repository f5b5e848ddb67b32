package event

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	"github.com/tigerroll/loancob/pkg/batch/listener/notification"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// PublisherParams are the dependencies of NewPublisher.
type PublisherParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Infra     *config.InfrastructureConfig
}

// PublisherResult exposes the chosen implementation as both Publisher and Notifier.
type PublisherResult struct {
	fx.Out
	Publisher Publisher
	Notifier  notification.Notifier
}

// NewPublisher connects to Redis when events.type is "redis". Otherwise events go to the debug
// log and job summaries to the log notifier.
func NewPublisher(p PublisherParams) (PublisherResult, error) {
	cfg := p.Infra.Events
	switch cfg.Type {
	case "", "none":
		return PublisherResult{Publisher: LogPublisher{}, Notifier: notification.NewLogNotifier()}, nil
	case "redis":
		client, err := DialRedis(context.Background(), cfg)
		if err != nil {
			return PublisherResult{}, err
		}
		pub := NewRedisPublisher(client, cfg.Channel)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error { return pub.Close() },
		})
		logger.Infof("Publishing domain events to redis channel '%s' at %s.", cfg.Channel, cfg.Addr)
		return PublisherResult{Publisher: pub, Notifier: pub}, nil
	default:
		return PublisherResult{}, fmt.Errorf("unknown events type: %s", cfg.Type)
	}
}

// Module provides the Publisher and the job completion Notifier.
var Module = fx.Provide(NewPublisher)
