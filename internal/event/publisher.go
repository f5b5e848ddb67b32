// Package event publishes the domain events raised by business steps and job completions.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	"github.com/tigerroll/loancob/pkg/batch/listener/notification"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

const (
	TypeLoanInstallmentDue   = "LoanInstallmentDue"
	TypeLoanRepaymentOverdue = "LoanRepaymentOverdue"
	TypeJobCompleted         = "JobCompleted"
)

// Event is one domain event.
type Event struct {
	Type         string                 `json:"type"`
	AccountID    int64                  `json:"accountId,omitempty"`
	BusinessDate string                 `json:"businessDate,omitempty"`
	OccurredAt   time.Time              `json:"occurredAt"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// Publisher sends events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// RedisPublisher publishes events as JSON on a Redis channel. It is also the job completion
// Notifier, so subscribers see run summaries on the same channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// DialRedis connects to Redis and checks the connection.
func DialRedis(ctx context.Context, cfg config.EventsConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisPublisher creates a RedisPublisher on client.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends e on the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

// NotifyJobCompletion publishes the summary as a JobCompleted event.
func (p *RedisPublisher) NotifyJobCompletion(ctx context.Context, s notification.JobSummary) error {
	return p.Publish(ctx, Event{
		Type: TypeJobCompleted,
		Payload: map[string]interface{}{
			"jobName":     s.JobName,
			"executionId": s.ExecutionID,
			"status":      s.Status,
			"exitStatus":  s.ExitStatus,
			"durationMs":  s.Duration.Milliseconds(),
			"failures":    s.Failures,
		},
	})
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher writes events to the debug log. It is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	logger.Debugf("Event %s (account %d, business date %s): %v", e.Type, e.AccountID, e.BusinessDate, e.Payload)
	return nil
}

var (
	_ Publisher             = (*RedisPublisher)(nil)
	_ Publisher             = LogPublisher{}
	_ notification.Notifier = (*RedisPublisher)(nil)
)
