// Package retry decides whether a failed chunk write is attempted again.
package retry

import (
	"errors"
	"time"

	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

const maxBackoff = 30 * time.Second

// RetryPolicy defines retry logic for chunk writes.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the given attempt (starting from 1).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts, including the first.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory creates RetryPolicy instances from configuration.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create creates a RetryPolicy. initialInterval is in milliseconds.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval int, retryableExceptions []string) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     time.Duration(initialInterval) * time.Millisecond,
		retryableExceptions: retryableExceptions,
	}
}

type defaultRetryPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	retryableExceptions []string
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry matches err against the BatchError retryable flag and the configured type names.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

// GetBackoffInterval doubles the initial interval per attempt, capped at 30s.
func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	d := p.initialInterval
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)
