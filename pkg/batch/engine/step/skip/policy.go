// Package skip decides whether an item-level failure may be skipped.
package skip

import (
	"errors"

	"go.uber.org/atomic"

	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

// SkipPolicy determines whether an item failure is skipped instead of failing the step.
// Implementations are shared by all chunk goroutines of one step execution.
type SkipPolicy interface {
	// ShouldSkip reports whether err is of a skippable kind. It does not consume the limit.
	ShouldSkip(err error) bool
	// TrySkip reports whether err is skippable and, if so, consumes one unit of the skip limit.
	TrySkip(err error) bool
	// GetSkipCount returns the total number of items skipped so far.
	GetSkipCount() int
	// GetSkipLimit returns the maximum number of skips configured for this policy.
	GetSkipLimit() int
}

// DefaultSkipPolicyFactory creates SkipPolicy instances from configuration.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a new DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create creates a SkipPolicy. A skipLimit of 0 disables skipping.
func (f *DefaultSkipPolicyFactory) Create(skipLimit int, skippableExceptions []string) SkipPolicy {
	return &defaultSkipPolicy{
		skipLimit:           int64(skipLimit),
		skippableExceptions: skippableExceptions,
	}
}

type defaultSkipPolicy struct {
	skipLimit           int64
	skippableExceptions []string
	currentSkipCount    atomic.Int64
}

// ShouldSkip matches err against the BatchError skippable flag and the configured type names.
func (p *defaultSkipPolicy) ShouldSkip(err error) bool {
	if err == nil || p.skipLimit <= 0 {
		return false
	}
	var be *exception.BatchError
	if errors.As(err, &be) && be.IsSkippable() {
		return true
	}
	for _, typeName := range p.skippableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

// TrySkip consumes one skip when err is skippable and the limit is not reached.
func (p *defaultSkipPolicy) TrySkip(err error) bool {
	if !p.ShouldSkip(err) {
		return false
	}
	for {
		cur := p.currentSkipCount.Load()
		if cur >= p.skipLimit {
			return false
		}
		if p.currentSkipCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (p *defaultSkipPolicy) GetSkipCount() int {
	return int(p.currentSkipCount.Load())
}

func (p *defaultSkipPolicy) GetSkipLimit() int {
	return int(p.skipLimit)
}

var _ SkipPolicy = (*defaultSkipPolicy)(nil)
