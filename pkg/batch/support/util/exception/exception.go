// Package exception defines the error type shared by the batch engine and the
// name-based error registry used by skip and retry policies.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers a sentinel error under a name so that policies configured
// from YAML (e.g. skippable_exceptions) can match it with IsErrorOfType.
// It panics on an empty name or a nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}
	registryMutex.Lock()
	defer registryMutex.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has been registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the error returned by framework components. It records the module
// that raised it and whether the chunk step may skip or retry the failed item.
type BatchError struct {
	Module      string
	Message     string
	OriginalErr error
	StackTrace  string

	isRetryable bool
	isSkippable bool
}

// NewBatchError creates a BatchError and captures the current goroutine's stack.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
		isRetryable: isRetryable,
		isSkippable: isSkippable,
	}
}

// NewBatchErrorf creates a non-skippable, non-retryable BatchError with a formatted message.
// A trailing error argument becomes the wrapped cause.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var cause error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok {
			cause = err
			a = a[:n-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), cause, false, false)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether the failed operation may be retried.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable reports whether the failed item may be skipped.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err (or anything it wraps) is a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsErrorOfType reports whether err matches the registered or reflected type name.
// The chain is checked with errors.Is against the registered sentinel first, then each
// wrapped error is compared by its dynamic type name and by message substring.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		t := reflect.TypeOf(cur)
		if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().Name() == errorTypeName) {
			return true
		}
		if strings.Contains(cur.Error(), errorTypeName) {
			return true
		}
	}
	return false
}

// ExtractErrorMessage returns the BatchError message when err is one, err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

// StackTraceOf returns the stack captured by the outermost BatchError in err's chain.
func StackTraceOf(err error) string {
	var be *BatchError
	if errors.As(err, &be) {
		return be.StackTrace
	}
	return ""
}

func init() {
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
}
