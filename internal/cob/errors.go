package cob

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

// LoanReadError is returned by the reader when a claimed account cannot be loaded.
type LoanReadError struct {
	AccountID int64
	Cause     error
}

// NewLoanReadError wraps cause so the stack of the failed read is kept.
func NewLoanReadError(accountID int64, cause error) *LoanReadError {
	return &LoanReadError{
		AccountID: accountID,
		Cause:     exception.NewBatchError("LoanItemReader", fmt.Sprintf("failed to load loan %d", accountID), cause, false, false),
	}
}

func (e *LoanReadError) Error() string {
	return fmt.Sprintf("LoanReadError: account %d: %v", e.AccountID, e.Cause)
}

func (e *LoanReadError) Unwrap() error { return e.Cause }

// BusinessStepFailureError is returned by the processor when a business step fails. Step is
// the first step that failed; the pipeline does not continue past it.
type BusinessStepFailureError struct {
	AccountID int64
	Step      string
	Causes    *multierror.Error
}

// NewBusinessStepFailureError collects causes under the failing step.
func NewBusinessStepFailureError(accountID int64, step string, causes ...error) *BusinessStepFailureError {
	var agg *multierror.Error
	for _, c := range causes {
		agg = multierror.Append(agg, exception.NewBatchError(step, fmt.Sprintf("business step failed for loan %d", accountID), c, false, false))
	}
	return &BusinessStepFailureError{AccountID: accountID, Step: step, Causes: agg}
}

func (e *BusinessStepFailureError) Error() string {
	return fmt.Sprintf("BusinessStepFailureError: account %d, step %s: %v", e.AccountID, e.Step, e.Causes.ErrorOrNil())
}

func (e *BusinessStepFailureError) Unwrap() error { return e.Causes.ErrorOrNil() }

// CauseMessages returns the message of every cause.
func (e *BusinessStepFailureError) CauseMessages() []string {
	if e.Causes == nil {
		return nil
	}
	msgs := make([]string, 0, len(e.Causes.Errors))
	for _, c := range e.Causes.Errors {
		msgs = append(msgs, c.Error())
	}
	return msgs
}

func init() {
	exception.RegisterErrorType("LoanReadError", &LoanReadError{})
	exception.RegisterErrorType("BusinessStepFailureError", &BusinessStepFailureError{})
}
