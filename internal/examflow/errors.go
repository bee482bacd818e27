package examflow

import (
	"errors"
	"fmt"
)

// Errors reported by the server through the API implementation.
var (
	// ErrAlreadyAnswered means the server already holds an answer for the
	// question. The controller treats it as a successful submission.
	ErrAlreadyAnswered = errors.New("examflow: question already answered")

	// ErrSectionUnavailable means the server could not hand out the requested
	// section because it expired, was completed, or never started.
	ErrSectionUnavailable = errors.New("examflow: section unavailable")
)

// Errors returned by the state machine itself.
var (
	ErrNotStarted      = errors.New("examflow: attempt not started")
	ErrAlreadyStarted  = errors.New("examflow: attempt already started")
	ErrFinished        = errors.New("examflow: attempt finished")
	ErrAborted         = errors.New("examflow: attempt abandoned")
	ErrSectionLocked   = errors.New("examflow: section is locked")
	ErrSubmitInFlight  = errors.New("examflow: a submission is already in flight")
	ErrNoSelection     = errors.New("examflow: no choice selected")
	ErrUnknownChoice   = errors.New("examflow: choice does not belong to the question")
	ErrOutOfRange      = errors.New("examflow: question index out of range")
	ErrNothingToRetry  = errors.New("examflow: nothing to retry")
	ErrTransitioning   = errors.New("examflow: section transition in progress")
	ErrAlreadyRecorded = errors.New("examflow: question already confirmed")
)

// RetryableError wraps a failure the learner may retry by hand: a transient
// submission failure, a failed section confirmation, a failed finish call or
// a transient section load.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is, or wraps, a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
