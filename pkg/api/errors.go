package api

import (
	"errors"
	"time"
)

// sleepUntilError is returned by steps that want to park the run until a
// future instant. The scheduler records no attempt for it: the step simply
// re-executes once the deadline passes, and only then produces its success
// record.
type sleepUntilError struct {
	Until time.Time
}

func (e *sleepUntilError) Error() string {
	return "sleeping until " + e.Until.Format(time.RFC3339)
}

// NewSleepUntilError signals the scheduler to set the run Sleeping with
// nextRunAt = until.
func NewSleepUntilError(until time.Time) error {
	return &sleepUntilError{Until: until}
}

// SleepDeadline returns (until, true) if err is a sleep request.
func SleepDeadline(err error) (time.Time, bool) {
	var s *sleepUntilError
	if errors.As(err, &s) {
		return s.Until, true
	}
	return time.Time{}, false
}

// shortCircuitError is a permanent outcome: the remaining steps are
// meaningless (e.g. the connection request was already accepted) and the run
// finishes Succeeded as a no-op. Never retried.
type shortCircuitError struct {
	Reason string
}

func (e *shortCircuitError) Error() string {
	return "short-circuit: " + e.Reason
}

// NewShortCircuitError finishes the run Succeeded without executing the
// remaining steps.
func NewShortCircuitError(reason string) error {
	return &shortCircuitError{Reason: reason}
}

// IsShortCircuit returns (reason, true) if err requests a Succeeded no-op.
func IsShortCircuit(err error) (string, bool) {
	var s *shortCircuitError
	if errors.As(err, &s) {
		return s.Reason, true
	}
	return "", false
}

// cancelRunError is a permanent outcome that finishes the run Cancelled.
type cancelRunError struct {
	Reason string
}

func (e *cancelRunError) Error() string {
	return "cancel run: " + e.Reason
}

// NewCancelRunError finishes the run Cancelled without executing the
// remaining steps. Never retried.
func NewCancelRunError(reason string) error {
	return &cancelRunError{Reason: reason}
}

// IsCancelRun returns (reason, true) if err requests cancellation.
func IsCancelRun(err error) (string, bool) {
	var c *cancelRunError
	if errors.As(err, &c) {
		return c.Reason, true
	}
	return "", false
}

// Any other error returned by a step is transient: the scheduler retries it
// with exponential backoff up to the step's MaxAttempts, then marks the run
// Failed.
