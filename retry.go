package flowkit

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with FlowBuilder.StepWithRetry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts: maxAttempts,
		},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - base is the delay before the first retry; it doubles per attempt.
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(30*time.Second, time.Hour)
func (r RetryBuilder) WithExponentialBackoff(base, max time.Duration) RetryBuilder {
	p := r.policy
	p.BaseBackoff = base
	p.MaxBackoff = max
	return RetryBuilder{policy: p}
}

// WithConstantBackoff configures a constant delay between retries.
//
// This is equivalent to an exponential backoff capped at its own base.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.BaseBackoff = delay
	p.MaxBackoff = delay
	return RetryBuilder{policy: p}
}

// Immediate disables any delay between retries.
// Retries will still respect MaxAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.BaseBackoff = 0
	p.MaxBackoff = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy to be passed to
// FlowBuilder.StepWithRetry.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
