package api

import (
	"context"
	"time"
)

// Context is the run's accumulated key/value state. The triggering event's
// fields seed it; each completed step may merge additional values into it.
//
// Values must be gob-encodable: durable stores persist the context as a blob.
type Context map[string]any

// Clone returns a shallow copy. The scheduler hands steps a clone so a
// failing attempt cannot leave partial writes behind.
func (c Context) Clone() Context {
	if c == nil {
		return Context{}
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge copies all entries of other into c and returns c.
func (c Context) Merge(other Context) Context {
	for k, v := range other {
		c[k] = v
	}
	return c
}

// String returns the value under key as a string, or "" when absent.
func (c Context) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Int returns the value under key as an int, tolerating the numeric types a
// decoded payload may carry.
func (c Context) Int(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Time returns the value under key as a time.Time, or the zero time.
func (c Context) Time(key string) time.Time {
	t, _ := c[key].(time.Time)
	return t
}

// StepFunc is a single step in a workflow. It receives the run's context and
// returns values to merge into it, or an error.
//
// Steps must be idempotent: a worker crash mid-step means the step executes
// again on the reclaimed run. They must also be pure with respect to the
// context map, touching the outside world only through the collaborator
// capabilities captured at definition time.
type StepFunc func(ctx context.Context, rc Context) (Context, error)

// StepDefinition describes a named step.
type StepDefinition struct {
	Name  string
	Fn    StepFunc
	Retry *RetryPolicy

	// DelayBeforeNext, when positive, parks the run Sleeping for the given
	// duration after this step succeeds instead of continuing immediately.
	DelayBeforeNext time.Duration
}

// WorkflowDefinition describes a workflow as a finite sequence of steps.
// Definitions are registered at process start and never mutated at runtime.
type WorkflowDefinition struct {
	Name  string
	Steps []StepDefinition
}

// RetryPolicy controls how a step is retried when it returns an error.
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Retry delays grow exponentially: BaseBackoff doubles per failed attempt,
// capped at MaxBackoff (no cap when MaxBackoff <= 0).
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Delay returns the backoff before retry number attempt (1-based, i.e. the
// delay scheduled after the attempt-th failure).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}
