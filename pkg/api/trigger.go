package api

// Trigger binds an event type to a workflow. When a matching event is
// published, the bus derives the idempotency key and initial context and
// asks the store to create-or-get the run.
//
// Key must be deterministic over the idempotency-relevant event fields, so
// duplicate deliveries of the same logical event map to the same key.
type Trigger struct {
	On       EventType
	Workflow string

	Key         func(Event) string
	InitContext func(Event) Context
}

// CancelTrigger binds an event type to the cancellation of an active run.
// When a matching event is published and When (if set) accepts it, the bus
// cancels the non-terminal run with the derived key, so its pending steps
// never execute.
type CancelTrigger struct {
	On       EventType
	Workflow string

	Key  func(Event) string
	When func(Event) bool
}
