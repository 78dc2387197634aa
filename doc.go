// Package flowkit provides a durable background-workflow engine for Go
// backend services.
//
// Flowkit turns domain events into long-running, crash-safe workflows: a
// story that must disappear 24 hours after posting, a reminder email for a
// connection request that was never answered, a digest of messages a user
// has not seen. The caller publishes an event and moves on; flowkit owns the
// delay, the retries, and the eventual side effect.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Event bus and triggers
//  3. FlowBuilder
//  4. StepFunc
//  5. worker.Pool
//
// # Engine
//
// The Engine stores workflow definitions, persists every run and its step
// history, and advances due runs under a lease. Engines can be backed by
// different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Redis
//
// All coordination flows through the run store: any number of worker pools,
// in any number of processes, may sweep the same store concurrently. The
// store's lease compare-and-swap is the only serialization point, and losing
// a lease race is a silent no-op.
//
// # Event bus and triggers
//
// Publish delivers a domain event (user.created, story.created,
// message.sent, ...) to the engine. Registered triggers map the event to a
// workflow, compute an idempotency key, and create a run, or quietly do
// nothing when an active run with that key already exists. Cancel triggers
// do the inverse: story.deleted cancels the pending expiry run for that
// story. Publish never returns an error to the caller; failures surface
// through run state and logs only.
//
// # FlowBuilder
//
// FlowBuilder provides the declarative API used to define workflows:
//
//	flowkit.New("connection-reminder").
//	    Step("waitForReminderWindow", flowkit.SleepUntilKey("requestedAt", 24*time.Hour)).
//	    Step("checkStillPending", checkStillPending).
//	    StepWithRetry("sendReminderEmail", sendReminder,
//	        flowkit.Retry(3).WithExponentialBackoff(30*time.Second, time.Hour).Policy())
//
// Definitions created with FlowBuilder are registered into an Engine before
// any event referencing them is published.
//
// # StepFunc
//
// A StepFunc is the fundamental executable unit of a workflow:
//
//	type StepFunc func(ctx context.Context, rc Context) (Context, error)
//
// Steps receive the run context (a durable key-value map) and return output
// that is merged into it for later steps. Steps must be idempotent: a worker
// crash re-executes the interrupted step, and external side effects must be
// safe under duplicate invocation. A step parks its run by returning
// NewSleepUntilError, ends it early with NewShortCircuitError or
// NewCancelRunError, and any other error is transient and retried per the
// step's RetryPolicy.
//
// # worker.Pool
//
// A Pool runs N sweep loops against an Engine. Each loop polls for due
// runs, leases them, and executes steps until the run parks or finishes. No
// goroutine ever blocks waiting for a deadline; a sleeping run costs nothing
// until it is due. The pool also purges terminal runs past the retention
// window.
//
// LocalRunner bundles an in-memory engine and a pool for development and
// unit tests, and pairs with ManualClock for simulated-time scenarios.
package flowkit
