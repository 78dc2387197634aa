package flowkit

import (
	"fmt"
	"time"

	"github.com/linkup-social/flowkit/pkg/api"
)

// FlowBuilder provides a fluent API for defining workflows:
//
//	flow := flowkit.New("story-expiry").
//	    Step("waitForExpiry", waitForExpiry).
//	    Step("deleteStoryIfStillPresent", deleteStory)
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
type FlowBuilder struct {
	def api.WorkflowDefinition
}

// New creates a new workflow builder with the given name.
func New(name string) *FlowBuilder {
	return &FlowBuilder{
		def: api.WorkflowDefinition{
			Name:  name,
			Steps: make([]api.StepDefinition, 0),
		},
	}
}

// Name returns the workflow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying WorkflowDefinition.
// Typically used when interacting with lower-level APIs.
func (b *FlowBuilder) Definition() WorkflowDefinition {
	return b.def
}

// Step appends a basic step to the workflow.
func (b *FlowBuilder) Step(name string, fn StepFunc) *FlowBuilder {
	if name == "" {
		panic("flowkit: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("flowkit: step %q has nil function", name))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:  name,
		Fn:    fn,
		Retry: nil,
	})
	return b
}

// StepWithRetry appends a step that uses the given retry policy.
func (b *FlowBuilder) StepWithRetry(name string, fn StepFunc, retry RetryPolicy) *FlowBuilder {
	if name == "" {
		panic("flowkit: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("flowkit: step %q has nil function", name))
	}

	// Make a copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored definition.
	r := retry

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:  name,
		Fn:    fn,
		Retry: &r,
	})
	return b
}

// ThenWait makes the most recently added step park the run for d before the
// next step becomes due. It panics if no step has been added yet.
func (b *FlowBuilder) ThenWait(d time.Duration) *FlowBuilder {
	if len(b.def.Steps) == 0 {
		panic("flowkit: ThenWait requires a preceding step")
	}
	b.def.Steps[len(b.def.Steps)-1].DelayBeforeNext = d
	return b
}

// Register registers the built workflow with the given engine.
func (b *FlowBuilder) Register(eng Engine) error {
	return eng.RegisterWorkflow(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
