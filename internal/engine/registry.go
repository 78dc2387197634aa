package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/linkup-social/flowkit/pkg/api"
)

// ErrWorkflowNotFound is returned when a workflow definition is not
// registered.
var ErrWorkflowNotFound = errors.New("workflow not found")

// registry holds the static workflow definitions and the event-type trigger
// bindings. Everything is registered at process start; lookups after that
// are read-only, so a plain RWMutex suffices.
type registry struct {
	mu        sync.RWMutex
	workflows map[string]api.WorkflowDefinition
	triggers  map[api.EventType][]api.Trigger
	cancels   map[api.EventType][]api.CancelTrigger
}

func newRegistry() *registry {
	return &registry{
		workflows: make(map[string]api.WorkflowDefinition),
		triggers:  make(map[api.EventType][]api.Trigger),
		cancels:   make(map[api.EventType][]api.CancelTrigger),
	}
}

func (r *registry) registerWorkflow(def api.WorkflowDefinition) error {
	if def.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(def.Steps) == 0 {
		return errors.New("workflow must have at least one step")
	}
	for i, step := range def.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow %s: step %d has no name", def.Name, i)
		}
		if step.Fn == nil {
			return fmt.Errorf("workflow %s: step %q has nil function", def.Name, step.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[def.Name]; exists {
		return fmt.Errorf("workflow already registered: %s", def.Name)
	}
	r.workflows[def.Name] = def
	return nil
}

func (r *registry) workflow(name string) (api.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.workflows[name]
	if !ok {
		return api.WorkflowDefinition{}, ErrWorkflowNotFound
	}
	return def, nil
}

func (r *registry) registerTrigger(t api.Trigger) error {
	if t.On == "" {
		return errors.New("trigger event type is required")
	}
	if t.Key == nil {
		return fmt.Errorf("trigger for %s: key function is required", t.On)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[t.Workflow]; !ok {
		return fmt.Errorf("trigger for %s: unknown workflow %q", t.On, t.Workflow)
	}
	r.triggers[t.On] = append(r.triggers[t.On], t)
	return nil
}

func (r *registry) registerCancelTrigger(t api.CancelTrigger) error {
	if t.On == "" {
		return errors.New("cancel trigger event type is required")
	}
	if t.Key == nil {
		return fmt.Errorf("cancel trigger for %s: key function is required", t.On)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[t.Workflow]; !ok {
		return fmt.Errorf("cancel trigger for %s: unknown workflow %q", t.On, t.Workflow)
	}
	r.cancels[t.On] = append(r.cancels[t.On], t)
	return nil
}

func (r *registry) triggersFor(t api.EventType) []api.Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.triggers[t]
}

func (r *registry) cancelsFor(t api.EventType) []api.CancelTrigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancels[t]
}
