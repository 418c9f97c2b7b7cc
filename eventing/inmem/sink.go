// Package inmem implements a dispatch.Sink that captures emitted events in
// memory, for local development and as the default sink wired by
// cmd/agentruntimed when no external event stream is configured.
package inmem

import (
	"sync"

	"agentruntime/agent"
	"agentruntime/dispatch"
)

// Sink captures runtime events in memory and exposes deterministic snapshots.
type Sink struct {
	mu     sync.RWMutex
	events []agent.Event
}

var _ dispatch.Sink = (*Sink)(nil)

// New returns an empty sink.
func New() *Sink {
	return &Sink{events: make([]agent.Event, 0)}
}

// Emit records event after validating it. An invalid event is dropped
// rather than panicking a caller that cannot itself recover from a bad
// emit — publishing is always best-effort from the producer's perspective.
func (s *Sink) Emit(event agent.Event) {
	if agent.ValidateEvent(event) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(event))
}

// Events returns a deep-cloned snapshot of everything recorded so far, in
// emission order.
func (s *Sink) Events() []agent.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.Event, len(s.events))
	for i := range s.events {
		out[i] = cloneEvent(s.events[i])
	}
	return out
}

func cloneEvent(in agent.Event) agent.Event {
	out := in
	if in.Message != nil {
		message := agent.CloneMessage(*in.Message)
		out.Message = &message
	}
	out.Output = agent.CloneToolOutput(in.Output)
	return out
}
