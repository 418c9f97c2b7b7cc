// Package modeltest provides a scripted ports.LLMPort for tests that need a
// deterministic, pre-recorded model turn without a real provider adapter.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"agentruntime/ports"
)

// Turn configures one scripted streaming completion.
type Turn struct {
	Events  []ports.StreamEvent
	Usage   ports.Usage
	Err     error // if set, surfaces as StreamResult.Err rather than a tool call or text
}

// ScriptedLLM replays a fixed sequence of Turns, one per Stream call, for
// runtime component tests that need a deterministic model.
type ScriptedLLM struct {
	mu    sync.Mutex
	index int
	turns []Turn
}

var _ ports.LLMPort = (*ScriptedLLM)(nil)

// New returns a ScriptedLLM that replays turns in order, one per call to Stream.
func New(turns ...Turn) *ScriptedLLM {
	cloned := make([]Turn, len(turns))
	copy(cloned, turns)
	return &ScriptedLLM{turns: cloned}
}

// Stream returns the next scripted turn's events and result.
func (m *ScriptedLLM) Stream(_ context.Context, _ ports.CompletionRequest) (<-chan ports.StreamEvent, *ports.StreamResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(chan ports.StreamEvent, 1)
	close(out)
	if m.index >= len(m.turns) {
		return out, &ports.StreamResult{Err: fmt.Errorf("scripted model: turn %d requested but only %d scripted", m.index+1, len(m.turns))}
	}
	turn := m.turns[m.index]
	m.index++

	events := make(chan ports.StreamEvent, len(turn.Events))
	for _, e := range turn.Events {
		events <- e
	}
	close(events)
	return events, &ports.StreamResult{MessageID: fmt.Sprintf("scripted-%d", m.index), Usage: turn.Usage, Err: turn.Err}
}

// Complete is not used by the scripted turns and always errors; the runtime
// exclusively streams.
func (m *ScriptedLLM) Complete(_ context.Context, _ ports.CompletionRequest) (string, ports.Usage, error) {
	return "", ports.Usage{}, fmt.Errorf("modeltest: Complete is not scripted")
}

// Structured is not used by the scripted turns and always errors.
func (m *ScriptedLLM) Structured(_ context.Context, _ ports.CompletionRequest, _ map[string]any) (any, ports.Usage, error) {
	return nil, ports.Usage{}, fmt.Errorf("modeltest: Structured is not scripted")
}
