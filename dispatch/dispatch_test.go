package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"agentruntime/agent"
	"agentruntime/messagelog"
	"agentruntime/registry"
)

type recordingSink struct {
	mu     sync.Mutex
	events []agent.Event
}

func (s *recordingSink) Emit(e agent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []agent.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Event, len(s.events))
	copy(out, s.events)
	return out
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	if err := reg.Register(registry.Descriptor{
		Name: "read_files",
		Kind: registry.HandlerKindNative,
		Native: func(ctx context.Context, call agent.ToolCall, runCtx agent.RunContext) (agent.ToolOutput, error) {
			return agent.JSONOutput(map[string]any{"a.ts": "x"}), nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(registry.Descriptor{
		Name: "slow_tool",
		Kind: registry.HandlerKindNative,
		Native: func(ctx context.Context, call agent.ToolCall, runCtx agent.RunContext) (agent.ToolOutput, error) {
			time.Sleep(20 * time.Millisecond)
			return agent.TextOutput("slow-done"), nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(registry.Descriptor{
		Name:          "end_turn",
		EndsAgentStep: true,
		Kind:          registry.HandlerKindNative,
		Native: func(ctx context.Context, call agent.ToolCall, runCtx agent.RunContext) (agent.ToolOutput, error) {
			return agent.TextOutput("turn ended"), nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(registry.Descriptor{
		Name: "spawn_agents",
		Kind: registry.HandlerKindNative,
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"agents"},
			"properties": map[string]any{
				"agents": map[string]any{"type": "array"},
			},
		},
	}); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestHappyPathSingleTool(t *testing.T) {
	reg := newTestRegistry(t)
	builder := messagelog.NewStepBuilder()
	sink := &recordingSink{}
	d := New(1, reg, builder, nil, nil, sink, agent.RunContext{RunID: "run-1"}, nil)

	d.builder.AppendAssistantText("ok: ")
	d.Dispatch(context.Background(), agent.ToolCall{ID: "call-1", Name: "read_files", Input: map[string]any{"paths": []any{"a.ts"}}})
	d.StreamEnded()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if d.HadToolCallError() {
		t.Fatal("expected no tool call error")
	}

	log := messagelog.New(nil)
	if err := log.Commit("run-1", messagelog.History{}, builder); err != nil {
		t.Fatalf("commit: %v", err)
	}
	messages := log.Messages()
	if len(messages) != 2 || messages[1].Role != agent.RoleTool {
		t.Fatalf("unexpected committed messages: %+v", messages)
	}
}

func TestSchemaInvalidSpawnRejectedWithoutToolMessage(t *testing.T) {
	reg := newTestRegistry(t)
	builder := messagelog.NewStepBuilder()
	sink := &recordingSink{}
	d := New(1, reg, builder, nil, nil, sink, agent.RunContext{RunID: "run-1"}, nil)

	d.Dispatch(context.Background(), agent.ToolCall{ID: "call-1", Name: "spawn_agents", Input: map[string]any{"agents": "not-an-array"}})
	d.StreamEnded()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if !d.HadToolCallError() {
		t.Fatal("expected hadToolCallError=true")
	}
	if builder.HadToolCalls() {
		t.Fatal("expected no tool-call part recorded")
	}

	events := sink.snapshot()
	for _, e := range events {
		if e.Type == agent.EventTypeToolCallStarted || e.Type == agent.EventTypeToolResult {
			t.Fatalf("expected no tool_call/tool_result UI events, got %+v", e)
		}
	}
}

func TestOrderingUnderAsyncHandler(t *testing.T) {
	reg := newTestRegistry(t)
	builder := messagelog.NewStepBuilder()
	sink := &recordingSink{}
	d := New(1, reg, builder, nil, nil, sink, agent.RunContext{RunID: "run-1"}, nil)

	d.Dispatch(context.Background(), agent.ToolCall{ID: "A", Name: "slow_tool"})
	d.StreamEnded()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 2 || events[0].Type != agent.EventTypeToolCallStarted || events[1].Type != agent.EventTypeToolResult {
		t.Fatalf("expected tool_call then tool_result, got %+v", events)
	}
}

func TestCallHandleWaitBlocksUntilResultRecorded(t *testing.T) {
	reg := newTestRegistry(t)
	builder := messagelog.NewStepBuilder()
	sink := &recordingSink{}
	d := New(1, reg, builder, nil, nil, sink, agent.RunContext{RunID: "run-1"}, nil)

	h := d.Dispatch(context.Background(), agent.ToolCall{ID: "A", Name: "slow_tool"})
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 2 || events[1].Type != agent.EventTypeToolResult {
		t.Fatalf("expected the result recorded before Wait returned, got %+v", events)
	}
}

func TestSuspendingToolRecordsResultAndEndsStep(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Register(registry.Descriptor{
		Name: "run_shell",
		Kind: registry.HandlerKindNative,
		Native: func(ctx context.Context, call agent.ToolCall, runCtx agent.RunContext) (agent.ToolOutput, error) {
			return nil, &agent.SuspendRequestError{
				Requirement: &agent.PendingRequirement{
					ID:     "req-1",
					Kind:   agent.RequirementKindApproval,
					Origin: agent.RequirementOriginTool,
					Prompt: "approve shell command",
				},
			}
		},
	}); err != nil {
		t.Fatal(err)
	}
	builder := messagelog.NewStepBuilder()
	sink := &recordingSink{}
	d := New(1, reg, builder, nil, nil, sink, agent.RunContext{RunID: "run-1"}, nil)

	d.Dispatch(context.Background(), agent.ToolCall{ID: "call-1", Name: "run_shell"})
	d.StreamEnded()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	requirement, suspended := d.Suspended()
	if !suspended || requirement.ID != "req-1" || requirement.ToolCallID != "call-1" {
		t.Fatalf("expected suspension with matching requirement, got %+v suspended=%v", requirement, suspended)
	}
	if name, ended := d.EndingToolName(); !ended || name != "run_shell" {
		t.Fatalf("expected suspend to end the step via run_shell, got %q ended=%v", name, ended)
	}

	log := messagelog.New(nil)
	if err := log.Commit("run-1", messagelog.History{}, builder); err != nil {
		t.Fatalf("commit: %v", err)
	}
	messages := log.Messages()
	if len(messages) != 2 || messages[1].Role != agent.RoleTool || !messages[1].Output.IsError() {
		t.Fatalf("expected paired error tool result for the suspending call, got %+v", messages)
	}
}

func TestEndOfTurnToolMarksStepEnding(t *testing.T) {
	reg := newTestRegistry(t)
	builder := messagelog.NewStepBuilder()
	sink := &recordingSink{}
	d := New(1, reg, builder, nil, nil, sink, agent.RunContext{RunID: "run-1"}, nil)

	d.Dispatch(context.Background(), agent.ToolCall{ID: "call-1", Name: "end_turn"})
	d.StreamEnded()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	name, ended := d.EndingToolName()
	if !ended || name != "end_turn" {
		t.Fatalf("expected end_turn to end the step, got %q ended=%v", name, ended)
	}
}
