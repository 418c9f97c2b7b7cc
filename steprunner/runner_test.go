package steprunner

import (
	"context"
	"testing"

	"agentruntime/agent"
	"agentruntime/dispatch"
	"agentruntime/messagelog"
	"agentruntime/ports"
	"agentruntime/registry"
)

type scriptedLLM struct {
	events []ports.StreamEvent
	usage  ports.Usage
}

func (s *scriptedLLM) Stream(ctx context.Context, req ports.CompletionRequest) (<-chan ports.StreamEvent, *ports.StreamResult) {
	out := make(chan ports.StreamEvent, len(s.events)+1)
	result := &ports.StreamResult{MessageID: "m-1", Usage: s.usage}
	go func() {
		defer close(out)
		for _, e := range s.events {
			select {
			case <-ctx.Done():
				return
			case out <- e:
			}
		}
	}()
	return out, result
}

func (s *scriptedLLM) Complete(ctx context.Context, req ports.CompletionRequest) (string, ports.Usage, error) {
	return "", ports.Usage{}, nil
}

func (s *scriptedLLM) Structured(ctx context.Context, req ports.CompletionRequest, schema map[string]any) (any, ports.Usage, error) {
	return nil, ports.Usage{}, nil
}

type countingIDGen struct{ n int }

func (g *countingIDGen) NewID() string {
	g.n++
	return "gen-id"
}

type noopSink struct{}

func (noopSink) Emit(agent.Event) {}

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
		Name:          "end_turn",
		EndsAgentStep: true,
		Kind:          registry.HandlerKindNative,
		Native: func(ctx context.Context, call agent.ToolCall, runCtx agent.RunContext) (agent.ToolOutput, error) {
			return agent.TextOutput("done"), nil
		},
	}); err != nil {
		t.Fatal(err)
	}
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
	return reg
}

func TestRunHappyPathSingleTool(t *testing.T) {
	reg := newTestRegistry(t)
	runner := &Runner{
		Registry: reg,
		LLM: &scriptedLLM{events: []ports.StreamEvent{
			{Type: ports.StreamEventTextDelta, TextDelta: "ok: "},
			{Type: ports.StreamEventToolCall, ToolCall: &agent.ToolCall{Name: "read_files", Input: map[string]any{"paths": []any{"a.ts"}}}},
			{Type: ports.StreamEventEnd},
		}},
		IDGen: &countingIDGen{},
		Sink:  noopSink{},
	}

	log := messagelog.New(nil)
	result := runner.Run(context.Background(), log, Input{
		Step:   1,
		RunCtx: agent.RunContext{RunID: "run-1"},
	})

	if result.State != StateCommitted {
		t.Fatalf("expected committed, got %v (err=%v)", result.State, result.Err)
	}
	if result.HadToolCallError {
		t.Fatal("expected no tool call error")
	}
	messages := log.Messages()
	if len(messages) != 2 || messages[1].Role != agent.RoleTool {
		t.Fatalf("unexpected messages: %+v", messages)
	}
}

func TestRunEndOfTurnToolStopsStepAndIgnoresTrailingText(t *testing.T) {
	reg := newTestRegistry(t)
	runner := &Runner{
		Registry: reg,
		LLM: &scriptedLLM{events: []ports.StreamEvent{
			{Type: ports.StreamEventToolCall, ToolCall: &agent.ToolCall{Name: "end_turn"}},
			{Type: ports.StreamEventTextDelta, TextDelta: "ignored"},
			{Type: ports.StreamEventEnd},
		}},
		IDGen: &countingIDGen{},
		Sink:  noopSink{},
	}

	log := messagelog.New(nil)
	result := runner.Run(context.Background(), log, Input{
		Step:   1,
		RunCtx: agent.RunContext{RunID: "run-1"},
	})

	if result.State != StateCommitted || !result.StepEnded || result.EndedByTool != "end_turn" {
		t.Fatalf("expected step ended by end_turn, got %+v", result)
	}
	for _, m := range log.Messages() {
		if m.TextOf() == "ignored" {
			t.Fatal("expected trailing text after end_turn to be dropped")
		}
	}
}

func TestRunSuspendsOnToolRequirement(t *testing.T) {
	reg := newTestRegistry(t)
	runner := &Runner{
		Registry: reg,
		LLM: &scriptedLLM{events: []ports.StreamEvent{
			{Type: ports.StreamEventToolCall, ToolCall: &agent.ToolCall{Name: "run_shell", Input: map[string]any{"command": "rm -rf /"}}},
			{Type: ports.StreamEventEnd},
		}},
		IDGen: &countingIDGen{},
		Sink:  noopSink{},
	}

	log := messagelog.New(nil)
	result := runner.Run(context.Background(), log, Input{
		Step:   1,
		RunCtx: agent.RunContext{RunID: "run-1"},
	})

	if result.State != StateCommitted {
		t.Fatalf("expected committed, got %v (err=%v)", result.State, result.Err)
	}
	if !result.Suspended || result.Requirement == nil || result.Requirement.ID != "req-1" {
		t.Fatalf("expected suspension with requirement req-1, got %+v", result)
	}
	if result.Requirement.ToolCallID == "" || result.Requirement.ToolName != "run_shell" {
		t.Fatalf("expected requirement to carry call id/tool name, got %+v", result.Requirement)
	}
	messages := log.Messages()
	if len(messages) != 2 || messages[1].Role != agent.RoleTool || !messages[1].Output.IsError() {
		t.Fatalf("expected paired error tool result for the suspending call, got %+v", messages)
	}
}

var _ dispatch.Sink = noopSink{}
