package toolclientmcp

import (
	"context"
	"errors"
	"testing"

	"agentruntime/agent"
	"agentruntime/policy/shellapproval"
)

type stubToolClient struct {
	lastToolName string
	lastInput    map[string]any
	output       agent.ToolOutput
}

func (s *stubToolClient) Request(ctx context.Context, toolName string, input map[string]any, runCtx agent.RunContext) (agent.ToolOutput, error) {
	s.lastToolName = toolName
	s.lastInput = input
	return s.output, nil
}

func TestGatedPassesThroughNonShellTools(t *testing.T) {
	inner := &stubToolClient{output: agent.TextOutput("ok")}
	gated := NewGated(inner, shellapproval.New(nil))

	out, err := gated.Request(context.Background(), "read_files", map[string]any{"path": "a.ts"}, agent.RunContext{RunID: "run-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.lastToolName != "read_files" {
		t.Fatalf("expected pass-through to inner client, got %q", inner.lastToolName)
	}
	if out.IsError() {
		t.Fatalf("expected non-error output, got %+v", out)
	}
}

func TestGatedSuspendsDeniedShellCommand(t *testing.T) {
	inner := &stubToolClient{output: agent.TextOutput("should not run")}
	gated := NewGated(inner, shellapproval.New(nil))

	_, err := gated.Request(context.Background(), ShellToolName, map[string]any{"command": "rm -rf /"}, agent.RunContext{RunID: "run-1"})

	var suspend *agent.SuspendRequestError
	if !errors.As(err, &suspend) {
		t.Fatalf("expected SuspendRequestError, got %v", err)
	}
	if suspend.Requirement.Kind != agent.RequirementKindApproval || suspend.Requirement.Fingerprint == "" {
		t.Fatalf("expected approval requirement with fingerprint, got %+v", suspend.Requirement)
	}
	if inner.lastToolName != "" {
		t.Fatal("expected inner client not to be called for a denied command")
	}
}

func TestGatedAllowsReplayAfterApproval(t *testing.T) {
	inner := &stubToolClient{output: agent.TextOutput("rm ran")}
	gated := NewGated(inner, shellapproval.New(nil))
	runCtx := agent.RunContext{RunID: "run-1"}

	_, err := gated.Request(context.Background(), ShellToolName, map[string]any{"command": "rm -rf /"}, runCtx)
	var suspend *agent.SuspendRequestError
	if !errors.As(err, &suspend) {
		t.Fatalf("expected SuspendRequestError on first attempt, got %v", err)
	}

	ctx := agent.WithApprovedToolCallReplayOverride(context.Background(), agent.ApprovedToolCallReplayOverride{
		Fingerprint: suspend.Requirement.Fingerprint,
	})
	out, err := gated.Request(ctx, ShellToolName, map[string]any{"command": "rm -rf /"}, runCtx)
	if err != nil {
		t.Fatalf("expected replay to succeed, got error: %v", err)
	}
	if inner.lastToolName != ShellToolName {
		t.Fatal("expected replay to forward to inner client")
	}
	if out.IsError() {
		t.Fatalf("expected non-error output, got %+v", out)
	}
}

func TestGatedAllowsCommandsWithinPolicy(t *testing.T) {
	inner := &stubToolClient{output: agent.TextOutput("listed")}
	gated := NewGated(inner, shellapproval.New(nil))

	_, err := gated.Request(context.Background(), ShellToolName, map[string]any{"command": "ls -la"}, agent.RunContext{RunID: "run-1"})
	if err != nil {
		t.Fatalf("expected allowed command to pass, got error: %v", err)
	}
	if inner.lastToolName != ShellToolName {
		t.Fatal("expected allowed command to reach inner client")
	}
}
