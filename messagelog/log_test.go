package messagelog

import (
	"errors"
	"testing"

	"agentruntime/agent"
)

func TestCommitHappyPathSingleTool(t *testing.T) {
	log := New(nil)
	snapshot := log.Snapshot()

	builder := NewStepBuilder()
	builder.AppendAssistantText("ok: ")
	call := agent.ToolCall{ID: "call-1", Name: "read_files", Input: map[string]any{"paths": []any{"a.ts"}}}
	builder.AppendAssistantToolCall(call)
	builder.AppendToolResult(call.ID, call.Name, agent.JSONOutput(map[string]any{"a.ts": "x"}))

	if err := log.Commit("run-1", snapshot, builder); err != nil {
		t.Fatalf("commit: %v", err)
	}

	messages := log.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != agent.RoleAssistant {
		t.Fatalf("expected assistant message first, got %s", messages[0].Role)
	}
	if len(messages[0].Content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(messages[0].Content))
	}
	if messages[1].Role != agent.RoleTool || messages[1].ToolCallID != "call-1" {
		t.Fatalf("expected tool message paired to call-1, got %+v", messages[1])
	}
}

func TestCommitOrdersToolMessagesByToolCallPartOrder(t *testing.T) {
	log := New(nil)
	snapshot := log.Snapshot()

	builder := NewStepBuilder()
	callA := agent.ToolCall{ID: "A", Name: "slow"}
	callB := agent.ToolCall{ID: "B", Name: "fast"}
	builder.AppendAssistantToolCall(callA)
	builder.AppendAssistantToolCall(callB)
	// Results recorded out of parse order (B finished first).
	builder.AppendToolResult("B", "fast", agent.TextOutput("b-done"))
	builder.AppendToolResult("A", "slow", agent.TextOutput("a-done"))

	if err := log.Commit("run-1", snapshot, builder); err != nil {
		t.Fatalf("commit: %v", err)
	}

	messages := log.Messages()
	if messages[1].ToolCallID != "A" || messages[2].ToolCallID != "B" {
		t.Fatalf("expected tool messages in parse order A,B; got %s,%s", messages[1].ToolCallID, messages[2].ToolCallID)
	}
}

func TestCommitRejectsOrphanToolResult(t *testing.T) {
	log := New(nil)
	snapshot := log.Snapshot()

	builder := NewStepBuilder()
	builder.AppendToolResult("ghost", "read_files", agent.TextOutput("x"))

	err := log.Commit("run-1", snapshot, builder)
	if err == nil {
		t.Fatal("expected invariant breach error")
	}
	var runtimeErr *agent.Error
	if !errors.As(err, &runtimeErr) || runtimeErr.Kind != agent.ErrorKindInvariantBreach {
		t.Fatalf("expected InvariantBreach, got %v", err)
	}
	if len(log.Messages()) != 0 {
		t.Fatal("log must be unmodified on commit failure")
	}
}

func TestCommitRejectsToolCallWithoutResult(t *testing.T) {
	log := New(nil)
	snapshot := log.Snapshot()

	builder := NewStepBuilder()
	builder.AppendAssistantToolCall(agent.ToolCall{ID: "call-1", Name: "read_files"})

	err := log.Commit("run-1", snapshot, builder)
	if err == nil {
		t.Fatal("expected invariant breach error")
	}
}

func TestSchemaInvalidSpawnProducesUserErrorNoToolMessage(t *testing.T) {
	log := New(nil)
	snapshot := log.Snapshot()

	builder := NewStepBuilder()
	builder.AppendAssistantText("let me check that")
	builder.AppendUserError("Error during tool call: Invalid parameters for spawn_agents. Please check the tool name and arguments and try again.")

	if err := log.Commit("run-1", snapshot, builder); err != nil {
		t.Fatalf("commit: %v", err)
	}

	messages := log.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected assistant text + trailing user error, got %d messages", len(messages))
	}
	if messages[1].Role != agent.RoleUser {
		t.Fatalf("expected trailing user error message, got role %s", messages[1].Role)
	}
}

func TestAppendInterruptionNoticeExtendsLastAssistantMessage(t *testing.T) {
	log := New([]agent.Message{
		{Role: agent.RoleAssistant, Content: []agent.AssistantPart{agent.TextPart("partial")}},
	})
	log.AppendInterruptionNotice("[Request interrupted by user]")

	messages := log.Messages()
	last := messages[len(messages)-1]
	if last.Role != agent.RoleAssistant {
		t.Fatalf("expected assistant message, got %s", last.Role)
	}
	if len(last.Content) != 2 {
		t.Fatalf("expected interruption notice appended as new part, got %d parts", len(last.Content))
	}
}

func TestSnapshotIsDetachedFromFutureCommits(t *testing.T) {
	log := New([]agent.Message{{Role: agent.RoleUser, Text: "hi"}})
	snapshot := log.Snapshot()

	builder := NewStepBuilder()
	builder.AppendAssistantText("hello")
	if err := log.Commit("run-1", snapshot, builder); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if len(snapshot) != 1 {
		t.Fatalf("expected snapshot to remain at 1 message, got %d", len(snapshot))
	}
}
