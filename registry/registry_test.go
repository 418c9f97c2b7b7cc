package registry

import (
	"context"
	"errors"
	"testing"

	"agentruntime/agent"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	err := r.Register(Descriptor{
		Name: "read_files",
		Kind: HandlerKindNative,
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"paths"},
			"properties": map[string]any{
				"paths": map[string]any{"type": "array"},
			},
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	d, ok := r.Lookup("read_files")
	if !ok {
		t.Fatal("expected descriptor to be found")
	}
	if d.Name != "read_files" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}

func TestRegisterEmptyNameRejected(t *testing.T) {
	r := New()
	if err := r.Register(Descriptor{}); !errors.Is(err, ErrToolNameEmpty) {
		t.Fatalf("expected ErrToolNameEmpty, got %v", err)
	}
}

func TestValidateInputRejectsMissingRequiredField(t *testing.T) {
	r := New()
	_ = r.Register(Descriptor{
		Name: "spawn_agents",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"agents"},
			"properties": map[string]any{
				"agents": map[string]any{"type": "array"},
			},
		},
	})

	err := r.ValidateInput("spawn_agents", map[string]any{"agents": "not-an-array"})
	if !errors.Is(err, ErrSchemaInvalid) {
		t.Fatalf("expected ErrSchemaInvalid, got %v", err)
	}
}

func TestValidateInputUnregisteredTool(t *testing.T) {
	r := New()
	err := r.ValidateInput("ghost", nil)
	if !errors.Is(err, ErrToolUnregistered) {
		t.Fatalf("expected ErrToolUnregistered, got %v", err)
	}
}

func TestDefinitionsRestrictedByAllowlist(t *testing.T) {
	r := New()
	_ = r.Register(Descriptor{Name: "a"})
	_ = r.Register(Descriptor{Name: "b"})

	defs := r.Definitions([]string{"b"})
	if len(defs) != 1 || defs[0].Name != "b" {
		t.Fatalf("expected only tool b, got %+v", defs)
	}
}

func TestNativeHandlerInvocation(t *testing.T) {
	r := New()
	_ = r.Register(Descriptor{
		Name: "echo",
		Kind: HandlerKindNative,
		Native: func(ctx context.Context, call agent.ToolCall, runCtx agent.RunContext) (agent.ToolOutput, error) {
			return agent.TextOutput(call.Input["text"].(string)), nil
		},
	})

	d, ok := r.Lookup("echo")
	if !ok {
		t.Fatal("expected echo registered")
	}
	out, err := d.Native(context.Background(), agent.ToolCall{Input: map[string]any{"text": "hi"}}, agent.RunContext{})
	if err != nil {
		t.Fatalf("native handler: %v", err)
	}
	if out.IsError() {
		t.Fatal("expected non-error output")
	}
}
