package toolclientmcp

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"agentruntime/agent"
)

func TestConvertResultMapsTextContent(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "42 files changed"}},
	}

	out := convertResult(result)

	if len(out) != 1 || out[0].Type != agent.OutputKindText || out[0].Value != "42 files changed" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.IsError() {
		t.Fatalf("expected non-error output, got %+v", out)
	}
}

func TestConvertResultMarksServerErrorContentAsError(t *testing.T) {
	result := &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "no such file"}},
	}

	out := convertResult(result)

	if !out.IsError() {
		t.Fatalf("expected error output, got %+v", out)
	}
}

func TestConvertResultFallsBackToGenericErrorTextWhenContentIsEmpty(t *testing.T) {
	result := &mcp.CallToolResult{IsError: true}

	out := convertResult(result)

	if len(out) != 1 || out[0].Type != agent.OutputKindErrorText {
		t.Fatalf("expected single error-text part, got %+v", out)
	}
}

func TestConvertResultHandlesNilResult(t *testing.T) {
	out := convertResult(nil)

	if len(out) != 1 || out[0].Type != agent.OutputKindText {
		t.Fatalf("expected empty text output, got %+v", out)
	}
}
