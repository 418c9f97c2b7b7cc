// Package toolclientmcp implements ports.ToolClientPort by proxying
// client-delegated tool calls to a single external process speaking the
// Model Context Protocol, so file reads, shell commands, and similar
// host-side operations run outside the runtime's own process.
package toolclientmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"agentruntime/agent"
	"agentruntime/ports"
)

// Config describes the external command used to launch the MCP server.
type Config struct {
	Command string
	Args    []string
	Env     []string
}

// Client holds a single initialized MCP session and forwards tool calls to
// it by name. It is not safe to share a Client across unrelated runs that
// need independent server processes; callers needing isolation construct
// one Client per process.
type Client struct {
	mu      sync.Mutex
	inner   *client.Client
	started bool
}

var _ ports.ToolClientPort = (*Client)(nil)

// New constructs a Client around an MCP server launched over stdio. The
// server process is started here; the MCP initialize handshake is deferred
// until the first Request call.
func New(cfg Config) (*Client, error) {
	inner, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("toolclientmcp: create client: %w", err)
	}
	return &Client{inner: inner}, nil
}

// Close shuts down the underlying MCP server process.
func (c *Client) Close() error {
	return c.inner.Close()
}

func (c *Client) ensureInitialized(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "agentruntime", Version: "0.1.0"}
	if _, err := c.inner.Initialize(ctx, req); err != nil {
		return fmt.Errorf("toolclientmcp: initialize: %w", err)
	}
	c.started = true
	return nil
}

// Request forwards one tool call by name to the MCP server and converts its
// result into a ToolOutput. runCtx is accepted for signature parity with
// ports.ToolClientPort; the current server has no notion of run identity.
func (c *Client) Request(ctx context.Context, toolName string, input map[string]any, _ agent.RunContext) (agent.ToolOutput, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = toolName
	callReq.Params.Arguments = input

	result, err := c.inner.CallTool(ctx, callReq)
	if err != nil {
		return nil, fmt.Errorf("toolclientmcp: call %s: %w", toolName, err)
	}

	return convertResult(result), nil
}

// convertResult maps an MCP CallToolResult's content blocks onto
// agent.OutputPart variants, preserving the server's own error flag.
func convertResult(result *mcp.CallToolResult) agent.ToolOutput {
	if result == nil {
		return agent.TextOutput("")
	}

	out := make(agent.ToolOutput, 0, len(result.Content))
	for _, block := range result.Content {
		switch content := block.(type) {
		case mcp.TextContent:
			kind := agent.OutputKindText
			if result.IsError {
				kind = agent.OutputKindErrorText
			}
			out = append(out, agent.OutputPart{Type: kind, Value: content.Text})
		case mcp.ImageContent:
			out = append(out, agent.OutputPart{Type: agent.OutputKindMedia, Value: map[string]any{
				"mimeType": content.MIMEType,
				"data":     content.Data,
			}})
		default:
			raw, err := json.Marshal(content)
			if err != nil {
				continue
			}
			kind := agent.OutputKindJSON
			if result.IsError {
				kind = agent.OutputKindErrorJSON
			}
			var value any
			if err := json.Unmarshal(raw, &value); err != nil {
				value = string(raw)
			}
			out = append(out, agent.OutputPart{Type: kind, Value: value})
		}
	}
	if len(out) == 0 && result.IsError {
		return agent.ToolOutput{{Type: agent.OutputKindErrorText, Value: "tool call failed"}}
	}
	return out
}
