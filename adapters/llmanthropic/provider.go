// Package llmanthropic implements ports.LLMPort against the Anthropic
// Messages API, translating the runtime's message/tool vocabulary into
// Anthropic's content-block wire format and back.
package llmanthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"agentruntime/agent"
	"agentruntime/ports"
)

const defaultMaxTokens = 4096

// Provider is a ports.LLMPort backed by the official Anthropic SDK.
type Provider struct {
	client    anthropic.Client
	maxTokens int64
}

var _ ports.LLMPort = (*Provider)(nil)

// New constructs a Provider. baseURL defaults to the public Anthropic API
// when empty.
func New(baseURL, apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llmanthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...), maxTokens: defaultMaxTokens}, nil
}

// Stream begins a streaming completion, translating Anthropic's
// content-block delta events into ports.StreamEvent as they arrive.
func (p *Provider) Stream(ctx context.Context, req ports.CompletionRequest) (<-chan ports.StreamEvent, *ports.StreamResult) {
	out := make(chan ports.StreamEvent, 16)
	result := &ports.StreamResult{}

	params, err := buildParams(req, p.maxTokens)
	if err != nil {
		result.Err = err
		close(out)
		return out, result
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(out)

		msg := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				result.Err = fmt.Errorf("llmanthropic: accumulate stream event: %w", err)
				return
			}

			deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			switch delta := deltaEvent.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				out <- ports.StreamEvent{Type: ports.StreamEventTextDelta, TextDelta: delta.Text}
			case anthropic.ThinkingDelta:
				out <- ports.StreamEvent{Type: ports.StreamEventReasoningDelta, ReasoningDelta: delta.Thinking}
			}
		}
		if err := stream.Err(); err != nil {
			result.Err = fmt.Errorf("llmanthropic: stream: %w", err)
			return
		}

		result.MessageID = msg.ID
		result.Usage = usageFrom(msg.Usage)
		for _, call := range toolCallsIn(msg.Content) {
			out <- ports.StreamEvent{Type: ports.StreamEventToolCall, ToolCall: &call}
		}
		out <- ports.StreamEvent{Type: ports.StreamEventEnd}
	}()

	return out, result
}

// Complete performs a non-streaming completion and returns its text content.
func (p *Provider) Complete(ctx context.Context, req ports.CompletionRequest) (string, ports.Usage, error) {
	params, err := buildParams(req, p.maxTokens)
	if err != nil {
		return "", ports.Usage{}, err
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", ports.Usage{}, fmt.Errorf("llmanthropic: complete: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), usageFrom(msg.Usage), nil
}

// Structured performs a completion forced to call a synthetic tool whose
// input schema is the caller's schema, then returns that tool call's
// arguments as the structured value. Anthropic has no native JSON-mode
// response format, so tool forcing is the idiomatic substitute.
func (p *Provider) Structured(ctx context.Context, req ports.CompletionRequest, schema map[string]any) (any, ports.Usage, error) {
	const toolName = "emit_structured_output"

	params, err := buildParams(req, p.maxTokens)
	if err != nil {
		return nil, ports.Usage{}, err
	}
	params.Tools = []anthropic.ToolUnionParam{
		convertToolDefinition(agent.ToolDefinition{Name: toolName, Description: "Emit the final structured result.", InputSchema: schema}),
	}
	params.ToolChoice = anthropic.ToolChoiceParamOfTool(toolName)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, ports.Usage{}, fmt.Errorf("llmanthropic: structured: %w", err)
	}
	for _, block := range msg.Content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok && toolUse.Name == toolName {
			var value any
			if err := json.Unmarshal(toolUse.Input, &value); err != nil {
				return nil, ports.Usage{}, fmt.Errorf("llmanthropic: unmarshal structured output: %w", err)
			}
			return value, usageFrom(msg.Usage), nil
		}
	}
	return nil, ports.Usage{}, fmt.Errorf("llmanthropic: model did not emit %s", toolName)
}

func usageFrom(u anthropic.Usage) ports.Usage {
	return ports.Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		Credits:      u.InputTokens + u.OutputTokens,
	}
}

func toolCallsIn(content []anthropic.ContentBlockUnion) []agent.ToolCall {
	var calls []agent.ToolCall
	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		var input map[string]any
		if err := json.Unmarshal(toolUse.Input, &input); err != nil {
			continue
		}
		calls = append(calls, agent.ToolCall{ID: toolUse.ID, Name: toolUse.Name, Input: input})
	}
	return calls
}

func buildParams(req ports.CompletionRequest, maxTokens int64) (anthropic.MessageNewParams, error) {
	messages, system := convertMessages(req.Messages)
	if req.SystemPrompt != "" {
		system = append([]anthropic.TextBlockParam{{Text: req.SystemPrompt}}, system...)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, def := range req.Tools {
			tools = append(tools, convertToolDefinition(def))
		}
		params.Tools = tools
	}
	return params, nil
}

// convertMessages translates the transcript into Anthropic message params,
// lifting system-role messages out into the separate system block list
// Anthropic's API requires.
func convertMessages(in []agent.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(in))

	for _, m := range in {
		switch m.Role {
		case agent.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Text})

		case agent.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))

		case agent.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
			for _, part := range m.Content {
				switch part.Kind {
				case agent.PartKindText:
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				case agent.PartKindToolCall:
					if part.ToolCall != nil {
						blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, part.ToolCall.Input, part.ToolCall.Name))
					}
				}
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case agent.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, toolResultText(m), m.Output.IsError())))
		}
	}

	return out, system
}

// toolResultText flattens a tool-result message's structured output into a
// single string, the only content form Anthropic's tool_result block
// accepts for non-multimodal results.
func toolResultText(m agent.Message) string {
	if len(m.Output) == 0 {
		return m.Text
	}
	var sb strings.Builder
	for i, part := range m.Output {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch part.Type {
		case agent.OutputKindText, agent.OutputKindErrorText:
			fmt.Fprint(&sb, part.Value)
		default:
			if raw, err := json.Marshal(part.Value); err == nil {
				sb.Write(raw)
			}
		}
	}
	return sb.String()
}

// convertToolDefinition maps a JSON-schema tool definition to Anthropic's
// ToolUnionParam, pulling properties/required out of the raw schema map.
func convertToolDefinition(def agent.ToolDefinition) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := def.InputSchema["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	switch required := def.InputSchema["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		strs := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				strs = append(strs, s)
			}
		}
		schema.Required = strs
	}
	if defs, ok := def.InputSchema["$defs"]; ok {
		schema.ExtraFields = map[string]any{"$defs": defs}
	}

	tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
	if def.Description != "" {
		tool.OfTool.Description = anthropic.String(def.Description)
	}
	return tool
}
