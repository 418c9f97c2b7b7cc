// Package streamparse consumes an abstract LLM token/event stream and emits
// a derived sequence of text, reasoning, and tool-call events — extracting
// tool calls both from structured provider events and from inline tag
// grammar embedded in free text.
package streamparse

import (
	"context"

	"agentruntime/agent"
	"agentruntime/ports"
)

// ParsedEventType discriminates ParsedEvent payloads.
type ParsedEventType string

const (
	ParsedEventText      ParsedEventType = "text"
	ParsedEventReasoning ParsedEventType = "reasoning"
	ParsedEventToolCall  ParsedEventType = "tool-call"
)

// ParsedEvent is one unit of the parser's derived output sequence.
type ParsedEvent struct {
	Type      ParsedEventType
	Text      string
	Reasoning string
	ToolCall  agent.ToolCall
	// Inline is true when ToolCall was extracted from the inline tag
	// grammar rather than a structured provider event. The dispatcher
	// must await an inline call's result before the parser hands it the
	// next event, so inline text that follows the closing tag stays
	// ordered after the call's effect.
	Inline bool
}

// Result is the terminal value of a parse, available once the channel
// returned by Run closes.
type Result struct {
	MessageID string
	Aborted   bool
}

// Run drives events to completion, emitting derived ParsedEvents on the
// returned channel in source order: every text chunk precedes any tool-call
// whose opening tag began after it, and tool-calls are emitted in source
// order. newToolCallID assigns a process-unique id to each extracted call
// (inline calls have no id of their own; structured calls get one if the
// port did not supply one). The returned *Result is populated before the
// channel closes.
func Run(ctx context.Context, events <-chan ports.StreamEvent, sourceResult *ports.StreamResult, newToolCallID func() string) (<-chan ParsedEvent, *Result) {
	out := make(chan ParsedEvent, 8)
	result := &Result{}

	scanner := newTagScanner(
		func(text string) {
			out <- ParsedEvent{Type: ParsedEventText, Text: text}
		},
		func(name string, params map[string]string, order []string) {
			input := make(map[string]any, len(order))
			for _, key := range order {
				input[key] = params[key]
			}
			out <- ParsedEvent{
				Type: ParsedEventToolCall,
				ToolCall: agent.ToolCall{
					ID:    newToolCallID(),
					Name:  name,
					Input: input,
				},
				Inline: true,
			}
		},
	)

	go func() {
		defer close(out)
		defer func() {
			if sourceResult != nil {
				result.MessageID = sourceResult.MessageID
			}
		}()

		for {
			select {
			case <-ctx.Done():
				result.Aborted = true
				scanner.reset()
				return
			case event, ok := <-events:
				if !ok {
					scanner.Flush()
					return
				}
				switch event.Type {
				case ports.StreamEventTextDelta:
					scanner.Feed(event.TextDelta)
				case ports.StreamEventReasoningDelta:
					if event.ReasoningDelta != "" {
						out <- ParsedEvent{Type: ParsedEventReasoning, Reasoning: event.ReasoningDelta}
					}
				case ports.StreamEventToolCall:
					if event.ToolCall == nil {
						continue
					}
					call := agent.CloneToolCall(*event.ToolCall)
					if call.ID == "" {
						call.ID = newToolCallID()
					}
					out <- ParsedEvent{Type: ParsedEventToolCall, ToolCall: call}
				case ports.StreamEventEnd:
					scanner.Flush()
					return
				}
			}
		}
	}()

	return out, result
}
