// Package messagelog implements the append-only, single-rewrite-per-step
// conversation history: every assistant tool-call part ends up paired with
// exactly one adjacent tool-result message, with no orphans either way.
package messagelog

import "agentruntime/agent"

// History is an immutable prefix of committed messages, captured by Snapshot
// at the start of a step and replayed at the start of Commit.
type History []agent.Message

// Clone returns a deep copy of the history suitable for handing to callers
// that must not observe later mutation.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	return History(agent.CloneMessages([]agent.Message(h)))
}

// ToolResultEntry is a finished tool invocation awaiting commit.
type ToolResultEntry struct {
	ToolCallID string
	ToolName   string
	Output     agent.ToolOutput
}

// StepBuilder accumulates one step's worth of assistant content, tool
// results, and validation-failure user errors. It is owned exclusively by
// the dispatcher driving a single step; nothing here is safe for concurrent
// use by more than one goroutine at a time without external synchronization
// (the serialization spine in package dispatch provides that).
type StepBuilder struct {
	content     []agent.AssistantPart
	toolResults []ToolResultEntry
	userErrors  []string
}

// NewStepBuilder returns an empty builder.
func NewStepBuilder() *StepBuilder {
	return &StepBuilder{}
}

// AppendAssistantText records a text delta as an ordered assistant content part.
func (b *StepBuilder) AppendAssistantText(text string) {
	if text == "" {
		return
	}
	b.content = append(b.content, agent.TextPart(text))
}

// AppendAssistantToolCall records a parsed tool call as an ordered assistant
// content part. It must be called before the corresponding AppendToolResult.
func (b *StepBuilder) AppendAssistantToolCall(call agent.ToolCall) {
	b.content = append(b.content, agent.ToolCallPart(agent.CloneToolCall(call)))
}

// AppendToolResult records a finished tool invocation. Order of calls to
// AppendToolResult need not match tool-call parse order — Commit reorders
// tool messages to match the assistant content's tool-call part order,
// which is what actually keeps each result adjacent to its call.
func (b *StepBuilder) AppendToolResult(toolCallID, toolName string, output agent.ToolOutput) {
	b.toolResults = append(b.toolResults, ToolResultEntry{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Output:     agent.CloneToolOutput(output),
	})
}

// AppendUserError records a validation-failure notice. These are never
// paired with a tool message and are appended last, after all tool results.
func (b *StepBuilder) AppendUserError(text string) {
	if text == "" {
		return
	}
	b.userErrors = append(b.userErrors, text)
}

// HadToolCalls reports whether any tool-call parts were recorded this step.
func (b *StepBuilder) HadToolCalls() bool {
	for _, part := range b.content {
		if part.Kind == agent.PartKindToolCall {
			return true
		}
	}
	return false
}

// Log is the committed conversation history for one agent run. It is
// mutated only by the step runner that owns it, and only during Commit.
type Log struct {
	messages []agent.Message
}

// New returns a Log seeded with existing messages (e.g. a restored run, or
// a child agent's inherited history).
func New(seed []agent.Message) *Log {
	return &Log{messages: agent.CloneMessages(seed)}
}

// Snapshot captures the pre-step prefix. The returned History is detached
// from future mutation of the Log.
func (l *Log) Snapshot() History {
	return History(agent.CloneMessages(l.messages))
}

// Messages returns the current committed messages.
func (l *Log) Messages() []agent.Message {
	return agent.CloneMessages(l.messages)
}

// Commit replaces the log with snapshot ++ assistantContent (as one
// assistant message, if non-empty) ++ tool messages (reordered to match the
// assistant content's tool-call part order) ++ userErrors (as user
// messages). It fails with an InvariantBreach error, leaving the Log
// unmodified, if the tool-call parts and tool results are not in perfect
// bijection by id.
func (l *Log) Commit(runID agent.RunID, snapshot History, b *StepBuilder) error {
	resultByID := make(map[string]ToolResultEntry, len(b.toolResults))
	for _, result := range b.toolResults {
		if _, exists := resultByID[result.ToolCallID]; exists {
			return agent.NewError(agent.ErrorKindInvariantBreach, runID,
				"duplicate tool result for call id "+result.ToolCallID, nil)
		}
		resultByID[result.ToolCallID] = result
	}

	toolMessages := make([]agent.Message, 0, len(b.toolResults))
	seen := make(map[string]struct{}, len(b.toolResults))
	for _, part := range b.content {
		if part.Kind != agent.PartKindToolCall {
			continue
		}
		result, ok := resultByID[part.ToolCall.ID]
		if !ok {
			return agent.NewError(agent.ErrorKindInvariantBreach, runID,
				"tool call "+part.ToolCall.ID+" has no recorded result", nil)
		}
		seen[part.ToolCall.ID] = struct{}{}
		toolMessages = append(toolMessages, agent.ToolResultMessage(result.ToolCallID, result.ToolName, result.Output))
	}
	if len(seen) != len(resultByID) {
		for id := range resultByID {
			if _, ok := seen[id]; !ok {
				return agent.NewError(agent.ErrorKindInvariantBreach, runID,
					"tool result "+id+" has no matching tool-call part", nil)
			}
		}
	}

	next := make([]agent.Message, 0, len(snapshot)+1+len(toolMessages)+len(b.userErrors))
	next = append(next, agent.CloneMessages([]agent.Message(snapshot))...)
	if len(b.content) > 0 {
		assistantMessage := agent.CloneMessage(agent.Message{Role: agent.RoleAssistant, Content: b.content})
		next = append(next, assistantMessage)
	}
	next = append(next, toolMessages...)
	for _, text := range b.userErrors {
		next = append(next, agent.Message{Role: agent.RoleUser, Text: text})
	}

	l.messages = next
	return nil
}

// AppendUserMessage appends a plain user-authored message directly to the
// committed log, outside the normal Commit cycle. Used for steering and
// follow-up commands, which extend a run's history without spending a step.
func (l *Log) AppendUserMessage(text string) {
	if text == "" {
		return
	}
	l.messages = append(l.messages, agent.Message{Role: agent.RoleUser, Text: text})
}

// AppendInterruptionNotice appends an "interrupted" marker to the last
// assistant message's text content, or creates a new assistant message if
// the log is empty or does not end in one. Used by the step runner on abort.
func (l *Log) AppendInterruptionNotice(notice string) {
	if len(l.messages) > 0 {
		last := &l.messages[len(l.messages)-1]
		if last.Role == agent.RoleAssistant {
			last.Content = append(last.Content, agent.TextPart(notice))
			return
		}
	}
	l.messages = append(l.messages, agent.Message{
		Role:    agent.RoleAssistant,
		Content: []agent.AssistantPart{agent.TextPart(notice)},
	})
}
