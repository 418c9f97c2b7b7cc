// Package ports declares the narrow interfaces the agent runtime depends on
// and that a host application implements: the LLM provider, client-delegated
// tool execution, telemetry, credit ledger, and injected primitives.
package ports

import (
	"context"

	"agentruntime/agent"
)

// StreamEvent is one unit produced by an LLMPort's stream. Exactly one of
// the payload fields is populated, selected by Type.
type StreamEvent struct {
	Type           StreamEventType
	TextDelta      string
	ReasoningDelta string
	ToolCall       *agent.ToolCall
}

// StreamEventType discriminates StreamEvent payloads.
type StreamEventType string

const (
	StreamEventTextDelta      StreamEventType = "text-delta"
	StreamEventReasoningDelta StreamEventType = "reasoning-delta"
	StreamEventToolCall       StreamEventType = "tool-call-structured"
	StreamEventEnd            StreamEventType = "end"
)

// Usage reports billable consumption for a completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Credits      int64
}

// CompletionRequest is the rendered input to one model call.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []agent.Message
	Tools        []agent.ToolDefinition
}

// StreamResult is the terminal value of a stream, available once the
// channel returned by LLMPort.Stream closes.
type StreamResult struct {
	MessageID string
	Usage     Usage
	Err       error
}

// LLMPort is the abstract language-model provider boundary. The core never
// sees a concrete wire format.
type LLMPort interface {
	// Stream begins a streaming completion. The returned channel is closed
	// by the implementation once the stream ends or ctx is cancelled; result
	// is populated synchronously before the channel closes.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, *StreamResult)

	// Complete performs a non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (text string, usage Usage, err error)

	// Structured performs a non-streaming completion constrained to a JSON schema.
	Structured(ctx context.Context, req CompletionRequest, schema map[string]any) (value any, usage Usage, err error)
}

// ToolClientPort forwards client-delegated tool calls to the surrounding
// host application (file reads, shell execution, etc.).
type ToolClientPort interface {
	Request(ctx context.Context, toolName string, input map[string]any, runCtx agent.RunContext) (agent.ToolOutput, error)
}

// SpawnChildPort is the opaque handle the spawn_agents tool uses to recurse
// into the orchestrator. It is implemented by the orchestrator itself,
// in-process, and never crosses a host boundary.
type SpawnChildPort interface {
	// RunChild resolves spec and recursively runs the child to a terminal
	// status before returning, so a sync caller can read the child's final
	// AgentState (in particular CreditsUsed) to aggregate inline.
	RunChild(ctx context.Context, parent agent.RunContext, spec ChildSpec) (agent.AgentState, error)
	// SpawnChildAsync resolves spec, admits it the same way RunChild does,
	// and returns its assigned run id as soon as it is minted — the run
	// itself continues in the background. Its credits are rolled up later,
	// by the reconcile package, once it reaches a terminal status.
	SpawnChildAsync(ctx context.Context, parent agent.RunContext, spec ChildSpec) (agent.RunID, error)
}

// ChildSpec describes one child agent to spawn.
type ChildSpec struct {
	AgentType string
	Prompt    string
	Params    map[string]any
}

// TelemetrySink receives fire-and-forget run/step records. Failures here are
// logged by the caller but never fail the run.
type TelemetrySink interface {
	StartRun(ctx context.Context, rec StartRunRecord)
	AddStep(ctx context.Context, rec StepRecord)
	FinishRun(ctx context.Context, rec FinishRunRecord)
}

// StartRunRecord is emitted when a run begins.
type StartRunRecord struct {
	RunID        agent.RunID
	ParentRunIDs []agent.RunID
	AgentID      string
	UserID       string
}

// StepStatus classifies a completed step for telemetry.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusError     StepStatus = "error"
	StepStatusAborted   StepStatus = "aborted"
	StepStatusSuspended StepStatus = "suspended"
)

// StepRecord is emitted after each committed (or terminal) step.
type StepRecord struct {
	RunID        agent.RunID
	StepNumber   int
	Credits      int64
	ChildRunIDs  []agent.RunID
	MessageID    string
	Status       StepStatus
	ErrorMessage string
}

// FinishRunRecord is emitted once when a run reaches a terminal state.
type FinishRunRecord struct {
	RunID         agent.RunID
	Status        agent.AgentRunStatus
	TotalSteps    int
	DirectCredits int64
	TotalCredits  int64
}

// PreflightResult is returned by CreditBackend.Preflight.
type PreflightResult struct {
	OK           bool
	Balance      int64
	Insufficient bool
}

// SettleResult is returned by CreditBackend.Settle.
type SettleResult struct {
	Charged               bool
	ChargedToOrganization bool
	Insufficient          bool
}

// CreditBackend is the transactional ledger boundary wrapped by package
// creditgate's retry policy.
type CreditBackend interface {
	Preflight(ctx context.Context, userID string, minRequired int64) (PreflightResult, error)
	Settle(ctx context.Context, entry agent.CreditLedgerEntry) (SettleResult, error)
}

// TemplateFetcher is the credit backend's sibling port: a remote catalog of
// published agent templates, consulted by the template assembler on a local
// cache miss.
type TemplateFetcher interface {
	FetchTemplate(ctx context.Context, publisher, id, version string) (agent.AgentTemplate, error)
}

// RunStore persists AgentState with optimistic concurrency: Save fails with
// agent.ErrRunVersionConflict if the stored version has moved since Load.
type RunStore interface {
	Save(ctx context.Context, state agent.AgentState) error
	Load(ctx context.Context, runID agent.RunID) (agent.AgentState, error)
}

// Logger is the injected structured-logging primitive. Implementations
// typically wrap log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock is the injected time primitive, substitutable in tests.
type Clock interface {
	Now() (unixNano int64)
	Sleep(ctx context.Context, d int64) error
}

// IDGen is the injected identifier primitive for run ids and tool-call ids.
type IDGen interface {
	NewID() string
}
