package agent

// RunID is the stable identifier for one agent run (root run or subagent spawn).
type RunID string

// AgentRunStatus captures coarse execution state for persistence and orchestration.
type AgentRunStatus string

const (
	AgentRunStatusPending      AgentRunStatus = "pending"
	AgentRunStatusRunning      AgentRunStatus = "running"
	AgentRunStatusSuspended    AgentRunStatus = "suspended"
	AgentRunStatusCompleted    AgentRunStatus = "completed"
	AgentRunStatusMaxSteps     AgentRunStatus = "max_steps"
	AgentRunStatusAborted      AgentRunStatus = "aborted"
	AgentRunStatusError        AgentRunStatus = "error"
	AgentRunStatusOutOfCredits AgentRunStatus = "out_of_credits"
)

// RequirementKind classifies why execution is suspended.
type RequirementKind string

const (
	RequirementKindApproval          RequirementKind = "approval"
	RequirementKindUserInput         RequirementKind = "user_input"
	RequirementKindExternalExecution RequirementKind = "external_execution"
)

// RequirementOrigin identifies where a pending requirement was created.
type RequirementOrigin string

const (
	RequirementOriginModel RequirementOrigin = "model"
	RequirementOriginTool  RequirementOrigin = "tool"
)

// ResolutionOutcome captures how a pending requirement was resolved.
type ResolutionOutcome string

const (
	ResolutionOutcomeApproved  ResolutionOutcome = "approved"
	ResolutionOutcomeRejected  ResolutionOutcome = "rejected"
	ResolutionOutcomeProvided  ResolutionOutcome = "provided"
	ResolutionOutcomeCompleted ResolutionOutcome = "completed"
)

// PendingRequirement describes the requirement that currently blocks run progress.
type PendingRequirement struct {
	ID          string            `json:"id"`
	Kind        RequirementKind   `json:"kind"`
	Origin      RequirementOrigin `json:"origin"`
	ToolCallID  string            `json:"tool_call_id,omitempty"`
	ToolName    string            `json:"tool_name,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
}

// Resolution provides the typed payload required to continue a suspended run.
type Resolution struct {
	RequirementID string            `json:"requirement_id"`
	Kind          RequirementKind   `json:"kind"`
	Outcome       ResolutionOutcome `json:"outcome"`
	Value         string            `json:"value,omitempty"`
}


// CreditEntryKind distinguishes a run's own charges from charges rolled up
// from spawned children.
type CreditEntryKind string

const (
	CreditEntryKindDirect  CreditEntryKind = "direct"
	CreditEntryKindSpawned CreditEntryKind = "spawned"
)

// CreditLedgerEntry is the unit of work consumed via CreditBackend. OperationID
// is idempotency-key-unique per charge.
type CreditLedgerEntry struct {
	UserID      string
	Amount      int64
	OperationID string
	Kind        CreditEntryKind
}

// RunContext is per-run immutable context threaded through a run and all of
// its descendants. Cancellation is carried by the context.Context passed
// alongside it, not by a field here.
type RunContext struct {
	RunID           RunID
	ParentRunIDs    []RunID
	UserID          string
	ClientSessionID string
	FingerprintID   string
	RepoID          string
	FileContext     map[string]any
}

// WithChild derives the RunContext for a spawned child run.
func (c RunContext) WithChild(childRunID RunID) RunContext {
	out := c
	out.ParentRunIDs = append(append([]RunID{}, c.ParentRunIDs...), c.RunID)
	out.RunID = childRunID
	return out
}

// RunInput configures a fresh top-level or spawned run.
type RunInput struct {
	RunID        RunID
	AgentType    string
	SystemPrompt string
	UserPrompt   string
	MaxSteps     int
	Tools        []ToolDefinition
	Params       map[string]any
}

// AgentState is the per-agent mutable record owned exclusively by the step
// runner driving it. Parent and child agents have distinct AgentStates;
// child state is never shared with the parent.
type AgentState struct {
	RunID                 RunID               `json:"run_id"`
	Version               int64               `json:"version"`
	AgentType             string              `json:"agent_type"`
	UserID                string              `json:"user_id,omitempty"`
	Step                  int                 `json:"step"`
	StepsRemaining        int                 `json:"steps_remaining"`
	Status                AgentRunStatus      `json:"status"`
	PendingRequirement    *PendingRequirement `json:"pending_requirement,omitempty"`
	MessageHistory        []Message           `json:"message_history,omitempty"`
	CreditsUsed           int64               `json:"credits_used"`
	DirectCreditsUsed     int64               `json:"direct_credits_used"`
	SpawnedChildRunIDs    []RunID             `json:"spawned_child_run_ids,omitempty"`
	ReconciledChildRunIDs []RunID             `json:"reconciled_child_run_ids,omitempty"`
	Output                AgentOutput         `json:"output"`
	Error                 string              `json:"error,omitempty"`
}

// CloneAgentState returns a deep copy safe for in-memory stores.
func CloneAgentState(in AgentState) AgentState {
	out := in
	if in.PendingRequirement != nil {
		requirementCopy := *in.PendingRequirement
		out.PendingRequirement = &requirementCopy
	}
	out.MessageHistory = CloneMessages(in.MessageHistory)
	if in.SpawnedChildRunIDs != nil {
		out.SpawnedChildRunIDs = append([]RunID{}, in.SpawnedChildRunIDs...)
	}
	if in.ReconciledChildRunIDs != nil {
		out.ReconciledChildRunIDs = append([]RunID{}, in.ReconciledChildRunIDs...)
	}
	return out
}

// OutputKind discriminates the terminal AgentOutput variant.
type OutputKind string

const (
	OutputKindTextResult       OutputKind = "text"
	OutputKindStructuredResult OutputKind = "structured_output"
	OutputKindLastMessage      OutputKind = "last_message"
	OutputKindErrorResult      OutputKind = "error"
)

// AgentOutput is the terminal output of an agent run: a tagged variant of
// {text} | {structuredOutput} | {lastMessage} | {error}.
type AgentOutput struct {
	Kind             OutputKind `json:"kind,omitempty"`
	Text             string     `json:"text,omitempty"`
	StructuredOutput any        `json:"structured_output,omitempty"`
	LastMessage      *Message   `json:"last_message,omitempty"`
	ErrorKind        ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// TextResult builds a text AgentOutput.
func TextResult(text string) AgentOutput {
	return AgentOutput{Kind: OutputKindTextResult, Text: text}
}

// StructuredResult builds a structured_output AgentOutput.
func StructuredResult(value any) AgentOutput {
	return AgentOutput{Kind: OutputKindStructuredResult, StructuredOutput: value}
}

// LastMessageResult builds a last_message AgentOutput.
func LastMessageResult(message Message) AgentOutput {
	cloned := CloneMessage(message)
	return AgentOutput{Kind: OutputKindLastMessage, LastMessage: &cloned}
}

// ErrorResult builds an error AgentOutput.
func ErrorResult(kind ErrorKind, message string) AgentOutput {
	return AgentOutput{Kind: OutputKindErrorResult, ErrorKind: kind, ErrorMessage: message}
}

// RunResult is returned by the orchestrator API.
type RunResult struct {
	State AgentState
}
