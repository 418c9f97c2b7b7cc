// Package steprunner implements one iteration of the agent loop:
// prepare the prompt, stream a completion, dispatch tool calls as they
// parse, and commit the result to the message log.
package steprunner

import (
	"context"

	"agentruntime/agent"
	"agentruntime/dispatch"
	"agentruntime/messagelog"
	"agentruntime/ports"
	"agentruntime/registry"
	"agentruntime/streamparse"
)

// State is the per-step state machine position.
type State string

const (
	StatePreparing State = "preparing"
	StateStreaming State = "streaming"
	StateDraining  State = "draining"
	StateCommitted State = "committed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// Result summarizes one completed (or terminated) step.
type Result struct {
	State            State
	Credits          int64
	EndedByTool      string
	StepEnded        bool
	HadToolCallError bool
	Suspended        bool
	Requirement      *agent.PendingRequirement
	SpawnedChildRuns []agent.RunID
	// SyncChildCreditsUsed is the summed CreditsUsed of every
	// spawn_agents(sync) child that completed this step; the orchestrator
	// folds it into AgentState.CreditsUsed alongside the step's own Credits.
	SyncChildCreditsUsed int64
	// SyncReconciledChildRunIDs names the sync children already accounted
	// for in SyncChildCreditsUsed, so the orchestrator can mark them
	// reconciled up front and reconcile.Reconciler never double-settles them.
	SyncReconciledChildRunIDs []agent.RunID
	MessageID                 string
	Err                       error
}

// Runner drives one step at a time; it holds no per-run state of its own —
// AgentState lives with the orchestrator/caller.
type Runner struct {
	Registry   *registry.Registry
	LLM        ports.LLMPort
	ToolClient ports.ToolClientPort
	Spawner    ports.SpawnChildPort
	Telemetry  ports.TelemetrySink
	IDGen      ports.IDGen
	Sink       dispatch.Sink
	Spawnable  dispatch.SpawnableLookup
}

// Input configures one step.
type Input struct {
	Step         int
	RunCtx       agent.RunContext
	Template     agent.AgentTemplate
	ToolDefs     []agent.ToolDefinition
	StepPrompt   string // rendered stepPrompt, empty after the first step unless the template repeats it
	SystemPrompt string // fully assembled (parent-inherited or not) system prompt
}

// Run executes Prepare -> Stream -> Dispatch -> Finalize against log,
// mutating it only at commit time.
func (r *Runner) Run(ctx context.Context, log *messagelog.Log, in Input) Result {
	snapshot := log.Snapshot()

	messages := make([]agent.Message, 0, len(snapshot)+1)
	messages = append(messages, []agent.Message(snapshot)...)
	if in.StepPrompt != "" {
		messages = append(messages, agent.Message{Role: agent.RoleUser, Text: in.StepPrompt})
	}

	req := ports.CompletionRequest{
		Model:        in.Template.Model,
		SystemPrompt: in.SystemPrompt,
		Messages:     messages,
		Tools:        in.ToolDefs,
	}

	events, streamResult := r.LLM.Stream(ctx, req)
	parsed, parseResult := streamparse.Run(ctx, events, streamResult, r.IDGen.NewID)

	builder := messagelog.NewStepBuilder()
	d := dispatch.New(in.Step, r.Registry, builder, r.ToolClient, r.Spawner, r.Sink, in.RunCtx, r.Spawnable)

	stoppedEarly := false
parseLoop:
	for event := range parsed {
		switch event.Type {
		case streamparse.ParsedEventText:
			builder.AppendAssistantText(event.Text)
		case streamparse.ParsedEventToolCall:
			h := d.Dispatch(ctx, event.ToolCall)
			if event.Inline {
				// Step 5 of the dispatch algorithm: an inline tag-grammar
				// call must settle before the parser hands over whatever
				// text follows its closing tag, so that trailing text is
				// never observed ahead of the call's own result.
				_ = h.Wait(ctx)
			}
			if _, ended := d.EndingToolName(); ended {
				// The step is ending; stop consuming further parser output
				// (in-flight handlers already dispatched are still awaited
				// at Finalize, per the dispatcher's cooperative-cancel note).
				stoppedEarly = true
				break parseLoop
			}
		}
	}
	if stoppedEarly {
		// Drain the remainder off-band so the parser goroutine never blocks
		// on a send nobody will read.
		go func() {
			for range parsed {
			}
		}()
	}
	d.StreamEnded()

	waitErr := d.Wait(ctx)

	if parseResult.Aborted {
		log.AppendInterruptionNotice("[Request interrupted by user]")
		return Result{State: StateAborted, Err: context.Canceled, HadToolCallError: d.HadToolCallError()}
	}
	if waitErr != nil && ctx.Err() != nil {
		log.AppendInterruptionNotice("[Request interrupted by user]")
		return Result{State: StateAborted, Err: waitErr, HadToolCallError: d.HadToolCallError()}
	}
	if streamResult != nil && streamResult.Err != nil {
		return Result{State: StateFailed, Err: agent.NewError(agent.ErrorKindLLMTransport, in.RunCtx.RunID, "llm stream failed", streamResult.Err)}
	}

	credits := int64(0)
	if streamResult != nil {
		credits = streamResult.Usage.Credits
	}
	messageID := ""
	if streamResult != nil {
		messageID = streamResult.MessageID
	}

	if err := log.Commit(in.RunCtx.RunID, snapshot, builder); err != nil {
		return Result{State: StateFailed, Err: err}
	}

	endedName, ended := d.EndingToolName()
	requirement, suspended := d.Suspended()

	status := ports.StepStatusCompleted
	if suspended {
		status = ports.StepStatusSuspended
	}
	if r.Telemetry != nil {
		r.Telemetry.AddStep(ctx, ports.StepRecord{
			RunID:       in.RunCtx.RunID,
			StepNumber:  in.Step,
			Credits:     credits,
			ChildRunIDs: d.SpawnedChildRunIDs(),
			MessageID:   messageID,
			Status:      status,
		})
	}

	return Result{
		State:                     StateCommitted,
		Credits:                   credits,
		Suspended:                 suspended,
		Requirement:               requirement,
		EndedByTool:               endedName,
		StepEnded:                 ended,
		HadToolCallError:          d.HadToolCallError(),
		SpawnedChildRuns:          d.SpawnedChildRunIDs(),
		SyncChildCreditsUsed:      d.SyncChildCreditsUsed(),
		SyncReconciledChildRunIDs: d.SyncReconciledChildRunIDs(),
		MessageID:                 messageID,
	}
}
