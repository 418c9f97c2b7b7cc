// Package orchestrator implements the agent orchestrator: the outer
// loop over steps, the spawn/subagent hierarchy, step-budget enforcement,
// and credit-gate integration around each step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"agentruntime/agent"
	"agentruntime/creditgate"
	"agentruntime/dispatch"
	"agentruntime/messagelog"
	"agentruntime/ports"
	"agentruntime/steprunner"
	"agentruntime/templates"
)

// activeRun is the bookkeeping a spawned child needs from its parent:
// enough to honor includeMessageHistory/inheritParentSystemPrompt without
// threading extra fields through every port signature.
type activeRun struct {
	systemPrompt string
	log          *messagelog.Log
}

// Orchestrator drives one run (and, recursively, its spawned children) to a
// terminal AgentRunStatus.
type Orchestrator struct {
	Runner    *steprunner.Runner
	Gate      *creditgate.Gate
	Templates *templates.Assembler
	Telemetry ports.TelemetrySink
	IDGen     ports.IDGen
	Sink      dispatch.Sink

	// RunStore persists every in-process spawned child this orchestrator
	// drives to completion (top-level runs are saved by their caller) —
	// reconcile.Reconciler needs a child's stored AgentState to roll its
	// credits into the parent later.
	// Optional: nil disables persistence (e.g. a test that never reconciles).
	RunStore ports.RunStore

	// spawnLimiter throttles how fast spawn_agents children (sync and async)
	// are admitted, smoothing bursts rather than imposing a hard concurrency cap.
	spawnLimiter *rate.Limiter

	mu     sync.RWMutex
	active map[agent.RunID]activeRun
}

// New builds an Orchestrator. maxConcurrentSiblings bounds the burst of
// simultaneously-admitted spawn_agents children; <= 0 means unbounded.
func New(runner *steprunner.Runner, gate *creditgate.Gate, tmpls *templates.Assembler, telemetry ports.TelemetrySink, idgen ports.IDGen, sink dispatch.Sink, maxConcurrentSiblings int) *Orchestrator {
	var limiter *rate.Limiter
	if maxConcurrentSiblings > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxConcurrentSiblings), maxConcurrentSiblings)
	}
	return &Orchestrator{
		Runner:       runner,
		Gate:         gate,
		Templates:    tmpls,
		Telemetry:    telemetry,
		IDGen:        idgen,
		Sink:         sink,
		spawnLimiter: limiter,
		active:       make(map[agent.RunID]activeRun),
	}
}

// Run drives in.RunID against template until a terminal status is reached.
// log is mutated in place; its final contents are AgentState.MessageHistory.
func (o *Orchestrator) Run(ctx context.Context, in agent.RunInput, template agent.AgentTemplate, runCtx agent.RunContext, log *messagelog.Log) agent.AgentState {
	maxSteps := in.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	state := agent.AgentState{
		RunID:          in.RunID,
		AgentType:      in.AgentType,
		UserID:         runCtx.UserID,
		StepsRemaining: maxSteps,
		Status:         agent.AgentRunStatusPending,
	}
	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusRunning); err != nil {
		return o.fail(ctx, state, log, runCtx, fmt.Errorf("start run: %w", err))
	}
	o.emit(runCtx, state.Step, agent.EventTypeRunStarted, "")

	if o.Telemetry != nil {
		o.Telemetry.StartRun(ctx, ports.StartRunRecord{
			RunID:        runCtx.RunID,
			ParentRunIDs: runCtx.ParentRunIDs,
			AgentID:      template.Identifier(),
			UserID:       runCtx.UserID,
		})
	}

	stepPrompt := in.UserPrompt
	if template.StepPrompt != "" {
		if stepPrompt != "" {
			stepPrompt = stepPrompt + "\n\n" + template.StepPrompt
		} else {
			stepPrompt = template.StepPrompt
		}
	}

	return o.runLoop(ctx, state, in, template, runCtx, log, stepPrompt)
}

// FollowUp resumes a previously terminal (completed or max_steps) run: it
// appends prompt as a fresh user message, grants additionalSteps more of
// budget, and continues stepping. It does not re-run StartRun telemetry —
// the run is the same logical run, just extended.
func (o *Orchestrator) FollowUp(ctx context.Context, state agent.AgentState, in agent.RunInput, template agent.AgentTemplate, runCtx agent.RunContext, log *messagelog.Log, prompt string, additionalSteps int) agent.AgentState {
	if state.Status != agent.AgentRunStatusCompleted && state.Status != agent.AgentRunStatusMaxSteps {
		return o.fail(ctx, state, log, runCtx, fmt.Errorf("follow up: run %q is not in a resumable terminal state (status=%s)", state.RunID, state.Status))
	}
	if additionalSteps <= 0 {
		additionalSteps = 1
	}

	log.AppendUserMessage(prompt)
	state.StepsRemaining = additionalSteps
	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusRunning); err != nil {
		return o.fail(ctx, state, log, runCtx, err)
	}

	return o.runLoop(ctx, state, in, template, runCtx, log, "")
}

// Resume supplies the answer to a suspended run's PendingRequirement and
// continues stepping with whatever budget remained when it suspended. It
// does not re-run StartRun telemetry — the run is the same logical run.
func (o *Orchestrator) Resume(ctx context.Context, state agent.AgentState, in agent.RunInput, template agent.AgentTemplate, runCtx agent.RunContext, log *messagelog.Log, resolution agent.Resolution) agent.AgentState {
	if state.Status != agent.AgentRunStatusSuspended {
		return o.fail(ctx, state, log, runCtx, fmt.Errorf("resume: run %q is not suspended (status=%s)", state.RunID, state.Status))
	}
	requirement := state.PendingRequirement
	if requirement == nil {
		return o.fail(ctx, state, log, runCtx, agent.ErrNoPendingRequirement)
	}
	if resolution.RequirementID != requirement.ID {
		return o.fail(ctx, state, log, runCtx, fmt.Errorf("%w: resolution %q does not match pending requirement %q", agent.ErrRequirementMismatch, resolution.RequirementID, requirement.ID))
	}

	log.AppendUserMessage(resolutionNotice(requirement, resolution))
	state.PendingRequirement = nil

	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusRunning); err != nil {
		return o.fail(ctx, state, log, runCtx, err)
	}
	if state.StepsRemaining <= 0 {
		state.StepsRemaining = 1
	}

	var override *agent.ApprovedToolCallReplayOverride
	if resolution.Outcome == agent.ResolutionOutcomeApproved && requirement.Fingerprint != "" {
		override = &agent.ApprovedToolCallReplayOverride{ToolCallID: requirement.ToolCallID, Fingerprint: requirement.Fingerprint}
	}

	return o.runLoopFrom(ctx, state, in, template, runCtx, log, "", override)
}

// Steer appends a mid-run instruction directly to log without spending a
// step or touching credits — a steering note the model will see rendered
// into history on its next scheduled step.
func (o *Orchestrator) Steer(log *messagelog.Log, instruction string) {
	log.AppendUserMessage(instruction)
}

func (o *Orchestrator) runLoop(ctx context.Context, state agent.AgentState, in agent.RunInput, template agent.AgentTemplate, runCtx agent.RunContext, log *messagelog.Log, firstStepPrompt string) agent.AgentState {
	return o.runLoopFrom(ctx, state, in, template, runCtx, log, firstStepPrompt, nil)
}

// runLoopFrom is runLoop with an optional replay override applied only to
// the first step. Resume uses this to let an approved tool call through on
// its immediate retry without that approval leaking into later, unrelated
// steps of the same run.
func (o *Orchestrator) runLoopFrom(ctx context.Context, state agent.AgentState, in agent.RunInput, template agent.AgentTemplate, runCtx agent.RunContext, log *messagelog.Log, firstStepPrompt string, firstStepOverride *agent.ApprovedToolCallReplayOverride) agent.AgentState {
	o.registerActive(runCtx.RunID, template.SystemPrompt, log)
	defer o.unregisterActive(runCtx.RunID)

	systemPrompt := template.SystemPrompt
	stepPrompt := firstStepPrompt

	for state.StepsRemaining > 0 {
		if ctx.Err() != nil {
			return o.abort(ctx, state, log, runCtx, ctx.Err())
		}

		state.Step++
		state.StepsRemaining--

		preflight, err := o.Gate.Preflight(ctx, runCtx.UserID, 1)
		if err != nil {
			return o.fail(ctx, state, log, runCtx, fmt.Errorf("preflight: %w", err))
		}
		if preflight.Insufficient {
			return o.outOfCredits(ctx, state, log, runCtx)
		}

		stepCtx := ctx
		if firstStepOverride != nil {
			stepCtx = agent.WithApprovedToolCallReplayOverride(ctx, *firstStepOverride)
			firstStepOverride = nil
		}

		result := o.Runner.Run(stepCtx, log, steprunner.Input{
			Step:         state.Step,
			RunCtx:       runCtx,
			Template:     template,
			ToolDefs:     in.Tools,
			StepPrompt:   stepPrompt,
			SystemPrompt: systemPrompt,
		})
		stepPrompt = "" // only the first step carries the rendered user/step prompt

		state.CreditsUsed += result.Credits
		if !template.FreeTier {
			state.DirectCreditsUsed += result.Credits
		}
		// Sync spawn_agents children finish within this step, so their
		// credit totals fold into the parent's immediately (P-CREDITS-
		// AGGREGATE); marking them reconciled here keeps reconcile.Reconciler
		// from settling them again once it sees them in SpawnedChildRunIDs.
		state.CreditsUsed += result.SyncChildCreditsUsed
		state.SpawnedChildRunIDs = append(state.SpawnedChildRunIDs, result.SpawnedChildRuns...)
		state.ReconciledChildRunIDs = append(state.ReconciledChildRunIDs, result.SyncReconciledChildRunIDs...)
		state.MessageHistory = log.Messages()

		switch result.State {
		case steprunner.StateAborted:
			return o.abort(ctx, state, log, runCtx, result.Err)
		case steprunner.StateFailed:
			return o.fail(ctx, state, log, runCtx, result.Err)
		}

		if !template.FreeTier && result.Credits > 0 {
			operationID := fmt.Sprintf("%s-step-%d", runCtx.RunID, state.Step)
			settle, err := o.Gate.Settle(ctx, template.Identifier(), agent.CreditLedgerEntry{
				UserID:      runCtx.UserID,
				Amount:      result.Credits,
				OperationID: operationID,
				Kind:        agent.CreditEntryKindDirect,
			})
			if err != nil {
				return o.fail(ctx, state, log, runCtx, fmt.Errorf("settle: %w", err))
			}
			if settle.Insufficient {
				return o.outOfCredits(ctx, state, log, runCtx)
			}
		}

		if result.Suspended {
			return o.suspend(ctx, state, log, runCtx, result)
		}

		if result.StepEnded {
			return o.complete(ctx, state, log, runCtx, result)
		}
	}

	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusMaxSteps); err != nil {
		return o.fail(ctx, state, log, runCtx, err)
	}
	state.Output = agent.ErrorResult(agent.ErrorKindAborted, agent.ErrMaxStepsExceeded.Error())
	o.emit(runCtx, state.Step, agent.EventTypeRunFailed, agent.ErrMaxStepsExceeded.Error())
	o.finishTelemetry(ctx, state)
	return state
}

func (o *Orchestrator) complete(ctx context.Context, state agent.AgentState, log *messagelog.Log, runCtx agent.RunContext, result steprunner.Result) agent.AgentState {
	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusCompleted); err != nil {
		return o.fail(ctx, state, log, runCtx, err)
	}
	state.Output = lastMessageOutput(log)
	o.emit(runCtx, state.Step, agent.EventTypeRunCompleted, fmt.Sprintf("ended by tool %q", result.EndedByTool))
	o.finishTelemetry(ctx, state)
	return state
}

// suspend parks state pending an external requirement. Unlike complete/fail,
// it does not call finishTelemetry: the run is not over, only blocked, and
// Resume will continue charging the same run's telemetry lifecycle.
func (o *Orchestrator) suspend(ctx context.Context, state agent.AgentState, log *messagelog.Log, runCtx agent.RunContext, result steprunner.Result) agent.AgentState {
	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusSuspended); err != nil {
		return o.fail(ctx, state, log, runCtx, err)
	}
	state.PendingRequirement = result.Requirement
	state.MessageHistory = log.Messages()
	description := "awaiting requirement"
	if result.Requirement != nil {
		description = fmt.Sprintf("awaiting %s requirement %q", result.Requirement.Kind, result.Requirement.ID)
	}
	o.emit(runCtx, state.Step, agent.EventTypeRunSuspended, description)
	return state
}

func (o *Orchestrator) abort(ctx context.Context, state agent.AgentState, log *messagelog.Log, runCtx agent.RunContext, cause error) agent.AgentState {
	if cause == nil {
		cause = context.Canceled
	}
	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusAborted); err != nil {
		cause = errors.Join(cause, err)
	}
	state.MessageHistory = log.Messages()
	state.Error = cause.Error()
	state.Output = agent.ErrorResult(agent.ErrorKindAborted, cause.Error())
	o.emit(runCtx, state.Step, agent.EventTypeRunAborted, cause.Error())
	o.finishTelemetry(ctx, state)
	return state
}

func (o *Orchestrator) fail(ctx context.Context, state agent.AgentState, log *messagelog.Log, runCtx agent.RunContext, cause error) agent.AgentState {
	if cause == nil {
		cause = errors.New("run failed")
	}
	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusError); err != nil {
		cause = errors.Join(cause, err)
	}
	if log != nil {
		state.MessageHistory = log.Messages()
	}
	state.Error = cause.Error()
	state.Output = agent.ErrorResult(agent.ErrorKindToolHandlerError, cause.Error())
	o.emit(runCtx, state.Step, agent.EventTypeRunFailed, cause.Error())
	o.finishTelemetry(ctx, state)
	return state
}

func (o *Orchestrator) outOfCredits(ctx context.Context, state agent.AgentState, log *messagelog.Log, runCtx agent.RunContext) agent.AgentState {
	if err := agent.TransitionRunStatus(&state, agent.AgentRunStatusOutOfCredits); err != nil {
		return o.fail(ctx, state, log, runCtx, err)
	}
	state.MessageHistory = log.Messages()
	state.Error = agent.ErrOutOfCredits.Error()
	state.Output = agent.ErrorResult(agent.ErrorKindOutOfCredits, agent.ErrOutOfCredits.Error())
	o.emit(runCtx, state.Step, agent.EventTypeRunFailed, agent.ErrOutOfCredits.Error())
	o.finishTelemetry(ctx, state)
	return state
}

func (o *Orchestrator) finishTelemetry(ctx context.Context, state agent.AgentState) {
	if o.Telemetry == nil {
		return
	}
	o.Telemetry.FinishRun(ctx, ports.FinishRunRecord{
		RunID:         state.RunID,
		Status:        state.Status,
		TotalSteps:    state.Step,
		DirectCredits: state.DirectCreditsUsed,
		TotalCredits:  state.CreditsUsed,
	})
}

func (o *Orchestrator) registerActive(runID agent.RunID, systemPrompt string, log *messagelog.Log) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[runID] = activeRun{systemPrompt: systemPrompt, log: log}
}

func (o *Orchestrator) unregisterActive(runID agent.RunID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, runID)
}

func (o *Orchestrator) lookupActive(runID agent.RunID) (activeRun, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.active[runID]
	return run, ok
}

func (o *Orchestrator) emit(runCtx agent.RunContext, step int, eventType agent.EventType, description string) {
	if o.Sink == nil {
		return
	}
	o.Sink.Emit(agent.Event{RunID: runCtx.RunID, Step: step, Type: eventType, Description: description})
}

// resolutionNotice renders a Resolution as the follow-up user message that
// unblocks a suspended run: the model sees it on the next step's prompt and
// decides whether to retry the tool that raised the requirement.
func resolutionNotice(requirement *agent.PendingRequirement, resolution agent.Resolution) string {
	notice := fmt.Sprintf("[resolution] tool=%q requirement=%q outcome=%s", requirement.ToolName, requirement.ID, resolution.Outcome)
	if resolution.Value != "" {
		notice = fmt.Sprintf("%s value=%q", notice, resolution.Value)
	}
	return notice
}

func lastMessageOutput(log *messagelog.Log) agent.AgentOutput {
	messages := log.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == agent.RoleAssistant {
			return agent.TextResult(messages[i].TextOf())
		}
	}
	return agent.TextResult("")
}
