// Package dispatch implements the tool dispatcher: it validates tool
// inputs, invokes handlers, and serializes their externally observable
// effects into the message log via a chain of one-shot completion handles —
// the "serialization spine" — even though handler execution may overlap.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agentruntime/agent"
	"agentruntime/messagelog"
	"agentruntime/ports"
	"agentruntime/registry"
)

// Sink receives UI-visible events in dispatch order.
type Sink interface {
	Emit(event agent.Event)
}

// SpawnableLookup resolves a bare tool name that is missing from the
// registry to an agent id in the current template's spawnableAgents list,
// used for the spawn_agents compatibility rewrite.
type SpawnableLookup func(name string) (agentID string, ok bool)

// Dispatcher drives one agent step's tool calls. It owns private
// accumulation buffers; nothing here is shared across steps or agents.
type Dispatcher struct {
	registry   *registry.Registry
	builder    *messagelog.StepBuilder
	toolClient ports.ToolClientPort
	spawner    ports.SpawnChildPort
	sink       Sink
	runCtx     agent.RunContext
	spawnable  SpawnableLookup

	mu       sync.Mutex
	previous *handle
	// streamDone closes once the parser reaches end-of-stream; nothing
	// currently awaits it by default, but it stays available for a handler
	// that must see the whole stream before running.
	streamDone         *handle
	fileState          *fileProcessingState
	hadToolCallError   bool
	errorMessages      []string
	endingCallID       string
	endingToolName     string
	suspendRequirement *agent.PendingRequirement
	step               int
	wg                 sync.WaitGroup
	spawnedChildRuns   []agent.RunID
	spawnedChildMu     sync.Mutex
	// syncChildCreditsUsed/syncReconciledChildRuns track spawn_agents(sync)
	// children that finished this step: their credits fold into the parent
	// immediately (steprunner/orchestrator), and they're recorded here as
	// already reconciled so reconcile.Reconciler never settles them again.
	syncChildCreditsUsed    int64
	syncReconciledChildRuns []agent.RunID
}

// New returns a dispatcher for one step. step is the 1-indexed step number,
// used only for event/telemetry annotation.
func New(step int, reg *registry.Registry, builder *messagelog.StepBuilder, toolClient ports.ToolClientPort, spawner ports.SpawnChildPort, sink Sink, runCtx agent.RunContext, spawnable SpawnableLookup) *Dispatcher {
	streamDone := newHandle()
	return &Dispatcher{
		registry:   reg,
		builder:    builder,
		toolClient: toolClient,
		spawner:    spawner,
		sink:       sink,
		runCtx:     runCtx,
		spawnable:  spawnable,
		previous:   resolved(),
		streamDone: streamDone,
		fileState:  newFileProcessingState(),
		step:       step,
	}
}

// HadToolCallError reports whether any call this step failed validation or
// lookup (set per dispatch algorithm steps 2/3).
func (d *Dispatcher) HadToolCallError() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hadToolCallError
}

// EndingToolName reports the name of the tool that ended the step, if any.
func (d *Dispatcher) EndingToolName() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endingToolName, d.endingCallID != ""
}

// Suspended reports the requirement a handler raised this step, if any. A
// suspend always also ends the step, the same way descriptor.EndsAgentStep
// does for a normal completion.
func (d *Dispatcher) Suspended() (*agent.PendingRequirement, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suspendRequirement, d.suspendRequirement != nil
}

// SpawnedChildRunIDs returns the child runs created by spawn_agents calls
// this step, in spawn order.
func (d *Dispatcher) SpawnedChildRunIDs() []agent.RunID {
	d.spawnedChildMu.Lock()
	defer d.spawnedChildMu.Unlock()
	out := make([]agent.RunID, len(d.spawnedChildRuns))
	copy(out, d.spawnedChildRuns)
	return out
}

// SyncChildCreditsUsed returns the summed CreditsUsed of every
// spawn_agents(sync) child that completed this step.
func (d *Dispatcher) SyncChildCreditsUsed() int64 {
	d.spawnedChildMu.Lock()
	defer d.spawnedChildMu.Unlock()
	return d.syncChildCreditsUsed
}

// SyncReconciledChildRunIDs returns the sync children already settled into
// this step's credit total, so the caller can mark them reconciled up front.
func (d *Dispatcher) SyncReconciledChildRunIDs() []agent.RunID {
	d.spawnedChildMu.Lock()
	defer d.spawnedChildMu.Unlock()
	out := make([]agent.RunID, len(d.syncReconciledChildRuns))
	copy(out, d.syncReconciledChildRuns)
	return out
}

// StreamEnded signals the parser has finished by resolving streamDone. The
// spine starts from an already-resolved handle, not from streamDone, so no
// handler waits on this unless it awaits streamDone itself.
func (d *Dispatcher) StreamEnded() {
	d.streamDone.done()
}

// Wait blocks until every dispatched handler for this step has recorded its
// effect. Must be called before MessageLog.Commit (the Finalize step).
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		<-done // handlers still settle cooperatively; see abort semantics
		return ctx.Err()
	}
}

// Dispatch processes one parsed tool call. It returns immediately after
// validating and scheduling the call (step 4 of the dispatch algorithm);
// the handler itself runs asynchronously, its recorded effect serialized
// behind the previous call via the spine. The returned CallHandle completes
// once this call's result is recorded; callers that must observe the result
// before continuing (an inline tag-grammar call, per the dispatch
// algorithm's step 5) wait on it, while normal structured calls ignore it
// and let the spine serialize them in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, call agent.ToolCall) CallHandle {
	descriptor, ok := d.registry.Lookup(call.Name)
	if !ok {
		if agentID, isSpawnable := d.lookupSpawnable(call.Name); isSpawnable {
			call = rewriteAsSpawnAgents(call, agentID)
			descriptor, ok = d.registry.Lookup(call.Name)
		}
	}
	if !ok {
		d.rejectUndispatched(call, fmt.Sprintf("Unknown tool %q", call.Name))
		return CallHandle{}
	}

	if err := d.registry.ValidateInput(call.Name, call.Input); err != nil {
		d.rejectUndispatched(call, fmt.Sprintf("Invalid parameters for %s", call.Name))
		return CallHandle{}
	}

	d.mu.Lock()
	if d.endingCallID != "" && descriptor.EndsAgentStep {
		d.mu.Unlock()
		d.rejectUndispatched(call, fmt.Sprintf("Tool %q ignored: the step already ended via %q", call.Name, d.endingToolName))
		return CallHandle{}
	}
	previous := d.previous
	mine := newHandle()
	d.previous = mine
	d.mu.Unlock()

	// The assistant content part is appended now, in parse order, so the
	// eventual tool result stays adjacent to its call regardless of how
	// long the handler takes.
	d.builder.AppendAssistantToolCall(call)
	d.sink.Emit(agent.Event{RunID: d.runCtx.RunID, Step: d.step, Type: agent.EventTypeToolCallStarted, ToolCallID: call.ID, ToolName: call.Name})

	run := func() {
		if err := previous.wait(ctx); err != nil {
			d.recordResult(call, agent.ErrorTextOutput("tool call aborted before execution"))
			return
		}
		if ctx.Err() != nil {
			d.recordResult(call, agent.ErrorTextOutput("tool call aborted before execution"))
			return
		}

		output, err := d.execute(ctx, descriptor, call)

		var suspend *agent.SuspendRequestError
		if errors.As(err, &suspend) {
			d.recordSuspend(call, suspend)
			return
		}
		if err != nil {
			output = agent.ErrorJSONOutput(map[string]any{"message": err.Error()})
		}
		d.recordResult(call, output)

		if descriptor.EndsAgentStep {
			d.mu.Lock()
			if d.endingCallID == "" {
				d.endingCallID = call.ID
				d.endingToolName = call.Name
			}
			d.mu.Unlock()
		}
	}

	if descriptor.EndsAgentStep {
		// Run inline: the step must end as soon as this result is in hand,
		// so the caller needs to observe EndingToolName() before pulling
		// the next parser event, not after some later goroutine schedules.
		mine.done()
		run()
		return CallHandle{h: mine}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer mine.done()
		run()
	}()
	return CallHandle{h: mine}
}

// execute dispatches to the handler named by descriptor.Kind. It returns the
// raw (output, error) pair uninterpreted: a *agent.SuspendRequestError carried
// in err must be checked by the caller before it is flattened into a generic
// error tool output, since a suspend still needs a tool result recorded for
// this call but also halts the step.
func (d *Dispatcher) execute(ctx context.Context, descriptor registry.Descriptor, call agent.ToolCall) (agent.ToolOutput, error) {
	ctx = withFileProcessingState(ctx, d.fileState)

	switch descriptor.Kind {
	case registry.HandlerKindClientDelegated:
		return d.toolClient.Request(ctx, call.Name, call.Input, d.runCtx)
	case registry.HandlerKindSpawning:
		return d.executeSpawn(ctx, call)
	default:
		if descriptor.Native == nil {
			return nil, fmt.Errorf("tool %q has no handler", call.Name)
		}
		return descriptor.Native(ctx, call, d.runCtx)
	}
}

// recordSuspend records the suspending call's own tool result, keeping every
// call paired with exactly one result, and marks the step as ended by a
// requirement rather than a normal completion. Resume answers the
// requirement with a follow-up user message, not by rewriting this result.
func (d *Dispatcher) recordSuspend(call agent.ToolCall, suspend *agent.SuspendRequestError) {
	requirement := suspend.Requirement
	if requirement == nil {
		requirement = &agent.PendingRequirement{Kind: agent.RequirementKindApproval, Origin: agent.RequirementOriginTool}
	}
	requirement.ToolCallID = call.ID
	requirement.ToolName = call.Name

	d.mu.Lock()
	if d.suspendRequirement == nil {
		d.suspendRequirement = requirement
	}
	if d.endingCallID == "" {
		d.endingCallID = call.ID
		d.endingToolName = call.Name
	}
	d.mu.Unlock()

	d.recordResult(call, agent.ErrorTextOutput(suspend.Error()))
	d.sink.Emit(agent.Event{RunID: d.runCtx.RunID, Step: d.step, Type: agent.EventTypeRunSuspended, ToolCallID: call.ID, ToolName: call.Name, Description: requirement.Prompt})
}

func (d *Dispatcher) recordResult(call agent.ToolCall, output agent.ToolOutput) {
	d.builder.AppendToolResult(call.ID, call.Name, output)
	d.sink.Emit(agent.Event{RunID: d.runCtx.RunID, Step: d.step, Type: agent.EventTypeToolResult, ToolCallID: call.ID, ToolName: call.Name, Output: output})
}

// rejectUndispatched handles steps 2/3 of the dispatch algorithm: the call
// never becomes a tool-call part and never gets a tool message, so no
// orphaned result can appear later. A user-visible error is appended instead.
func (d *Dispatcher) rejectUndispatched(call agent.ToolCall, reason string) {
	d.mu.Lock()
	d.hadToolCallError = true
	message := fmt.Sprintf("Error during tool call: %s. Please check the tool name and arguments and try again.", reason)
	d.errorMessages = append(d.errorMessages, message)
	d.mu.Unlock()

	d.builder.AppendUserError(message)
	d.sink.Emit(agent.Event{RunID: d.runCtx.RunID, Step: d.step, Type: agent.EventTypeRunFailed, ToolCallID: call.ID, ToolName: call.Name, Description: reason})
}

func (d *Dispatcher) lookupSpawnable(name string) (string, bool) {
	if d.spawnable == nil {
		return "", false
	}
	return d.spawnable(name)
}

func rewriteAsSpawnAgents(call agent.ToolCall, agentID string) agent.ToolCall {
	return agent.ToolCall{
		ID:   call.ID,
		Name: "spawn_agents",
		Input: map[string]any{
			"agents": []any{
				map[string]any{"agentType": agentID, "prompt": call.Input["prompt"], "params": call.Input},
			},
		},
	}
}
