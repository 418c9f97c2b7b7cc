package dispatch

import (
	"context"
	"fmt"
	"sync"

	"agentruntime/agent"
	"agentruntime/ports"
)

// executeSpawn implements the spawn_agents family: sync mode awaits all
// children and returns their outputs as the tool result; async mode fires
// children off and returns only their run ids.
func (d *Dispatcher) executeSpawn(ctx context.Context, call agent.ToolCall) (agent.ToolOutput, error) {
	rawAgents, _ := call.Input["agents"].([]any)
	sync := true
	if v, ok := call.Input["sync"].(bool); ok {
		sync = v
	}

	specs := make([]ports.ChildSpec, 0, len(rawAgents))
	for _, raw := range rawAgents {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		spec := ports.ChildSpec{}
		if v, ok := entry["agentType"].(string); ok {
			spec.AgentType = v
		}
		if v, ok := entry["prompt"].(string); ok {
			spec.Prompt = v
		}
		if v, ok := entry["params"].(map[string]any); ok {
			spec.Params = v
		}
		specs = append(specs, spec)
	}

	if sync {
		return d.spawnSync(ctx, specs)
	}
	return d.spawnAsync(ctx, specs)
}

// spawnSync runs every sibling concurrently and awaits them all; admission
// among siblings is bounded by the orchestrator's spawn limiter inside
// RunChild itself, not here. Each child's credits are folded into this
// step's total as soon as it finishes (see recordSyncChildSettled).
func (d *Dispatcher) spawnSync(ctx context.Context, specs []ports.ChildSpec) (agent.ToolOutput, error) {
	outputs := make([]any, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec ports.ChildSpec) {
			defer wg.Done()
			state, err := d.spawner.RunChild(ctx, d.runCtx, spec)
			d.recordSpawnedChild(state.RunID)
			if err != nil {
				outputs[i] = map[string]any{"error": err.Error()}
				return
			}
			if agent.IsTerminalRunStatus(state.Status) {
				d.recordSyncChildSettled(state.RunID, state.CreditsUsed)
			}
			outputs[i] = outputToValue(state.Output)
		}(i, spec)
	}
	wg.Wait()
	return agent.JSONOutput(map[string]any{"results": outputs}), nil
}

// spawnAsync admits and resolves each child synchronously (so a bad
// agentType still surfaces as a call error) but hands the run itself off to
// a background goroutine, returning the assigned run ids immediately — the
// spec's fire-and-forget semantics. Credits are rolled up later by
// reconcile.Reconciler once each child reaches a terminal status.
func (d *Dispatcher) spawnAsync(ctx context.Context, specs []ports.ChildSpec) (agent.ToolOutput, error) {
	childRunIDs := make([]string, 0, len(specs))
	for _, spec := range specs {
		spec := spec
		childRunID, err := d.spawner.SpawnChildAsync(detached(ctx), d.runCtx, spec)
		if err != nil {
			return nil, fmt.Errorf("spawn %q: %w", spec.AgentType, err)
		}
		d.recordSpawnedChild(childRunID)
		childRunIDs = append(childRunIDs, string(childRunID))
	}
	return agent.JSONOutput(map[string]any{"childRunIds": childRunIDs}), nil
}

func (d *Dispatcher) recordSpawnedChild(runID agent.RunID) {
	if runID == "" {
		return
	}
	d.spawnedChildMu.Lock()
	d.spawnedChildRuns = append(d.spawnedChildRuns, runID)
	d.spawnedChildMu.Unlock()
}

// recordSyncChildSettled marks a spawn_agents(sync) child's credits as
// already folded into this step's total, so reconcile.Reconciler (which
// walks every id in AgentState.SpawnedChildRunIDs) skips it instead of
// settling it a second time.
func (d *Dispatcher) recordSyncChildSettled(runID agent.RunID, credits int64) {
	d.spawnedChildMu.Lock()
	d.syncChildCreditsUsed += credits
	d.syncReconciledChildRuns = append(d.syncReconciledChildRuns, runID)
	d.spawnedChildMu.Unlock()
}

func outputToValue(output agent.AgentOutput) any {
	switch output.Kind {
	case agent.OutputKindStructuredResult:
		return output.StructuredOutput
	case agent.OutputKindErrorResult:
		return map[string]any{"error": output.ErrorMessage}
	case agent.OutputKindLastMessage:
		if output.LastMessage != nil {
			return output.LastMessage.TextOf()
		}
		return ""
	default:
		return output.Text
	}
}

// detached derives a context that carries no deadline/cancellation from the
// parent step, since a fire-and-forget async spawn outlives the step that
// launched it. An async child therefore does not observe an abort of the
// parent step or run.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
