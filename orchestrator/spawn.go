package orchestrator

import (
	"context"
	"fmt"

	"agentruntime/agent"
	"agentruntime/messagelog"
	"agentruntime/ports"
)

// childSpawner implements ports.SpawnChildPort, scoped to the Orchestrator
// that will actually run the spawned child in-process.
type childSpawner struct {
	orch *Orchestrator
}

// SpawnerPort returns the ports.SpawnChildPort the orchestrator's own
// steprunner.Runner should be wired with. There is exactly one per
// Orchestrator instance: every spawn recurses back into the same
// orchestrator regardless of which run requested it.
func (o *Orchestrator) SpawnerPort() ports.SpawnChildPort {
	return &childSpawner{orch: o}
}

// preparedChild is the result of admitting and resolving a spawn_agents
// entry, shared by RunChild and SpawnChildAsync so both run the identical
// admission/resolution path before diverging on how they drive the run.
type preparedChild struct {
	template agent.AgentTemplate
	runCtx   agent.RunContext
	runInput agent.RunInput
	log      *messagelog.Log
}

// prepare resolves spec.AgentType to a template and admits the spawn
// through the orchestrator's sibling-fan-out limiter, minting the child's
// run id and seeding its message log. Parent message isolation: the child
// sees only what its template specifies, typically no parent history unless
// IncludeMessageHistory.
func (s *childSpawner) prepare(ctx context.Context, parent agent.RunContext, spec ports.ChildSpec) (preparedChild, error) {
	o := s.orch

	if o.spawnLimiter != nil {
		if err := o.spawnLimiter.Wait(ctx); err != nil {
			return preparedChild{}, fmt.Errorf("spawn admission: %w", err)
		}
	}

	template, err := o.Templates.Resolve(ctx, spec.AgentType)
	if err != nil {
		return preparedChild{}, err
	}

	childRunID := agent.RunID(o.IDGen.NewID())
	childRunCtx := parent.WithChild(childRunID)

	parentRun, _ := o.lookupActive(parent.RunID)

	var seed []agent.Message
	if template.IncludeMessageHistory && parentRun.log != nil {
		seed = parentRun.log.Messages()
	}
	log := messagelog.New(seed)

	runInput := agent.RunInput{
		RunID:      childRunID,
		AgentType:  template.Identifier(),
		UserPrompt: spec.Prompt,
		MaxSteps:   template.MaxSteps,
		Params:     spec.Params,
	}

	return preparedChild{
		template: withInheritedSystemPrompt(template, parentRun.systemPrompt),
		runCtx:   childRunCtx,
		runInput: runInput,
		log:      log,
	}, nil
}

// persist writes state to the orchestrator's RunStore, if one is wired, so
// reconcile.Reconciler can later load a spawned child by run id. Best
// effort: a failed save here only delays that child's credit rollup, it
// never fails the spawn itself.
func (s *childSpawner) persist(ctx context.Context, state agent.AgentState) {
	if s.orch.RunStore == nil {
		return
	}
	_ = s.orch.RunStore.Save(ctx, state)
}

// RunChild admits and recursively drives a child run to completion
// in-process, returning its full terminal AgentState so a sync caller can
// aggregate its credit total inline (P-CREDITS-AGGREGATE).
func (s *childSpawner) RunChild(ctx context.Context, parent agent.RunContext, spec ports.ChildSpec) (agent.AgentState, error) {
	prepared, err := s.prepare(ctx, parent, spec)
	if err != nil {
		return agent.AgentState{}, err
	}

	state := s.orch.Run(ctx, prepared.runInput, prepared.template, prepared.runCtx, prepared.log)
	s.persist(ctx, state)
	return state, nil
}

// SpawnChildAsync admits and resolves spec the same way RunChild does, then
// launches the run in the background and returns the assigned run id as
// soon as it is minted. ctx is expected to already be detached from the
// step that requested the spawn (see dispatch.spawnAsync), so the run
// survives the step — and the request — that launched it.
func (s *childSpawner) SpawnChildAsync(ctx context.Context, parent agent.RunContext, spec ports.ChildSpec) (agent.RunID, error) {
	prepared, err := s.prepare(ctx, parent, spec)
	if err != nil {
		return "", err
	}

	go func() {
		state := s.orch.Run(ctx, prepared.runInput, prepared.template, prepared.runCtx, prepared.log)
		s.persist(ctx, state)
	}()

	return prepared.runCtx.RunID, nil
}

// withInheritedSystemPrompt resolves the template's effective system prompt
// against the parent's before Run renders it, so Run itself stays ignorant
// of the parent/child relationship.
func withInheritedSystemPrompt(template agent.AgentTemplate, parentSystemPrompt string) agent.AgentTemplate {
	template.SystemPrompt = template.EffectiveSystemPrompt(parentSystemPrompt)
	return template
}
