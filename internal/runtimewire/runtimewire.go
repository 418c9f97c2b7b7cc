// Package runtimewire composes every adapter and orchestration package
// into one running Runtime, the way the teacher's own runtimewire package
// wires agentframe's mocks into its example server.
package runtimewire

import (
	"context"
	"fmt"

	"agentruntime/adapters/clock"
	"agentruntime/adapters/creditsqlite"
	"agentruntime/adapters/idgen"
	"agentruntime/adapters/llmanthropic"
	"agentruntime/adapters/telemetryprom"
	"agentruntime/adapters/tomltemplates"
	"agentruntime/adapters/toolclientmcp"
	"agentruntime/agent"
	"agentruntime/agent/nativetool"
	"agentruntime/creditgate"
	eventinginmem "agentruntime/eventing/inmem"
	"agentruntime/internal/config"
	"agentruntime/orchestrator"
	"agentruntime/policy/shellapproval"
	"agentruntime/ports"
	"agentruntime/reconcile"
	"agentruntime/registry"
	runstoreinmem "agentruntime/runstore/inmem"
	"agentruntime/steprunner"
	"agentruntime/templates"

	"github.com/prometheus/client_golang/prometheus"
)

// Runtime holds every composed dependency cmd/agentruntimed serves against.
type Runtime struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Templates    *templates.Assembler
	RunStore     ports.RunStore
	EventSink    *eventinginmem.Sink
	Telemetry    ports.TelemetrySink
	IDGen        ports.IDGen
	Reconciler   *reconcile.Reconciler
	Scheduler    *reconcile.Scheduler
}

// New composes a production Runtime from cfg, registering promMetrics
// against reg (pass prometheus.DefaultRegisterer for the process default).
func New(cfg config.Config, logger ports.Logger, reg prometheus.Registerer) (*Runtime, error) {
	ids := idgen.New()
	wallClock := clock.New()

	llm, err := llmanthropic.New(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey)
	if err != nil {
		return nil, fmt.Errorf("runtimewire: new llm provider: %w", err)
	}

	toolClient, err := newToolClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("runtimewire: new tool client: %w", err)
	}

	reg2 := registry.New()
	if err := registerCoreTools(reg2, toolClient != nil); err != nil {
		return nil, fmt.Errorf("runtimewire: register core tools: %w", err)
	}

	fetcher := tomltemplates.New(cfg.TemplatesDir)
	assembler := templates.New(fetcher)

	listTemplates, err := nativetool.NewListAgentTemplates(assembler)
	if err != nil {
		return nil, fmt.Errorf("runtimewire: build list_agent_templates: %w", err)
	}
	if err := reg2.Register(listTemplates); err != nil {
		return nil, fmt.Errorf("runtimewire: register list_agent_templates: %w", err)
	}

	creditStore, err := creditsqlite.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("runtimewire: open credit store: %w", err)
	}
	gate := creditgate.New(creditStore, wallClock, cfg.FreeTierAgentIDs)

	telemetry := telemetryprom.New(reg)
	eventSink := eventinginmem.New()

	runner := &steprunner.Runner{
		Registry:   reg2,
		LLM:        llm,
		ToolClient: toolClient,
		Telemetry:  telemetry,
		IDGen:      ids,
		Sink:       eventSink,
		Spawnable:  assembler.SpawnableLookup,
	}

	runStore := runstoreinmem.New()

	orch := orchestrator.New(runner, gate, assembler, telemetry, ids, eventSink, cfg.MaxConcurrentSiblings)
	orch.RunStore = runStore
	runner.Spawner = orch.SpawnerPort()

	reconciler := reconcile.New(runStore, gate)

	scheduler, err := reconcile.NewScheduler(reconciler, logger, wallClock, cfg.ReconcileCronExpr, func() []reconcile.InFlightParent {
		return inFlightParents(runStore)
	})
	if err != nil {
		return nil, fmt.Errorf("runtimewire: new reconcile scheduler: %w", err)
	}

	return &Runtime{
		Orchestrator: orch,
		Registry:     reg2,
		Templates:    assembler,
		RunStore:     runStore,
		EventSink:    eventSink,
		Telemetry:    telemetry,
		IDGen:        ids,
		Reconciler:   reconciler,
		Scheduler:    scheduler,
	}, nil
}

func newToolClient(cfg config.Config) (ports.ToolClientPort, error) {
	if cfg.MCPCommand == "" {
		return nil, nil
	}
	client, err := toolclientmcp.New(toolclientmcp.Config{
		Command: cfg.MCPCommand,
		Args:    cfg.MCPArgs,
	})
	if err != nil {
		return nil, err
	}
	return toolclientmcp.NewGated(client, shellapproval.New(nil)), nil
}

// registerCoreTools catalogues the tools every template may reference:
// end_turn/task_completed end a step natively, spawn_agents recurses into
// the orchestrator, and the client-delegated file/shell tools forward to
// toolClient when one is configured.
func registerCoreTools(reg *registry.Registry, hasToolClient bool) error {
	if err := reg.Register(registry.Descriptor{
		Name:          "end_turn",
		Description:   "Ends the current agent step, signalling the model has nothing more to say this turn.",
		EndsAgentStep: true,
		Kind:          registry.HandlerKindNative,
		Native: func(_ context.Context, call agent.ToolCall, _ agent.RunContext) (agent.ToolOutput, error) {
			return agent.TextOutput("turn ended"), nil
		},
	}); err != nil {
		return err
	}

	if err := reg.Register(registry.Descriptor{
		Name:          "task_completed",
		Description:   "Ends the current agent step, signalling the assigned task is finished.",
		EndsAgentStep: true,
		Kind:          registry.HandlerKindNative,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{"type": "string"},
			},
		},
		Native: func(_ context.Context, call agent.ToolCall, _ agent.RunContext) (agent.ToolOutput, error) {
			summary, _ := call.Input["summary"].(string)
			return agent.TextOutput(summary), nil
		},
	}); err != nil {
		return err
	}

	if err := reg.Register(registry.Descriptor{
		Name:        "spawn_agents",
		Description: "Spawns one or more child agents, either awaiting their outputs (sync) or firing them off (async).",
		Kind:        registry.HandlerKindSpawning,
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"agents"},
			"properties": map[string]any{
				"agents": map[string]any{"type": "array"},
				"sync":   map[string]any{"type": "boolean"},
			},
		},
	}); err != nil {
		return err
	}

	if !hasToolClient {
		return nil
	}

	for name, schema := range map[string]map[string]any{
		"read_files": {
			"type":     "object",
			"required": []any{"paths"},
			"properties": map[string]any{
				"paths": map[string]any{"type": "array"},
			},
		},
		"write_file": {
			"type":     "object",
			"required": []any{"path", "content"},
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
		},
		"shell_exec": {
			"type":     "object",
			"required": []any{"command"},
			"properties": map[string]any{
				"command": map[string]any{"type": "string"},
			},
		},
	} {
		if err := reg.Register(registry.Descriptor{
			Name:        name,
			Kind:        registry.HandlerKindClientDelegated,
			InputSchema: schema,
		}); err != nil {
			return err
		}
	}
	return nil
}

// inFlightParents scans the run store for every run, whatever its status,
// whose SpawnedChildRunIDs might still need reconciling. runstore/inmem has no
// index by status, so this walks its snapshot; a durable RunStore backing
// a real deployment would query this directly.
func inFlightParents(store interface {
	Snapshot() []agent.AgentState
}) []reconcile.InFlightParent {
	var parents []reconcile.InFlightParent
	for _, state := range store.Snapshot() {
		if len(state.SpawnedChildRunIDs) == 0 {
			continue
		}
		if len(state.ReconciledChildRunIDs) == len(state.SpawnedChildRunIDs) {
			continue
		}
		parents = append(parents, reconcile.InFlightParent{
			RunID:     state.RunID,
			AgentType: state.AgentType,
			UserID:    state.UserID,
		})
	}
	return parents
}
