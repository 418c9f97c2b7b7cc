package nativetool

import (
	"context"

	"agentruntime/agent"
	"agentruntime/registry"
	"agentruntime/templates"
)

// ListAgentTemplatesName is the tool name models use to discover which
// agent templates are available to spawn_agents, instead of guessing an
// agentType string.
const ListAgentTemplatesName = "list_agent_templates"

// ListAgentTemplatesArgs is the input shape for list_agent_templates. It
// takes no parameters, but is still reflected through SchemaFor so its
// published schema is produced the same way as every other native tool's.
type ListAgentTemplatesArgs struct{}

type agentTemplateSummary struct {
	Identifier string   `json:"identifier"`
	Model      string   `json:"model"`
	ToolNames  []string `json:"toolNames,omitempty"`
	MaxSteps   int      `json:"maxSteps,omitempty"`
}

// NewListAgentTemplates builds the list_agent_templates descriptor backed by
// assembler's locally registered templates.
func NewListAgentTemplates(assembler *templates.Assembler) (registry.Descriptor, error) {
	handler := func(_ context.Context, _ agent.ToolCall, _ agent.RunContext) (agent.ToolOutput, error) {
		local := assembler.ListLocal()
		summaries := make([]agentTemplateSummary, 0, len(local))
		for _, t := range local {
			summaries = append(summaries, agentTemplateSummary{
				Identifier: t.Identifier(),
				Model:      t.Model,
				ToolNames:  t.ToolNames,
				MaxSteps:   t.MaxSteps,
			})
		}
		return agent.JSONOutput(map[string]any{"templates": summaries}), nil
	}

	return Describe(
		ListAgentTemplatesName,
		"Lists the agent templates available to spawn as children via spawn_agents.",
		&ListAgentTemplatesArgs{},
		false,
		handler,
	)
}
