package agent

// OutputMode constrains how a template's run produces its terminal output.
type OutputMode string

const (
	OutputModeText             OutputMode = "text"
	OutputModeStructuredOutput OutputMode = "structured_output"
	OutputModeLastMessage      OutputMode = "last_message"
)

// AgentTemplate is the immutable descriptor resolved by the template
// assembler from an agent identifier. It is loaded once per run and cached
// by id.
type AgentTemplate struct {
	ID                        string            `json:"id" toml:"id"`
	Publisher                 string            `json:"publisher,omitempty" toml:"publisher"`
	Version                   string            `json:"version,omitempty" toml:"version"`
	Model                     string            `json:"model" toml:"model"`
	SystemPrompt              string            `json:"system_prompt" toml:"system_prompt"`
	StepPrompt                string            `json:"step_prompt,omitempty" toml:"step_prompt"`
	ToolNames                 []string          `json:"tool_names,omitempty" toml:"tool_names"`
	SpawnableAgents           map[string]string `json:"spawnable_agents,omitempty" toml:"spawnable_agents"`
	InputSchema               map[string]any    `json:"input_schema,omitempty" toml:"-"`
	OutputMode                OutputMode        `json:"output_mode,omitempty" toml:"output_mode"`
	IncludeMessageHistory     bool              `json:"include_message_history,omitempty" toml:"include_message_history"`
	InheritParentSystemPrompt bool              `json:"inherit_parent_system_prompt,omitempty" toml:"inherit_parent_system_prompt"`
	MaxSteps                  int               `json:"max_steps,omitempty" toml:"max_steps"`
	FreeTier                  bool              `json:"free_tier,omitempty" toml:"free_tier"`
}

// Identifier renders the template's [<publisher>/]<id>[@<version>] form.
func (t AgentTemplate) Identifier() string {
	id := t.ID
	if t.Publisher != "" {
		id = t.Publisher + "/" + id
	}
	if t.Version != "" {
		id = id + "@" + t.Version
	}
	return id
}

// EffectiveSystemPrompt composes a template's system prompt with a parent's,
// honoring InheritParentSystemPrompt.
func (t AgentTemplate) EffectiveSystemPrompt(parentSystemPrompt string) string {
	if !t.InheritParentSystemPrompt || parentSystemPrompt == "" {
		return t.SystemPrompt
	}
	if t.SystemPrompt == "" {
		return parentSystemPrompt
	}
	return parentSystemPrompt + "\n\n" + t.SystemPrompt
}
