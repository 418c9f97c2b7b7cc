package httpapi

import (
	"net/http"

	"agentruntime/agent"
	"agentruntime/messagelog"
)

type startRunRequest struct {
	AgentType       string         `json:"agent_type"`
	UserID          string         `json:"user_id"`
	Prompt          string         `json:"prompt"`
	MaxSteps        int            `json:"max_steps,omitempty"`
	ClientSessionID string         `json:"client_session_id,omitempty"`
	Params          map[string]any `json:"params,omitempty"`
}

func (h *handlers) handleRunStart(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.AgentType == "" {
		writeInvalidRequest(w, "agent_type is required")
		return
	}
	if req.UserID == "" {
		writeInvalidRequest(w, "user_id is required")
		return
	}

	ctx := r.Context()
	template, err := h.runtime.Templates.Resolve(ctx, req.AgentType)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = template.MaxSteps
	}

	runID := agent.RunID(h.runtime.IDGen.NewID())
	runCtx := agent.RunContext{
		RunID:           runID,
		UserID:          req.UserID,
		ClientSessionID: req.ClientSessionID,
	}
	runInput := agent.RunInput{
		RunID:      runID,
		AgentType:  template.Identifier(),
		UserPrompt: req.Prompt,
		MaxSteps:   maxSteps,
		Tools:      h.runtime.Registry.Definitions(template.ToolNames),
		Params:     req.Params,
	}

	log := messagelog.New(nil)
	state := h.runtime.Orchestrator.Run(ctx, runInput, template, runCtx, log)
	if err := h.runtime.RunStore.Save(ctx, state); err != nil {
		writeMappedError(w, err)
		return
	}

	status := http.StatusOK
	if state.Status == agent.AgentRunStatusSuspended {
		status = http.StatusAccepted
	}
	writeRunState(w, status, state)
}

func (h *handlers) handleRunQuery(w http.ResponseWriter, r *http.Request) {
	runID := agent.RunID(r.PathValue("run_id"))
	state, err := h.runtime.RunStore.Load(r.Context(), runID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeRunState(w, http.StatusOK, state)
}
