package httpapi

import (
	"net/http"

	"agentruntime/agent"
	"agentruntime/messagelog"
)

type followUpRequest struct {
	Prompt          string `json:"prompt"`
	AdditionalSteps int    `json:"additional_steps,omitempty"`
}

func (h *handlers) handleRunFollowUp(w http.ResponseWriter, r *http.Request) {
	runID := agent.RunID(r.PathValue("run_id"))

	var req followUpRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.Prompt == "" {
		writeInvalidRequest(w, "prompt is required")
		return
	}

	ctx := r.Context()
	state, err := h.runtime.RunStore.Load(ctx, runID)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	template, err := h.runtime.Templates.Resolve(ctx, state.AgentType)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	runCtx := agent.RunContext{RunID: runID, UserID: ""}
	runInput := agent.RunInput{
		RunID:     runID,
		AgentType: state.AgentType,
		Tools:     h.runtime.Registry.Definitions(template.ToolNames),
	}
	log := messagelog.New(state.MessageHistory)

	next := h.runtime.Orchestrator.FollowUp(ctx, state, runInput, template, runCtx, log, req.Prompt, req.AdditionalSteps)
	if err := h.runtime.RunStore.Save(ctx, next); err != nil {
		writeMappedError(w, err)
		return
	}
	writeRunState(w, http.StatusOK, next)
}

type resumeRequest struct {
	RequirementID string                  `json:"requirement_id"`
	Kind          agent.RequirementKind   `json:"kind"`
	Outcome       agent.ResolutionOutcome `json:"outcome"`
	Value         string                  `json:"value,omitempty"`
}

func (h *handlers) handleRunResume(w http.ResponseWriter, r *http.Request) {
	runID := agent.RunID(r.PathValue("run_id"))

	var req resumeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.RequirementID == "" {
		writeInvalidRequest(w, "requirement_id is required")
		return
	}

	ctx := r.Context()
	state, err := h.runtime.RunStore.Load(ctx, runID)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	template, err := h.runtime.Templates.Resolve(ctx, state.AgentType)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	runCtx := agent.RunContext{RunID: runID, UserID: ""}
	runInput := agent.RunInput{
		RunID:     runID,
		AgentType: state.AgentType,
		Tools:     h.runtime.Registry.Definitions(template.ToolNames),
	}
	log := messagelog.New(state.MessageHistory)

	resolution := agent.Resolution{
		RequirementID: req.RequirementID,
		Kind:          req.Kind,
		Outcome:       req.Outcome,
		Value:         req.Value,
	}

	next := h.runtime.Orchestrator.Resume(ctx, state, runInput, template, runCtx, log, resolution)
	if err := h.runtime.RunStore.Save(ctx, next); err != nil {
		writeMappedError(w, err)
		return
	}
	writeRunState(w, http.StatusOK, next)
}
