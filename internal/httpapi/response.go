package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"agentruntime/agent"
)

const maxRequestBodyBytes = 1 << 20

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeNotFound       = "not_found"
	errorCodeConflict       = "conflict"
	errorCodeRuntime        = "runtime_error"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type pendingRequirementResponse struct {
	ID     string                `json:"id"`
	Kind   agent.RequirementKind `json:"kind"`
	Prompt string                `json:"prompt,omitempty"`
}

type runStateResponse struct {
	RunID              string                      `json:"run_id"`
	Status             agent.AgentRunStatus        `json:"status"`
	Step               int                         `json:"step"`
	Version            int64                       `json:"version"`
	CreditsUsed        int64                       `json:"credits_used"`
	Output             *agent.AgentOutput          `json:"output,omitempty"`
	Error              string                      `json:"error,omitempty"`
	PendingRequirement *pendingRequirementResponse `json:"pending_requirement,omitempty"`
}

func newRunStateResponse(state agent.AgentState) runStateResponse {
	resp := runStateResponse{
		RunID:       string(state.RunID),
		Status:      state.Status,
		Step:        state.Step,
		Version:     state.Version,
		CreditsUsed: state.CreditsUsed,
		Error:       state.Error,
	}
	if state.Output.Kind != "" {
		output := state.Output
		resp.Output = &output
	}
	if state.PendingRequirement != nil {
		resp.PendingRequirement = &pendingRequirementResponse{
			ID:     state.PendingRequirement.ID,
			Kind:   state.PendingRequirement.Kind,
			Prompt: state.PendingRequirement.Prompt,
		}
	}
	return resp
}

func writeRunState(w http.ResponseWriter, status int, state agent.AgentState) {
	writeJSON(w, status, newRunStateResponse(state))
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, message)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapRuntimeError(err)
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func mapRuntimeError(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrRunNotFound), errors.Is(err, agent.ErrUnknownAgent):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(err, agent.ErrRunVersionConflict), errors.Is(err, agent.ErrRequirementMismatch):
		return http.StatusConflict, errorCodeConflict
	case errors.Is(err, agent.ErrInvalidRunID), errors.Is(err, agent.ErrNoPendingRequirement):
		return http.StatusBadRequest, errorCodeInvalidRequest
	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}
