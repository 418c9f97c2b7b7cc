package agent

import (
	"errors"
	"fmt"
)

// ValidateAgentState checks structural agent-state invariants before
// persistence boundaries (run store writes, checkpoint emission).
func ValidateAgentState(state AgentState) error {
	if state.RunID == "" {
		return errors.Join(
			ErrAgentStateInvalid,
			fmt.Errorf("%w: field=run_id reason=empty", ErrInvalidRunID),
		)
	}
	if state.Step < 0 {
		return fmt.Errorf(
			"%w: field=step reason=negative value=%d run_id=%q",
			ErrAgentStateInvalid,
			state.Step,
			state.RunID,
		)
	}
	if state.Version < 0 {
		return fmt.Errorf(
			"%w: field=version reason=negative value=%d run_id=%q",
			ErrAgentStateInvalid,
			state.Version,
			state.RunID,
		)
	}
	if state.StepsRemaining < 0 {
		return fmt.Errorf(
			"%w: field=steps_remaining reason=negative value=%d run_id=%q",
			ErrAgentStateInvalid,
			state.StepsRemaining,
			state.RunID,
		)
	}
	if !isKnownRunStatus(state.Status) {
		return fmt.Errorf(
			"%w: field=status reason=unknown value=%q run_id=%q",
			ErrAgentStateInvalid,
			state.Status,
			state.RunID,
		)
	}
	return nil
}

func isKnownRunStatus(status AgentRunStatus) bool {
	switch status {
	case AgentRunStatusPending,
		AgentRunStatusRunning,
		AgentRunStatusSuspended,
		AgentRunStatusCompleted,
		AgentRunStatusMaxSteps,
		AgentRunStatusAborted,
		AgentRunStatusError,
		AgentRunStatusOutOfCredits:
		return true
	default:
		return false
	}
}
