package agent

import "fmt"

func isTerminalRunStatus(status AgentRunStatus) bool {
	switch status {
	case AgentRunStatusCompleted, AgentRunStatusMaxSteps, AgentRunStatusError, AgentRunStatusAborted, AgentRunStatusOutOfCredits:
		return true
	default:
		return false
	}
}

// IsTerminalRunStatus reports whether status is one a run will not leave
// without an explicit follow-up (a resumed completed run, a resumed
// max-steps run), meaning its accumulated credits are safe to roll up into
// a parent run's ledger.
func IsTerminalRunStatus(status AgentRunStatus) bool {
	return isTerminalRunStatus(status)
}

func validateRunStatusTransition(from, to AgentRunStatus) error {
	if from == to {
		return nil
	}

	allowed, ok := allowedRunStatusTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source status %q", ErrInvalidRunStatusTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRunStatusTransition, from, to)
	}
	return nil
}

func transitionRunStatus(state *AgentState, to AgentRunStatus) error {
	if err := validateRunStatusTransition(state.Status, to); err != nil {
		return err
	}
	state.Status = to
	return nil
}

// TransitionRunStatus drives state.Status to to, rejecting moves not
// present in the allowed-transition table.
func TransitionRunStatus(state *AgentState, to AgentRunStatus) error {
	return transitionRunStatus(state, to)
}

var allowedRunStatusTransitions = map[AgentRunStatus]map[AgentRunStatus]struct{}{
	"": {
		AgentRunStatusPending: {},
	},
	AgentRunStatusPending: {
		AgentRunStatusRunning: {},
		AgentRunStatusAborted: {},
	},
	AgentRunStatusRunning: {
		AgentRunStatusSuspended:    {},
		AgentRunStatusAborted:      {},
		AgentRunStatusCompleted:    {},
		AgentRunStatusError:        {},
		AgentRunStatusMaxSteps:     {},
		AgentRunStatusOutOfCredits: {},
	},
	AgentRunStatusSuspended: {
		AgentRunStatusRunning: {},
		AgentRunStatusAborted: {},
		AgentRunStatusError:   {},
	},
	AgentRunStatusMaxSteps: {
		AgentRunStatusRunning: {},
		AgentRunStatusAborted: {},
	},
	AgentRunStatusCompleted: {
		// A completed run can still be resumed by a follow-up command, which
		// appends a new user message and grants fresh step budget.
		AgentRunStatusRunning: {},
	},
	AgentRunStatusError:        {},
	AgentRunStatusAborted:      {},
	AgentRunStatusOutOfCredits: {},
}
