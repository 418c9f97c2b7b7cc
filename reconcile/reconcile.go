// Package reconcile rolls a spawned child run's credits into its parent's
// ledger once the child reaches a terminal status. It exists because
// spawn_agents(async) returns to the parent before its children finish, so
// nothing in the parent's own step loop ever sees a detached child's final
// credit total.
package reconcile

import (
	"context"
	"fmt"

	"agentruntime/agent"
	"agentruntime/creditgate"
	"agentruntime/ports"
)

// InFlightParent names one run a Scheduler tick should check for
// reconcilable children.
type InFlightParent struct {
	RunID     agent.RunID
	AgentType string
	UserID    string
}

// Reconciler rolls up terminal children of a single parent run.
type Reconciler struct {
	Store ports.RunStore
	Gate  *creditgate.Gate
}

// New builds a Reconciler.
func New(store ports.RunStore, gate *creditgate.Gate) *Reconciler {
	return &Reconciler{Store: store, Gate: gate}
}

// ReconcileRun settles a CreditEntryKindSpawned charge against parent's
// ledger for every spawned child that has reached a terminal status and
// has not already been reconciled, then persists the updated parent state.
// It returns how many children were rolled up.
func (r *Reconciler) ReconcileRun(ctx context.Context, parent InFlightParent) (int, error) {
	state, err := r.Store.Load(ctx, parent.RunID)
	if err != nil {
		return 0, fmt.Errorf("reconcile: load parent %s: %w", parent.RunID, err)
	}

	alreadyReconciled := make(map[agent.RunID]struct{}, len(state.ReconciledChildRunIDs))
	for _, id := range state.ReconciledChildRunIDs {
		alreadyReconciled[id] = struct{}{}
	}

	settled := 0
	for _, childID := range state.SpawnedChildRunIDs {
		if _, done := alreadyReconciled[childID]; done {
			continue
		}

		child, err := r.Store.Load(ctx, childID)
		if err != nil {
			return settled, fmt.Errorf("reconcile: load child %s: %w", childID, err)
		}
		if !agent.IsTerminalRunStatus(child.Status) {
			continue
		}

		if child.CreditsUsed > 0 {
			_, err := r.Gate.Settle(ctx, parent.AgentType, agent.CreditLedgerEntry{
				UserID:      parent.UserID,
				Amount:      child.CreditsUsed,
				OperationID: fmt.Sprintf("reconcile:%s:%s", parent.RunID, childID),
				Kind:        agent.CreditEntryKindSpawned,
			})
			if err != nil {
				return settled, fmt.Errorf("reconcile: settle child %s into parent %s: %w", childID, parent.RunID, err)
			}
			state.CreditsUsed += child.CreditsUsed
		}

		state.ReconciledChildRunIDs = append(state.ReconciledChildRunIDs, childID)
		settled++
	}

	if settled == 0 {
		return 0, nil
	}
	if err := r.Store.Save(ctx, state); err != nil {
		return settled, fmt.Errorf("reconcile: save parent %s: %w", parent.RunID, err)
	}
	return settled, nil
}
