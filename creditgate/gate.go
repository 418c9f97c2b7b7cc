// Package creditgate implements the credit gate: it wraps a
// CreditBackend's reserve/consume calls in bounded, jittered retry so that
// transient backend failures surface to a run as an error only once the
// attempt budget is spent.
package creditgate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"agentruntime/agent"
	"agentruntime/policy/retry"
	"agentruntime/ports"
)

// TransientCode classifies a CreditBackend failure the gate will retry.
// Backends report these by wrapping their driver error in a TransientError;
// anything else propagates on the first attempt.
type TransientCode string

const (
	// TransientTransactionRollback covers serialization failures and deadlocks.
	TransientTransactionRollback TransientCode = "transaction_rollback"
	// TransientConnectionException covers dropped or reset connections.
	TransientConnectionException TransientCode = "connection_exception"
	// TransientOperatorIntervention covers backend timeouts and shutdowns.
	TransientOperatorIntervention TransientCode = "operator_intervention"
	// TransientInsufficientResources covers too-many-connections and OOM.
	TransientInsufficientResources TransientCode = "insufficient_resources"
)

// TransientError is the typed error a CreditBackend implementation returns
// for a failure the gate should retry rather than propagate.
type TransientError struct {
	Code TransientCode
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func isTransient(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}

// backoffScheduleNanos holds the fixed 1s/2s/4s/8s/16s (in ns) delays. jittered
// widens each by up to 20% using the global math/rand/v2 source, so the
// actual sleep durations Settle passes to Clock are not deterministic even
// under a fake Clock in tests — only their approximate magnitude is.
var backoffScheduleNanos = []int64{
	1_000_000_000,
	2_000_000_000,
	4_000_000_000,
	8_000_000_000,
	16_000_000_000,
}

const maxAttempts = 5

// Gate wraps a CreditBackend with the retry policy described by the credit
// gate design: exponential backoff on transient codes, capped attempts,
// immediate propagation of everything else.
type Gate struct {
	Backend  ports.CreditBackend
	Clock    ports.Clock
	FreeTier map[string]struct{} // agent ids that bypass Settle entirely
}

// New builds a Gate. freeTierAgentIDs lists agent ids that never charge.
func New(backend ports.CreditBackend, clock ports.Clock, freeTierAgentIDs []string) *Gate {
	freeTier := make(map[string]struct{}, len(freeTierAgentIDs))
	for _, id := range freeTierAgentIDs {
		freeTier[id] = struct{}{}
	}
	return &Gate{Backend: backend, Clock: clock, FreeTier: freeTier}
}

// FreeTierAgent reports whether agentID's charges bypass Settle.
func (g *Gate) FreeTierAgent(agentID string) bool {
	_, ok := g.FreeTier[agentID]
	return ok
}

// Preflight checks the user carries at least minRequired without mutating
// the ledger. It never retries transient failures.
func (g *Gate) Preflight(ctx context.Context, userID string, minRequired int64) (ports.PreflightResult, error) {
	return g.Backend.Preflight(ctx, userID, minRequired)
}

// Settle charges entry, retrying transient backend failures with the fixed
// exponential-backoff schedule and jitter. Settle itself is idempotent on
// entry.OperationID at the backend, so a retried attempt after a timed-out
// but actually-committed transaction is safe.
func (g *Gate) Settle(ctx context.Context, agentID string, entry agent.CreditLedgerEntry) (ports.SettleResult, error) {
	if g.FreeTierAgent(agentID) {
		return ports.SettleResult{Charged: true}, nil
	}

	backoff := make([]int64, len(backoffScheduleNanos))
	for i, d := range backoffScheduleNanos {
		backoff[i] = jittered(d)
	}

	result, err := retry.Do(ctx, g.Clock, retry.Config{
		MaxAttempts: maxAttempts,
		ShouldRetry: isTransient,
	}, backoff, func(int) (ports.SettleResult, error) {
		return g.Backend.Settle(ctx, entry)
	})
	if err != nil && isTransient(err) {
		return ports.SettleResult{}, fmt.Errorf("settle: exhausted %d attempts: %w", maxAttempts, err)
	}
	return result, err
}

// jittered widens or narrows d by up to 20%, spreading concurrent retries
// so they don't all hammer the backend on the same tick.
func jittered(d int64) int64 {
	spread := d / 5 // 20%
	offset := rand.Int64N(2*spread+1) - spread
	return d + offset
}
