// Package inmem implements an optimistic-concurrency ports.RunStore backed
// by a map, for local development and as the default store wired by
// cmd/agentruntimed when no external database is configured.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"agentruntime/agent"
	"agentruntime/ports"
)

// Store persists agent.AgentState in memory with optimistic version checks.
type Store struct {
	mu     sync.RWMutex
	states map[agent.RunID]agent.AgentState
}

var _ ports.RunStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{states: make(map[agent.RunID]agent.AgentState)}
}

// Save persists state. A first save for a run must carry Version 0; every
// subsequent save must carry the version last returned by Load, or Save
// fails with agent.ErrRunVersionConflict and leaves the stored state
// untouched.
func (s *Store) Save(ctx context.Context, state agent.AgentState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := agent.ValidateAgentState(state); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.states[state.RunID]
	switch {
	case !exists:
		if state.Version != 0 {
			return fmt.Errorf("%w: run %q expected version 0 on create, got %d",
				agent.ErrRunVersionConflict, state.RunID, state.Version)
		}
	case state.Version != current.Version:
		return fmt.Errorf("%w: run %q expected version %d, got %d",
			agent.ErrRunVersionConflict, state.RunID, current.Version, state.Version)
	}

	next := agent.CloneAgentState(state)
	next.Version = state.Version + 1
	s.states[state.RunID] = next
	return nil
}

// Load returns the stored state for runID, or agent.ErrRunNotFound.
func (s *Store) Load(ctx context.Context, runID agent.RunID) (agent.AgentState, error) {
	if err := ctx.Err(); err != nil {
		return agent.AgentState{}, err
	}
	if runID == "" {
		return agent.AgentState{}, agent.ErrInvalidRunID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[runID]
	if !ok {
		return agent.AgentState{}, agent.ErrRunNotFound
	}
	return agent.CloneAgentState(state), nil
}

// Snapshot returns every stored state, deep-cloned, for callers that need
// to scan the whole store (e.g. reconcile.Scheduler locating in-flight
// parents). A durable RunStore backing a real deployment would query this
// directly rather than scanning.
func (s *Store) Snapshot() []agent.AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.AgentState, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, agent.CloneAgentState(state))
	}
	return out
}
