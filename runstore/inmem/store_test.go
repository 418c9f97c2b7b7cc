package inmem_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"agentruntime/agent"
	runstoreinmem "agentruntime/runstore/inmem"
)

func TestStoreSaveVersioningAndConflict(t *testing.T) {
	t.Parallel()

	store := runstoreinmem.New()
	runID := agent.RunID("run-1")
	initial := agent.AgentState{RunID: runID, Status: agent.AgentRunStatusPending}

	if err := store.Save(context.Background(), initial); err != nil {
		t.Fatalf("save initial state: %v", err)
	}

	firstSnapshot, err := store.Load(context.Background(), runID)
	if err != nil {
		t.Fatalf("load first snapshot: %v", err)
	}
	if firstSnapshot.Version != 1 {
		t.Fatalf("unexpected first version: %d", firstSnapshot.Version)
	}

	updated := firstSnapshot
	updated.Step = 1
	if err := store.Save(context.Background(), updated); err != nil {
		t.Fatalf("save updated state: %v", err)
	}

	secondSnapshot, err := store.Load(context.Background(), runID)
	if err != nil {
		t.Fatalf("load second snapshot: %v", err)
	}
	if secondSnapshot.Version != 2 {
		t.Fatalf("unexpected second version: %d", secondSnapshot.Version)
	}

	stale := firstSnapshot
	stale.Step = 99
	err = store.Save(context.Background(), stale)
	if !errors.Is(err, agent.ErrRunVersionConflict) {
		t.Fatalf("expected ErrRunVersionConflict, got %v", err)
	}

	latest, err := store.Load(context.Background(), runID)
	if err != nil {
		t.Fatalf("load latest snapshot: %v", err)
	}
	if latest.Version != secondSnapshot.Version || latest.Step != secondSnapshot.Step {
		t.Fatalf("state changed after stale write attempt: got=%+v want=%+v", latest, secondSnapshot)
	}
}

func TestStoreSaveRejectsInvalidStateWithoutSideEffects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		state agent.AgentState
	}{
		{name: "empty run id", state: agent.AgentState{Status: agent.AgentRunStatusPending}},
		{name: "negative step", state: agent.AgentState{RunID: "run-a", Step: -1, Status: agent.AgentRunStatusPending}},
		{name: "negative version", state: agent.AgentState{RunID: "run-b", Version: -1, Status: agent.AgentRunStatusPending}},
		{name: "unknown status", state: agent.AgentState{RunID: "run-c", Status: agent.AgentRunStatus("mystery")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := runstoreinmem.New()
			seed := agent.AgentState{RunID: "seed-run", Status: agent.AgentRunStatusPending}
			if err := store.Save(context.Background(), seed); err != nil {
				t.Fatalf("seed save: %v", err)
			}
			before, err := store.Load(context.Background(), seed.RunID)
			if err != nil {
				t.Fatalf("load seeded state: %v", err)
			}

			if err := store.Save(context.Background(), tc.state); !errors.Is(err, agent.ErrAgentStateInvalid) {
				t.Fatalf("expected ErrAgentStateInvalid, got %v", err)
			}

			after, err := store.Load(context.Background(), seed.RunID)
			if err != nil {
				t.Fatalf("reload seeded state: %v", err)
			}
			if !reflect.DeepEqual(after, before) {
				t.Fatalf("persisted seeded state changed after rejected save: got=%+v want=%+v", after, before)
			}
		})
	}
}

func TestStoreLoadRejectsEmptyRunID(t *testing.T) {
	t.Parallel()

	store := runstoreinmem.New()
	_, err := store.Load(context.Background(), "")
	if !errors.Is(err, agent.ErrInvalidRunID) {
		t.Fatalf("expected ErrInvalidRunID, got %v", err)
	}
	if errors.Is(err, agent.ErrRunNotFound) {
		t.Fatalf("expected empty-id load not to match ErrRunNotFound, got %v", err)
	}
}

func TestStoreFailsFastOnDoneContext(t *testing.T) {
	t.Parallel()

	newCanceledContext := func() context.Context {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	newDeadlineContext := func() context.Context {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		cancel()
		return ctx
	}

	tests := []struct {
		name       string
		newContext func() context.Context
		wantErr    error
	}{
		{name: "canceled", newContext: newCanceledContext, wantErr: context.Canceled},
		{name: "deadline_exceeded", newContext: newDeadlineContext, wantErr: context.DeadlineExceeded},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := runstoreinmem.New()
			state := agent.AgentState{RunID: "run-fast-fail", Status: agent.AgentRunStatusPending}

			if err := store.Save(tc.newContext(), state); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if _, loadErr := store.Load(context.Background(), state.RunID); !errors.Is(loadErr, agent.ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound after failed save, got %v", loadErr)
			}
		})
	}
}
