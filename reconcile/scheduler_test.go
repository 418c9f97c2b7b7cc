package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"agentruntime/agent"
	"agentruntime/creditgate"
)

type countingLogger struct{ errors int32 }

func (l *countingLogger) Debug(string, ...any) {}
func (l *countingLogger) Info(string, ...any)  {}
func (l *countingLogger) Warn(string, ...any)  {}
func (l *countingLogger) Error(string, ...any) { atomic.AddInt32(&l.errors, 1) }

func TestParseScheduleRejectsInvalidExpression(t *testing.T) {
	if _, err := ParseSchedule("not a cron expression"); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestNewSchedulerRejectsInvalidExpression(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{}
	gate := creditgate.New(backend, fakeReconcileClock{}, nil)
	reconciler := New(store, gate)

	_, err := NewScheduler(reconciler, &countingLogger{}, fakeReconcileClock{}, "garbage", func() []InFlightParent { return nil })
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestSchedulerTickReconcilesEveryParent(t *testing.T) {
	parentA := agent.AgentState{RunID: "run-a", SpawnedChildRunIDs: []agent.RunID{"child-a"}}
	childA := agent.AgentState{RunID: "child-a", Status: agent.AgentRunStatusCompleted, CreditsUsed: 7}
	parentB := agent.AgentState{RunID: "run-b", SpawnedChildRunIDs: []agent.RunID{"child-b"}}
	childB := agent.AgentState{RunID: "child-b", Status: agent.AgentRunStatusCompleted, CreditsUsed: 3}

	store := newFakeStore(parentA, childA, parentB, childB)
	backend := &fakeBackend{}
	gate := creditgate.New(backend, fakeReconcileClock{}, nil)
	reconciler := New(store, gate)
	logger := &countingLogger{}

	sched, err := NewScheduler(reconciler, logger, fakeReconcileClock{}, "* * * * *", func() []InFlightParent {
		return []InFlightParent{{RunID: "run-a"}, {RunID: "run-b"}}
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	sched.tick(context.Background())

	if len(backend.calls) != 2 {
		t.Fatalf("expected both parents reconciled in one tick, got %d settle calls", len(backend.calls))
	}
	if atomic.LoadInt32(&logger.errors) != 0 {
		t.Fatalf("expected no reconciliation errors, got %d", logger.errors)
	}
}

func TestSchedulerTickLogsReconciliationErrors(t *testing.T) {
	store := newFakeStore() // empty: any lookup is agent.ErrRunNotFound
	backend := &fakeBackend{}
	gate := creditgate.New(backend, fakeReconcileClock{}, nil)
	reconciler := New(store, gate)
	logger := &countingLogger{}

	sched, err := NewScheduler(reconciler, logger, fakeReconcileClock{}, "* * * * *", func() []InFlightParent {
		return []InFlightParent{{RunID: "missing"}}
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	sched.tick(context.Background())

	if atomic.LoadInt32(&logger.errors) != 1 {
		t.Fatalf("expected one logged reconciliation error, got %d", logger.errors)
	}
}

func TestSchedulerRunReturnsOnContextCancellation(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{}
	gate := creditgate.New(backend, fakeReconcileClock{}, nil)
	reconciler := New(store, gate)

	// A once-a-year schedule guarantees Run's first sleep outlasts the test's
	// short timeout, so this exercises cancellation rather than a real tick.
	sched, err := NewScheduler(reconciler, &countingLogger{}, fakeReconcileClock{}, "0 0 1 1 *", func() []InFlightParent { return nil })
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return shortly after its context was cancelled")
	}
}
