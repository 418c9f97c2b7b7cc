package clock_test

import (
	"context"
	"testing"
	"time"

	"agentruntime/adapters/clock"
)

func TestNowAdvances(t *testing.T) {
	w := clock.New()
	first := w.Now()
	time.Sleep(time.Millisecond)
	second := w.Now()
	if second <= first {
		t.Fatalf("expected Now to advance, got %d then %d", first, second)
	}
}

func TestSleepReturnsAfterDuration(t *testing.T) {
	w := clock.New()
	started := time.Now()
	if err := w.Sleep(context.Background(), int64(10*time.Millisecond)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 10*time.Millisecond {
		t.Fatalf("expected at least 10ms to elapse, got %s", elapsed)
	}
}

func TestSleepReturnsOnContextCancel(t *testing.T) {
	w := clock.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Sleep(ctx, int64(time.Second)); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestSleepZeroOrNegativeReturnsImmediately(t *testing.T) {
	w := clock.New()
	if err := w.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Sleep(context.Background(), -1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
