package dispatch

import (
	"context"
	"sync"
)

// fileProcessingState lets handlers that edit files coalesce: concurrent
// calls touching the same path are chained so the second call's edit is
// applied only after the first has recorded its effect, while calls to
// distinct paths proceed independently.
type fileProcessingState struct {
	mu   sync.Mutex
	tail map[string]*handle
}

func newFileProcessingState() *fileProcessingState {
	return &fileProcessingState{tail: make(map[string]*handle)}
}

// Begin returns a wait function for the previous operation on path (a no-op
// if there was none) and registers a new tail handle that must be completed
// by calling the returned done function.
func (f *fileProcessingState) Begin(path string) (wait func(ctx context.Context) error, done func()) {
	f.mu.Lock()
	previous := f.tail[path]
	mine := newHandle()
	f.tail[path] = mine
	f.mu.Unlock()

	wait = func(ctx context.Context) error {
		if previous == nil {
			return nil
		}
		return previous.wait(ctx)
	}
	done = mine.done
	return wait, done
}

type fileProcessingContextKey struct{}

// withFileProcessingState attaches the dispatcher's per-path chain to ctx so
// native handlers can participate via FileProcessingStateFromContext.
func withFileProcessingState(ctx context.Context, state *fileProcessingState) context.Context {
	return context.WithValue(ctx, fileProcessingContextKey{}, state)
}

// FileProcessingStateFromContext retrieves the per-path chain coordinator
// for the current step, if any.
func FileProcessingStateFromContext(ctx context.Context) (*fileProcessingState, bool) {
	state, ok := ctx.Value(fileProcessingContextKey{}).(*fileProcessingState)
	return state, ok
}
