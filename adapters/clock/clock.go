// Package clock implements ports.Clock against the real wall clock, for
// production wiring. Tests use their own fakes so retry backoff schedules
// stay deterministic; this adapter exists for cmd/agentruntimed.
package clock

import (
	"context"
	"time"

	"agentruntime/ports"
)

// Wall is a ports.Clock backed by time.Now and time.Timer.
type Wall struct{}

var _ ports.Clock = Wall{}

// New returns the real wall clock.
func New() Wall { return Wall{} }

// Now returns the current time as Unix nanoseconds.
func (Wall) Now() int64 { return time.Now().UnixNano() }

// Sleep blocks for d nanoseconds or until ctx is cancelled, whichever comes first.
func (Wall) Sleep(ctx context.Context, d int64) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
