package crawler

import (
	"context"
	"time"
)

// Pacer abstracts how the crawler waits between requests so tests can skip
// real sleeps.
type Pacer interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPacer waits on a real timer, honoring context cancellation.
type TimerPacer struct{}

// Pause blocks for delay or until the context finishes.
func (TimerPacer) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
