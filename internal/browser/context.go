package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary (keeping its values, which
// for chromedp carry the target connection) that is also canceled when
// secondary is done. secondary usually carries the operation deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// detached keeps the parent's values but drops its deadline and cancellation.
type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach returns a context that survives ctx's cancellation. Gesture cleanup
// (releasing a pressed pointer) runs on it so a timed-out gesture never leaves
// a finger or button down.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}

// CleanupContext is Detach bounded by a short budget of its own.
func CleanupContext(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(Detach(ctx), budget)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
