// Package readiness waits for an environment page to finish loading and
// settle before the agent is allowed to act.
package readiness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultSettleDelay  = 500 * time.Millisecond
)

// Probe reads the page's current readiness signal.
type Probe func(ctx context.Context) (schemas.ReadinessState, error)

// Clock abstracts time so tests can run the loop without waiting.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time                                   { return time.Now() }
func (realClock) Sleep(ctx context.Context, d time.Duration) error { return browser.Sleep(ctx, d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Waiter polls Probe until the document is complete and has content, and has
// stayed that way for SettleDelay.
type Waiter struct {
	Probe        Probe
	PollInterval time.Duration
	SettleDelay  time.Duration
	Clock        Clock
	Logger       *zap.Logger
}

// Ready reports whether a probe result satisfies both conditions.
func Ready(st schemas.ReadinessState) bool {
	return st.ReadyState == "complete" && st.ChildCount > 0
}

func describe(st schemas.ReadinessState, err error) string {
	if err != nil {
		return fmt.Sprintf("probe error: %v", err)
	}
	return fmt.Sprintf("readyState=%q childCount=%d", st.ReadyState, st.ChildCount)
}

// Wait blocks until the page is ready and settled, or fails with a timeout
// error carrying the elapsed time and the last observed state. Probe errors
// count as not ready.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) error {
	clock := w.Clock
	if clock == nil {
		clock = RealClock
	}
	poll := w.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	settle := w.SettleDelay
	if settle < 0 {
		settle = 0
	}
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := clock.Now()
	deadline := start.Add(timeout)

	// Every readiness check shares the budget, so a page stuck in a script
	// cannot hold the wait past timeout.
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		readySince time.Time
		lastState  = "no probe completed"
	)
	for {
		st, err := w.Probe(pctx)
		now := clock.Now()
		lastState = describe(st, err)
		if perr := pctx.Err(); perr != nil {
			msg := "page did not become ready"
			if ctx.Err() != nil {
				msg = "wait interrupted"
			}
			return schemas.NewTimeoutError("wait-ready", now.Sub(start), "%s", msg).
				WithState(lastState).WithCause(perr)
		}

		if err == nil && Ready(st) {
			if readySince.IsZero() {
				readySince = now
				logger.Debug("Page ready, settling.", zap.Duration("settle", settle))
			}
			if now.Sub(readySince) >= settle {
				logger.Debug("Page settled.", zap.Duration("elapsed", now.Sub(start)))
				return nil
			}
		} else {
			readySince = time.Time{}
		}

		if !now.Before(deadline) {
			return schemas.NewTimeoutError("wait-ready", now.Sub(start), "page did not become ready").
				WithState(lastState)
		}

		wait := poll
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := clock.Sleep(pctx, wait); err != nil {
			msg := "page did not become ready"
			if ctx.Err() != nil {
				msg = "wait interrupted"
			}
			return schemas.NewTimeoutError("wait-ready", clock.Now().Sub(start), "%s", msg).
				WithState(lastState).WithCause(err)
		}
	}
}
