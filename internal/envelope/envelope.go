// Package envelope wraps every interaction in the same shape: time it, map its
// error onto the session taxonomy, record it into the trajectory and report
// a uniform CommandResult.
package envelope

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/metrics"
	"github.com/xkilldash9x/scalewob/internal/trajectory"
)

// Action describes one interaction about to run.
type Action struct {
	Kind schemas.GestureKind
	// Params are the logical parameters the caller supplied. They are copied
	// into the trajectory entry as given.
	Params map[string]interface{}
	// Record is true while an evaluation round is open.
	Record  bool
	Timeout time.Duration
}

// Func performs the interaction and returns what it learned about the page.
type Func func(ctx context.Context) (map[string]interface{}, error)

type Envelope struct {
	Recorder       *trajectory.Recorder
	RecordFailures bool
	Platform       schemas.Platform
	// Now defaults to time.Now.
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

func (e *Envelope) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Envelope) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Interact runs fn under action's timeout and returns the command result. The
// trajectory entry is stamped with the time the command was issued.
func (e *Envelope) Interact(ctx context.Context, action Action, fn Func) (schemas.CommandResult, error) {
	issued := e.now()
	op := string(action.Kind)

	cctx, cancel := withTimeout(ctx, action.Timeout)
	data, err := fn(cctx)
	cancel()
	elapsed := e.now().Sub(issued)

	outcome := schemas.OutcomeOK
	if err != nil {
		err = Classify(op, err, elapsed)
		outcome = schemas.OutcomeFailed
		e.logger().Warn("Interaction failed.",
			zap.String("action", op),
			zap.String("kind", string(schemas.KindOf(err))),
			zap.Error(err))
	}

	if action.Record && e.Recorder != nil && (err == nil || e.RecordFailures) {
		entry := schemas.TrajectoryEntry{
			Timestamp: issued,
			Kind:      schemas.KindForGesture(action.Kind),
			Action:    action.Kind,
			Outcome:   outcome,
			Data:      merge(action.Params, data),
		}
		if rerr := e.Recorder.Record(entry); rerr != nil {
			e.logger().Error("Could not record trajectory entry.", zap.String("action", op), zap.Error(rerr))
		}
	}

	e.Metrics.RecordAction(op, string(e.Platform), string(outcome), elapsed)

	return schemas.CommandResult{
		Success:  err == nil,
		Action:   action.Kind,
		Data:     data,
		Duration: elapsed,
	}, err
}

// Call runs a query that is never recorded, with the same timeout and error
// mapping as Interact.
func (e *Envelope) Call(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := e.now()
	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := fn(cctx); err != nil {
		return Classify(op, err, e.now().Sub(start))
	}
	return nil
}

// Classify maps err onto the session error taxonomy. Errors already in the
// taxonomy pass through unchanged.
func Classify(op string, err error, elapsed time.Duration) error {
	if err == nil {
		return nil
	}
	if _, ok := schemas.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return schemas.NewTimeoutError(op, elapsed, "command %s timed out", op).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return schemas.NewTimeoutError(op, elapsed, "command %s was interrupted", op).WithCause(err)
	}
	var se *browser.ScriptError
	if errors.As(err, &se) {
		return schemas.NewCommandError(op, "page rejected %s: %s", op, se.Message).WithCause(err)
	}
	return schemas.NewCommandError(op, "command %s failed", op).WithCause(err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// merge layers observed data over a copy of params. Observed keys win.
func merge(params, observed map[string]interface{}) map[string]interface{} {
	out := schemas.CloneParams(params)
	if out == nil {
		out = make(map[string]interface{}, len(observed))
	}
	for k, v := range observed {
		out[k] = v
	}
	return out
}
