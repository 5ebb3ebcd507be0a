// Package automation is the interaction surface an agent drives a ScaleWoB
// environment through. A Session owns one browser, one lifecycle and one
// trajectory; its methods are serialized and run to completion.
//
// Coordinates given to Session methods are screenshot pixels. They are
// divided by the screenshot scale before anything reaches the page.
package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/browser/page"
	"github.com/xkilldash9x/scalewob/internal/config"
	"github.com/xkilldash9x/scalewob/internal/envelope"
	"github.com/xkilldash9x/scalewob/internal/gesture"
	"github.com/xkilldash9x/scalewob/internal/lifecycle"
	"github.com/xkilldash9x/scalewob/internal/metrics"
	"github.com/xkilldash9x/scalewob/internal/readiness"
	"github.com/xkilldash9x/scalewob/internal/results"
	"github.com/xkilldash9x/scalewob/internal/scaler"
	"github.com/xkilldash9x/scalewob/internal/taskschema"
	"github.com/xkilldash9x/scalewob/internal/trajectory"
)

const closeBudget = 10 * time.Second

// Session is one agent's connection to one environment.
type Session struct {
	id      string
	opts    Options
	profile schemas.DeviceProfile
	scaler  *scaler.Scaler

	launcher browser.Launcher
	logger   *zap.Logger
	metrics  *metrics.Collector
	sinks    []results.Sink
	fanout   *results.Fanout
	tasks    TaskSource
	schema   *schemas.TaskSchema
	clock    readiness.Clock

	mu         sync.Mutex
	machine    *lifecycle.Machine
	recorder   *trajectory.Recorder
	env        *envelope.Envelope
	driver     browser.Driver
	gestures   *gesture.Translator
	lastResult *schemas.EvaluationResult
	evalStart  time.Time
}

// New validates opts and prepares a session. Nothing is launched until Start.
func New(opts Options, options ...Option) (*Session, error) {
	opts = opts.withDefaults()
	if opts.EnvID == "" {
		return nil, schemas.NewCommandError("new-session", "environment id is required")
	}
	platform, err := schemas.ParsePlatform(string(opts.Platform))
	if err != nil {
		return nil, err
	}
	opts.Platform = platform
	sc, err := scaler.ForQuality(opts.ScreenshotQuality)
	if err != nil {
		return nil, schemas.NewCommandError("new-session", "%v", err)
	}

	s := &Session{
		id:       uuid.NewString(),
		opts:     opts,
		scaler:   sc,
		logger:   zap.NewNop(),
		clock:    readiness.RealClock,
		machine:  lifecycle.New(),
		recorder: trajectory.New(),
	}
	for _, o := range options {
		o(s)
	}
	s.logger = s.logger.Named("session").With(
		zap.String("session_id", s.id),
		zap.String("env_id", opts.EnvID),
		zap.String("platform", string(opts.Platform)))

	s.profile = schemas.ProfileFor(opts.Platform)
	s.profile.Headless = opts.Headless
	if s.launcher == nil {
		s.launcher = LauncherFor(config.BrowserConfig{Headless: opts.Headless}, s.logger)
	}
	s.fanout = results.NewFanout(s.logger, s.sinks...)
	s.env = &envelope.Envelope{
		Recorder:       s.recorder,
		RecordFailures: opts.RecordFailures,
		Platform:       opts.Platform,
		Now:            s.clock.Now,
		Logger:         s.logger,
		Metrics:        s.metrics,
	}

	s.machine.OnTransition(func(from, to lifecycle.State) {
		s.logger.Info("Session state changed.", zap.String("from", string(from)), zap.String("to", string(to)))
		s.metrics.RecordTransition(string(from), string(to))
	})
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Options returns the effective options, defaults applied.
func (s *Session) Options() Options { return s.opts }

// Scale is the screenshot magnification factor.
func (s *Session) Scale() float64 { return s.scaler.Scale() }

// Start launches the browser, opens the environment and waits for it to be
// interactive. The browser is released if any step fails.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "start"
	if err := s.machine.Require(op, lifecycle.Uninitialized); err != nil {
		return err
	}

	drv, err := s.launcher.Launch(ctx, s.profile)
	if err != nil {
		return schemas.NewBrowserError(op, "could not launch browser").WithCause(err)
	}
	defer func() {
		if err != nil {
			s.release(ctx, drv)
		}
	}()

	url := fmt.Sprintf("%s/%s/index.html", s.opts.BaseURL, s.opts.EnvID)
	if err := drv.Navigate(ctx, url); err != nil {
		return schemas.NewBrowserError(op, "could not open %s", url).WithCause(err)
	}
	if err := s.waitReady(ctx, drv, s.opts.StartReadyTimeout); err != nil {
		return err
	}

	s.driver = drv
	s.gestures = gesture.New(s.opts.Platform, drv, gesture.Options{
		GestureSettle:    s.opts.GestureSettle,
		NavigationSettle: s.opts.NavigationSettle,
		CleanupBudget:    gesture.DefaultOptions().CleanupBudget,
	}, s.logger)
	s.resolveSchema(ctx)

	s.logger.Info("Environment loaded.", zap.String("url", url))
	return s.machine.Transition(lifecycle.Started)
}

func (s *Session) waitReady(ctx context.Context, ev page.Evaluator, timeout time.Duration) error {
	w := readiness.Waiter{
		Probe:        func(ctx context.Context) (schemas.ReadinessState, error) { return page.Readiness(ctx, ev) },
		PollInterval: s.opts.PollInterval,
		SettleDelay:  s.opts.SettleDelay,
		Clock:        s.clock,
		Logger:       s.logger,
	}
	start := s.clock.Now()
	err := w.Wait(ctx, timeout)
	s.metrics.RecordReadinessWait(s.clock.Now().Sub(start))
	return err
}

// resolveSchema asks the task source for the schema once. A failed lookup
// leaves the session without validation.
func (s *Session) resolveSchema(ctx context.Context) {
	if s.schema != nil || s.tasks == nil {
		return
	}
	task, err := s.tasks.Lookup(ctx, s.opts.TaskID)
	if err != nil {
		s.logger.Warn("Task schema unavailable, parameters will not be validated.",
			zap.String("task_id", s.opts.TaskID), zap.Error(err))
		return
	}
	s.schema = task.Schema
}

// StartEvaluation opens an evaluation round with an empty trajectory. It may
// follow Start or a finished round.
func (s *Session) StartEvaluation(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "start-evaluation"
	if err := s.machine.Require(op, lifecycle.Started, lifecycle.Finished); err != nil {
		return err
	}
	if err := s.waitReady(ctx, s.driver, s.opts.Timeout); err != nil {
		return err
	}
	s.recorder.Reset()
	s.evalStart = s.clock.Now()
	return s.machine.Transition(lifecycle.Evaluating)
}

// FinishEvaluation submits the trajectory and params to the environment's
// evaluator. A result with Success=false is a valid outcome. On any error
// the round stays open and the trajectory is kept, so the call can be retried.
func (s *Session) FinishEvaluation(ctx context.Context, params map[string]interface{}) (*schemas.EvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "finish-evaluation"
	if err := s.machine.Require(op, lifecycle.Evaluating); err != nil {
		return nil, err
	}

	submitted, visible, err := taskschema.Validate(s.schema, params)
	if err != nil {
		return nil, err
	}

	entries := s.recorder.Drain()
	payload := make(map[string]interface{}, len(submitted)+3)
	for k, v := range submitted {
		payload[k] = v
	}
	payload["trajectory"] = entries
	payload["parameters"] = submitted
	payload["taskId"] = s.opts.TaskID

	res, err := page.EvaluateTask(ctx, s.driver, payload, s.opts.EvaluationTimeout)
	if err != nil {
		s.metrics.RecordEvaluation("error")
		s.logger.Warn("Evaluation failed.", zap.String("kind", string(schemas.KindOf(err))), zap.Error(err))
		return nil, err
	}

	res.TaskID = s.opts.TaskID
	res.Params = visible
	res.FinishedAt = s.clock.Now()
	if err := s.machine.Transition(lifecycle.Finished); err != nil {
		return nil, err
	}
	s.lastResult = res
	if res.Success {
		s.metrics.RecordEvaluation("passed")
	} else {
		s.metrics.RecordEvaluation("failed")
	}
	s.logger.Info("Evaluation finished.", zap.Bool("success", res.Success), zap.Int("entries", len(entries)))

	s.publish(ctx, schemas.EvaluationRecord{
		RunID:      uuid.NewString(),
		SessionID:  s.id,
		EnvID:      s.opts.EnvID,
		TaskID:     s.opts.TaskID,
		Platform:   s.opts.Platform,
		Result:     *res,
		Trajectory: entries,
		StartedAt:  s.evalStart,
		FinishedAt: res.FinishedAt,
	})

	out := *res
	return &out, nil
}

// publish hands a record to the sinks. Failures are logged, never returned.
func (s *Session) publish(ctx context.Context, rec schemas.EvaluationRecord) {
	if s.fanout.Len() == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()
	if err := s.fanout.Publish(pctx, rec); err != nil {
		s.logger.Warn("Evaluation result not delivered to every sink.", zap.String("run_id", rec.RunID), zap.Error(err))
	}
}

// GetEvaluationResult returns the last finished round's result, or nil.
func (s *Session) GetEvaluationResult() *schemas.EvaluationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return nil
	}
	out := *s.lastResult
	return &out
}

// GetTrajectory returns a copy of the current round's entries.
func (s *Session) GetTrajectory() []schemas.TrajectoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.Entries()
}

// ClearTrajectory empties the trajectory without closing the round.
func (s *Session) ClearTrajectory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder.Clear()
}

func (s *Session) State() lifecycle.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Cursor is the tracked desktop pointer, in viewport coordinates.
func (s *Session) Cursor() gesture.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gestures == nil {
		return gesture.Cursor{}
	}
	return s.gestures.Cursor()
}

// Close releases the browser. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.State() == lifecycle.Closed {
		return nil
	}
	var err error
	if s.driver != nil {
		err = s.release(context.Background(), s.driver)
		s.driver = nil
	}
	if terr := s.machine.Transition(lifecycle.Closed); terr != nil {
		return terr
	}
	if err != nil {
		return schemas.NewBrowserError("close", "browser did not shut down cleanly").WithCause(err)
	}
	return nil
}

func (s *Session) release(ctx context.Context, drv browser.Driver) error {
	cctx, cancel := browser.CleanupContext(ctx, closeBudget)
	defer cancel()
	err := drv.Close(cctx)
	if err != nil {
		s.logger.Warn("Browser close failed.", zap.Error(err))
	}
	return err
}
