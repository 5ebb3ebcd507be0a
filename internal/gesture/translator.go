// Package gesture turns logical interactions (tap, drag, scroll...) into the
// input primitives of a platform's interaction model: touch on mobile,
// mouse on desktop.
package gesture

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/browser/page"
)

// Executor is the subset of browser.Driver gestures are realized on.
type Executor interface {
	page.Evaluator
	Back(ctx context.Context) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	DispatchTouchEvent(ctx context.Context, data schemas.TouchEventData) error
	DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error
	Sleep(ctx context.Context, d time.Duration) error
}

var _ Executor = (browser.Driver)(nil)

// Request is a single gesture in real viewport coordinates.
type Request struct {
	Kind      schemas.GestureKind
	X, Y      float64
	Direction schemas.Direction
	// Distance is in viewport pixels.
	Distance    float64
	Duration    time.Duration
	Delay       time.Duration
	Text        string
	TypingDelay time.Duration
}

// Result carries what a gesture learned while executing.
type Result struct {
	// DX, DY is the signed travel of a drag or scroll.
	DX, DY float64
	// Target is the focused element a type gesture wrote into.
	Target *schemas.FocusInfo
}

// Options tune the pauses around gestures.
type Options struct {
	// GestureSettle follows taps so the page can react.
	GestureSettle time.Duration
	// NavigationSettle follows history navigation.
	NavigationSettle time.Duration
	// CleanupBudget bounds the release issued after a broken gesture.
	CleanupBudget time.Duration
}

func DefaultOptions() Options {
	return Options{
		GestureSettle:    100 * time.Millisecond,
		NavigationSettle: 500 * time.Millisecond,
		CleanupBudget:    2 * time.Second,
	}
}

type handler func(t *Translator, ctx context.Context, req Request) (Result, error)

type key struct {
	kind     schemas.GestureKind
	platform schemas.Platform
}

// dispatchTable lists every supported (kind, platform) pair. Desktop has no
// long press.
var dispatchTable = map[key]handler{
	{schemas.GestureTap, schemas.PlatformMobile}:       (*Translator).touchTap,
	{schemas.GestureLongPress, schemas.PlatformMobile}: (*Translator).touchLongPress,
	{schemas.GestureDrag, schemas.PlatformMobile}:      (*Translator).touchDrag,
	{schemas.GestureScroll, schemas.PlatformMobile}:    (*Translator).touchScroll,
	{schemas.GestureType, schemas.PlatformMobile}:      (*Translator).typeText,
	{schemas.GestureBack, schemas.PlatformMobile}:      (*Translator).back,
	{schemas.GestureTap, schemas.PlatformDesktop}:      (*Translator).mouseTap,
	{schemas.GestureDrag, schemas.PlatformDesktop}:     (*Translator).mouseDrag,
	{schemas.GestureScroll, schemas.PlatformDesktop}:   (*Translator).mouseScroll,
	{schemas.GestureType, schemas.PlatformDesktop}:     (*Translator).typeText,
	{schemas.GestureBack, schemas.PlatformDesktop}:     (*Translator).back,
}

// Translator realizes gestures for one platform on one executor.
type Translator struct {
	platform schemas.Platform
	exec     Executor
	opts     Options
	logger   *zap.Logger

	mu     sync.Mutex
	cursor Cursor
}

func New(platform schemas.Platform, exec Executor, opts Options, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		platform: platform,
		exec:     exec,
		opts:     opts,
		logger:   logger.Named("gesture"),
	}
}

func (t *Translator) Platform() schemas.Platform { return t.platform }

// Supports reports whether the platform has a realization for kind.
func (t *Translator) Supports(kind schemas.GestureKind) bool {
	return Supported(kind, t.platform)
}

// Supported reports whether platform has a realization of kind. It needs no
// translator, so callers can reject a gesture before a browser exists.
func Supported(kind schemas.GestureKind, platform schemas.Platform) bool {
	_, ok := dispatchTable[key{kind, platform}]
	return ok
}

// Dispatch validates req and runs the platform's realization of it. An
// unsupported or invalid request fails before any primitive is sent.
func (t *Translator) Dispatch(ctx context.Context, req Request) (Result, error) {
	h, ok := dispatchTable[key{req.Kind, t.platform}]
	if !ok {
		return Result{}, schemas.NewCommandError(string(req.Kind), "%s is not supported on %s", req.Kind, t.platform)
	}
	if err := validate(req); err != nil {
		return Result{}, err
	}

	t.logger.Debug("Dispatching gesture.",
		zap.String("kind", string(req.Kind)),
		zap.Float64("x", req.X),
		zap.Float64("y", req.Y))
	return h(t, ctx, req)
}

func validate(req Request) error {
	op := string(req.Kind)
	switch req.Kind {
	case schemas.GestureDrag, schemas.GestureScroll:
		if _, err := schemas.ParseDirection(string(req.Direction)); err != nil {
			return err
		}
		if req.Distance <= 0 {
			return schemas.NewCommandError(op, "distance must be positive, got %v", req.Distance)
		}
	case schemas.GestureLongPress:
		if req.Duration <= 0 {
			return schemas.NewCommandError(op, "duration must be positive, got %v", req.Duration)
		}
	}
	if req.Delay < 0 || req.TypingDelay < 0 {
		return schemas.NewCommandError(op, "delays must not be negative")
	}
	return nil
}

// cleanup runs release on a context detached from ctx, so a gesture broken
// by cancellation never leaves a finger or button down.
func (t *Translator) cleanup(ctx context.Context, what string, release func(context.Context) error) {
	cctx, cancel := browser.CleanupContext(ctx, t.opts.CleanupBudget)
	defer cancel()
	if err := release(cctx); err != nil {
		t.logger.Warn("Gesture cleanup failed.", zap.String("release", what), zap.Error(err))
	}
}

func (t *Translator) back(ctx context.Context, _ Request) (Result, error) {
	if err := t.exec.Back(ctx); err != nil {
		return Result{}, err
	}
	return Result{}, t.exec.Sleep(ctx, t.opts.NavigationSettle)
}
