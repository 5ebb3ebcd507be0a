package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	inputTimeout      = 10 * time.Second
	navigationTimeout = 30 * time.Second
	closeTimeout      = 5 * time.Second
)

// Driver adapts chromedp to browser.Driver. Every CDP call goes through
// runActionsFunc so tests can capture the actions without a browser.
type Driver struct {
	ctx     context.Context // tab context, lives until Close
	cancel  context.CancelFunc
	profile schemas.DeviceProfile
	logger  *zap.Logger

	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error

	closeOnce sync.Once
}

var _ browser.Driver = (*Driver)(nil)

// runActions executes actions on the tab, bounded by the operation context.
func (d *Driver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := browser.CombineContext(d.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// run applies a per-operation timeout on top of ctx.
func (d *Driver) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := d.runActionsFunc(opCtx, actions...)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		d.logger.Debug("CDP operation timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return fmt.Errorf("cdp %s timed out: %w", op, context.DeadlineExceeded)
	}
	if err != nil {
		return fmt.Errorf("cdp %s: %w", op, err)
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, "navigate", navigationTimeout, chromedp.Navigate(url))
}

func (d *Driver) Back(ctx context.Context) error {
	return d.run(ctx, "back", navigationTimeout, chromedp.NavigateBack())
}

func (d *Driver) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
	if data.Button != "" {
		p = p.WithButton(input.MouseButton(data.Button))
	}
	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	return d.run(ctx, "mouse "+string(data.Type), inputTimeout, p)
}

func (d *Driver) DispatchTouchEvent(ctx context.Context, data schemas.TouchEventData) error {
	points := make([]*input.TouchPoint, 0, len(data.Points))
	for i, pt := range data.Points {
		points = append(points, &input.TouchPoint{X: pt.X, Y: pt.Y, ID: float64(i)})
	}
	p := input.DispatchTouchEvent(input.TouchType(data.Type), points)
	return d.run(ctx, "touch "+string(data.Type), inputTimeout, p)
}

// DispatchKeyEvent inserts Text as a char event, or presses and releases a named Key.
func (d *Driver) DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error {
	mods := cdpModifiers(data.Modifiers)
	if data.Key == "" {
		p := input.DispatchKeyEvent(input.KeyChar).WithText(data.Text).WithModifiers(mods)
		return d.run(ctx, "key char", inputTimeout, p)
	}

	keyDown := input.DispatchKeyEvent(input.KeyDown).WithKey(data.Key).WithModifiers(mods)
	if data.Text != "" {
		keyDown = keyDown.WithText(data.Text)
	}
	keyUp := input.DispatchKeyEvent(input.KeyUp).WithKey(data.Key).WithModifiers(mods)
	return d.run(ctx, "key "+data.Key, inputTimeout, keyDown, keyUp)
}

func cdpModifiers(m schemas.KeyModifier) input.Modifier {
	var out input.Modifier
	if m&schemas.ModAlt != 0 {
		out |= input.ModifierAlt
	}
	if m&schemas.ModCtrl != 0 {
		out |= input.ModifierCtrl
	}
	if m&schemas.ModMeta != 0 {
		out |= input.ModifierMeta
	}
	if m&schemas.ModShift != 0 {
		out |= input.ModifierShift
	}
	return out
}

func (d *Driver) Sleep(ctx context.Context, dur time.Duration) error {
	return browser.Sleep(ctx, dur)
}

func (d *Driver) Evaluate(ctx context.Context, script string, out interface{}) error {
	return d.evaluate(ctx, script, out, false)
}

func (d *Driver) EvaluateAsync(ctx context.Context, script string, out interface{}) error {
	return d.evaluate(ctx, script, out, true)
}

func (d *Driver) evaluate(ctx context.Context, script string, out interface{}, await bool) error {
	var raw []byte
	action := chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		p = p.WithReturnByValue(true)
		if await {
			p = p.WithAwaitPromise(true)
		}
		return p
	})

	// EvaluateAsync relies on the caller's deadline; synchronous scripts get
	// the input budget.
	var err error
	if await {
		err = d.runActionsFunc(ctx, action)
		if err != nil && ctx.Err() != nil {
			err = ctx.Err()
		}
	} else {
		err = d.run(ctx, "evaluate", inputTimeout, action)
	}
	if err != nil {
		var exp *runtime.ExceptionDetails
		if errors.As(err, &exp) {
			return &browser.ScriptError{Message: exceptionMessage(exp)}
		}
		return err
	}

	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding script result: %w", err)
	}
	return nil
}

func exceptionMessage(exp *runtime.ExceptionDetails) string {
	if exp.Exception != nil && exp.Exception.Description != "" {
		// First line of the stack is "Error: message".
		return strings.SplitN(exp.Exception.Description, "\n", 2)[0]
	}
	return exp.Text
}

// CaptureScreenshot renders clip at scale image pixels per CSS pixel. The
// CDP clip scale is relative to the device pixel ratio, so it is divided out.
func (d *Driver) CaptureScreenshot(ctx context.Context, clip *schemas.Clip, scale float64) ([]byte, error) {
	dpr := d.profile.DeviceScaleFactor
	if dpr <= 0 {
		dpr = 1
	}
	if clip == nil {
		clip = &schemas.Clip{Width: float64(d.profile.Width), Height: float64(d.profile.Height)}
	}

	var buf []byte
	err := d.run(ctx, "screenshot", navigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{
				X:      clip.X,
				Y:      clip.Y,
				Width:  clip.Width,
				Height: clip.Height,
				Scale:  scale / dpr,
			}).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts the browser down. Safe to call more than once.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.ctx) }()
		select {
		case err = <-done:
		case <-closeCtx.Done():
			err = closeCtx.Err()
		}
		if d.cancel != nil {
			d.cancel()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("Browser did not close cleanly.", zap.Error(err))
		} else {
			err = nil
			d.logger.Debug("Browser closed.")
		}
	})
	return err
}
