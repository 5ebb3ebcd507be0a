// Package pw implements the browser driver on playwright-go. Touch input and
// screenshots go through a CDP session so both backends emit the same
// primitives.
package pw

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultTimeout = 30 * time.Second
	webdriverInit  = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`
)

// Launcher starts playwright's Chromium for each driver.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger.Named("playwright")}
}

func (l *Launcher) Launch(ctx context.Context, profile schemas.DeviceProfile) (browser.Driver, error) {
	type launched struct {
		d   *Driver
		err error
	}
	done := make(chan launched, 1)
	go func() {
		d, err := l.launch(profile)
		done <- launched{d, err}
	}()

	select {
	case res := <-done:
		return res.d, res.err
	case <-ctx.Done():
		// Reap the late browser so it does not leak.
		go func() {
			if res := <-done; res.d != nil {
				_ = res.d.Close(context.Background())
			}
		}()
		return nil, fmt.Errorf("playwright failed to start: %w", ctx.Err())
	}
}

func (l *Launcher) launch(profile schemas.DeviceProfile) (*Driver, error) {
	pw, err := playwright.Run(&playwright.RunOptions{Browsers: []string{"chromium"}, Verbose: l.cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(profile.Headless),
		Args:     append([]string{"--disable-blink-features=AutomationControlled"}, l.cfg.Args...),
	}
	if l.cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(l.cfg.ExecPath)
	}
	b, err := pw.Chromium.Launch(opts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: int(profile.Width), Height: int(profile.Height)},
		DeviceScaleFactor: playwright.Float(profile.DeviceScaleFactor),
		IsMobile:          playwright.Bool(profile.Mobile),
		HasTouch:          playwright.Bool(profile.Touch),
		UserAgent:         playwright.String(profile.UserAgent),
		Locale:            playwright.String(profile.Locale),
	})
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(webdriverInit)}); err != nil {
		l.logger.Warn("Could not install init script.", zap.Error(err))
	}

	pg, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("could not open page: %w", err)
	}
	pg.SetDefaultTimeout(float64(defaultTimeout.Milliseconds()))

	session, err := bctx.NewCDPSession(pg)
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("could not attach CDP session: %w", err)
	}

	d := &Driver{
		page:    pg,
		cdp:     session,
		profile: profile,
		logger:  l.logger.With(zap.String("platform", string(profile.Platform))),
		closers: []func() error{
			func() error { return bctx.Close() },
			func() error { return b.Close() },
			pw.Stop,
		},
	}
	d.logger.Info("Browser launched.", zap.Int64("width", profile.Width), zap.Int64("height", profile.Height))
	return d, nil
}

// Driver adapts a playwright page to browser.Driver.
type Driver struct {
	page    playwright.Page
	cdp     playwright.CDPSession
	profile schemas.DeviceProfile
	logger  *zap.Logger
	closers []func() error

	// playwright's mouse has no per-event position on press, so the last
	// move is kept to replay before a press.
	mu          sync.Mutex
	lastX       float64
	lastY       float64
	closeOnce   sync.Once
	closeResult error
}

var _ browser.Driver = (*Driver)(nil)

// call runs a blocking playwright call, returning early when ctx ends.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func timeoutMs(ctx context.Context) *float64 {
	if dl, ok := ctx.Deadline(); ok {
		return playwright.Float(float64(time.Until(dl).Milliseconds()))
	}
	return playwright.Float(float64(defaultTimeout.Milliseconds()))
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return call(ctx, func() error {
		_, err := d.page.Goto(url, playwright.PageGotoOptions{Timeout: timeoutMs(ctx)})
		return err
	})
}

func (d *Driver) Back(ctx context.Context) error {
	return call(ctx, func() error {
		_, err := d.page.GoBack(playwright.PageGoBackOptions{Timeout: timeoutMs(ctx)})
		return err
	})
}

func (d *Driver) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	mouse := d.page.Mouse()
	return call(ctx, func() error {
		switch data.Type {
		case schemas.MouseMove:
			d.setLast(data.X, data.Y)
			return mouse.Move(data.X, data.Y)
		case schemas.MousePress:
			if err := d.moveIfNeeded(mouse, data.X, data.Y); err != nil {
				return err
			}
			return mouse.Down(playwright.MouseDownOptions{
				Button:     pwButton(data.Button),
				ClickCount: playwright.Int(max(data.ClickCount, 1)),
			})
		case schemas.MouseRelease:
			if err := d.moveIfNeeded(mouse, data.X, data.Y); err != nil {
				return err
			}
			return mouse.Up(playwright.MouseUpOptions{
				Button:     pwButton(data.Button),
				ClickCount: playwright.Int(max(data.ClickCount, 1)),
			})
		case schemas.MouseWheel:
			if err := d.moveIfNeeded(mouse, data.X, data.Y); err != nil {
				return err
			}
			return mouse.Wheel(data.DeltaX, data.DeltaY)
		}
		return fmt.Errorf("unsupported mouse event %q", data.Type)
	})
}

func (d *Driver) setLast(x, y float64) {
	d.mu.Lock()
	d.lastX, d.lastY = x, y
	d.mu.Unlock()
}

func (d *Driver) moveIfNeeded(mouse playwright.Mouse, x, y float64) error {
	d.mu.Lock()
	same := d.lastX == x && d.lastY == y
	d.mu.Unlock()
	if same {
		return nil
	}
	d.setLast(x, y)
	return mouse.Move(x, y)
}

func pwButton(b schemas.MouseButton) *playwright.MouseButton {
	switch b {
	case schemas.ButtonRight:
		return playwright.MouseButtonRight
	case schemas.ButtonMiddle:
		return playwright.MouseButtonMiddle
	}
	return playwright.MouseButtonLeft
}

func (d *Driver) DispatchTouchEvent(ctx context.Context, data schemas.TouchEventData) error {
	points := make([]map[string]interface{}, 0, len(data.Points))
	for i, pt := range data.Points {
		points = append(points, map[string]interface{}{"x": pt.X, "y": pt.Y, "id": i})
	}
	return call(ctx, func() error {
		_, err := d.cdp.Send("Input.dispatchTouchEvent", map[string]interface{}{
			"type":        string(data.Type),
			"touchPoints": points,
		})
		return err
	})
}

func (d *Driver) DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error {
	kb := d.page.Keyboard()
	return call(ctx, func() error {
		if data.Key == "" {
			return kb.Type(data.Text)
		}
		return kb.Press(keyCombo(data))
	})
}

// keyCombo renders a key with modifiers in playwright's "Shift+Enter" form.
func keyCombo(data schemas.KeyEventData) string {
	var parts []string
	if data.Modifiers&schemas.ModCtrl != 0 {
		parts = append(parts, "Control")
	}
	if data.Modifiers&schemas.ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if data.Modifiers&schemas.ModMeta != 0 {
		parts = append(parts, "Meta")
	}
	if data.Modifiers&schemas.ModShift != 0 {
		parts = append(parts, "Shift")
	}
	return strings.Join(append(parts, data.Key), "+")
}

func (d *Driver) Sleep(ctx context.Context, dur time.Duration) error {
	return browser.Sleep(ctx, dur)
}

func (d *Driver) Evaluate(ctx context.Context, script string, out interface{}) error {
	return d.evaluate(ctx, script, out)
}

// EvaluateAsync is Evaluate: playwright awaits returned promises.
func (d *Driver) EvaluateAsync(ctx context.Context, script string, out interface{}) error {
	return d.evaluate(ctx, script, out)
}

func (d *Driver) evaluate(ctx context.Context, script string, out interface{}) error {
	var value interface{}
	err := call(ctx, func() error {
		var err error
		value, err = d.page.Evaluate(script)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		var pwErr *playwright.Error
		if errors.As(err, &pwErr) {
			return &browser.ScriptError{Message: pwErr.Message}
		}
		return err
	}
	if out == nil || value == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding script result: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding script result: %w", err)
	}
	return nil
}

// CaptureScreenshot uses Page.captureScreenshot so the clip scale behaves
// exactly as on the chromedp backend.
func (d *Driver) CaptureScreenshot(ctx context.Context, clip *schemas.Clip, scale float64) ([]byte, error) {
	dpr := d.profile.DeviceScaleFactor
	if dpr <= 0 {
		dpr = 1
	}
	if clip == nil {
		clip = &schemas.Clip{Width: float64(d.profile.Width), Height: float64(d.profile.Height)}
	}

	var res interface{}
	err := call(ctx, func() error {
		var err error
		res, err = d.cdp.Send("Page.captureScreenshot", map[string]interface{}{
			"format": "png",
			"clip": map[string]interface{}{
				"x": clip.X, "y": clip.Y, "width": clip.Width, "height": clip.Height,
				"scale": scale / dpr,
			},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}

	m, _ := res.(map[string]interface{})
	data, _ := m["data"].(string)
	if data == "" {
		return nil, errors.New("capturing screenshot: empty response")
	}
	return base64.StdEncoding.DecodeString(data)
}

// Close tears down context, browser and the playwright driver. Safe to call
// more than once.
func (d *Driver) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		var errs []error
		for _, closeFn := range d.closers {
			if err := call(ctx, closeFn); err != nil {
				errs = append(errs, err)
			}
		}
		d.closeResult = errors.Join(errs...)
		if d.closeResult != nil {
			d.logger.Warn("Browser did not close cleanly.", zap.Error(d.closeResult))
		}
	})
	return d.closeResult
}
