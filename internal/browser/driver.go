// Package browser defines the driver capability the automation core depends
// on. Concrete backends live in the cdp (chromedp) and pw (playwright)
// subpackages.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// Driver is one controlled browsing context. A Driver is exclusively owned by
// a single session and must not be shared.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error

	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	DispatchTouchEvent(ctx context.Context, data schemas.TouchEventData) error
	DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error
	Sleep(ctx context.Context, d time.Duration) error

	// Evaluate runs a synchronous expression and decodes its JSON value into out.
	Evaluate(ctx context.Context, script string, out interface{}) error
	// EvaluateAsync runs an expression that yields a promise and waits for it
	// to settle, bounded by ctx.
	EvaluateAsync(ctx context.Context, script string, out interface{}) error

	// CaptureScreenshot returns PNG bytes of clip, rendered at scale image
	// pixels per CSS pixel. A nil clip captures the viewport.
	CaptureScreenshot(ctx context.Context, clip *schemas.Clip, scale float64) ([]byte, error)

	Close(ctx context.Context) error
}

// Launcher creates drivers for a device profile.
type Launcher interface {
	Launch(ctx context.Context, profile schemas.DeviceProfile) (Driver, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, profile schemas.DeviceProfile) (Driver, error)

func (f LauncherFunc) Launch(ctx context.Context, profile schemas.DeviceProfile) (Driver, error) {
	return f(ctx, profile)
}

// ScriptError is an exception thrown by in-page JavaScript.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script error: %s", e.Message)
}
