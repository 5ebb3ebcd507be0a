package automation

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"strings"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser/page"
	"github.com/xkilldash9x/scalewob/internal/lifecycle"
)

// Format selects how TakeScreenshot returns the image.
type Format string

const (
	// FormatBase64 returns the PNG as a base64 string.
	FormatBase64 Format = "base64"
	// FormatImage returns a decoded image.Image.
	FormatImage Format = "image"
	// FormatPNG returns the raw PNG bytes.
	FormatPNG Format = "png"
)

// ParseFormat accepts "pil" as an alias of FormatImage.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatBase64:
		return FormatBase64, nil
	case FormatImage, "pil":
		return FormatImage, nil
	case FormatPNG:
		return FormatPNG, nil
	}
	return "", schemas.NewCommandError("take-screenshot", "invalid format %q: use base64, image or png", s)
}

func (s *Session) requireQueryable(op string) error {
	return s.machine.Require(op, lifecycle.Started, lifecycle.Evaluating, lifecycle.Finished)
}

// GetState reports the page URL, title, viewport and ready state.
func (s *Session) GetState(ctx context.Context) (*schemas.PageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "get-state"
	if err := s.requireQueryable(op); err != nil {
		return nil, err
	}
	var st *schemas.PageState
	err := s.env.Call(ctx, op, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		st, err = page.State(ctx, s.driver)
		return err
	})
	return st, err
}

// GetElementInfo describes the element at screenshot point (x, y). The
// returned geometry is in viewport coordinates.
func (s *Session) GetElementInfo(ctx context.Context, x, y int) (*schemas.ElementInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "get-element-info"
	if err := s.requireQueryable(op); err != nil {
		return nil, err
	}
	rx, ry := s.scaler.ToReal(x, y)
	var info *schemas.ElementInfo
	err := s.env.Call(ctx, op, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		info, err = page.ElementAt(ctx, s.driver, rx, ry)
		return err
	})
	return info, err
}

// GetElementInfoBySelector describes the first element matching a CSS
// selector. No scaling applies.
func (s *Session) GetElementInfoBySelector(ctx context.Context, selector string) (*schemas.ElementSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "get-element-info"
	if err := s.requireQueryable(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(selector) == "" {
		return nil, schemas.NewCommandError(op, "selector is empty")
	}
	var summary *schemas.ElementSummary
	err := s.env.Call(ctx, op, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		summary, err = page.ElementBySelector(ctx, s.driver, selector)
		return err
	})
	return summary, err
}

// Screenshot captures the viewport as PNG at the session's screenshot scale.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "take-screenshot"
	if err := s.requireQueryable(op); err != nil {
		return nil, err
	}
	var buf []byte
	err := s.env.Call(ctx, op, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		buf, err = s.driver.CaptureScreenshot(ctx, nil, s.scaler.Scale())
		return err
	})
	return buf, err
}

// TakeScreenshot returns a string for FormatBase64, an image.Image for
// FormatImage and []byte for FormatPNG.
func (s *Session) TakeScreenshot(ctx context.Context, format Format) (interface{}, error) {
	const op = "take-screenshot"
	switch format {
	case FormatBase64, FormatImage, FormatPNG:
	default:
		return nil, schemas.NewCommandError(op, "invalid format %q: use base64, image or png", format)
	}

	buf, err := s.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatBase64:
		return base64.StdEncoding.EncodeToString(buf), nil
	case FormatImage:
		img, err := png.Decode(bytes.NewReader(buf))
		if err != nil {
			return nil, schemas.NewBrowserError(op, "screenshot is not a valid PNG").WithCause(err)
		}
		return image.Image(img), nil
	}
	return buf, nil
}

// ExecuteScript runs a JavaScript function body in the page and returns its
// result. A script that returns nothing yields an empty object.
func (s *Session) ExecuteScript(ctx context.Context, script string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "execute-script"
	if err := s.requireQueryable(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(script) == "" {
		return nil, schemas.NewCommandError(op, "no script provided")
	}
	var out interface{}
	err := s.env.Call(ctx, op, s.opts.Timeout, func(ctx context.Context) error {
		var err error
		out, err = page.RunUserScript(ctx, s.driver, script)
		return err
	})
	return out, err
}
