package gesture

import (
	"context"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

func (t *Translator) mouse(ctx context.Context, data schemas.MouseEventData) error {
	if err := t.exec.DispatchMouseEvent(ctx, data); err != nil {
		return err
	}
	t.track(data)
	return nil
}

func (t *Translator) moveTo(ctx context.Context, x, y float64) error {
	return t.mouse(ctx, schemas.MouseEventData{
		Type:    schemas.MouseMove,
		X:       x,
		Y:       y,
		Button:  schemas.ButtonNone,
		Buttons: t.Cursor().Buttons,
	})
}

func (t *Translator) press(ctx context.Context, x, y float64) error {
	return t.mouse(ctx, schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          x,
		Y:          y,
		Button:     schemas.ButtonLeft,
		Buttons:    1,
		ClickCount: 1,
	})
}

func (t *Translator) release(ctx context.Context, x, y float64) error {
	return t.mouse(ctx, schemas.MouseEventData{
		Type:       schemas.MouseRelease,
		X:          x,
		Y:          y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
	})
}

// pressSequence presses at (x, y), runs hold, and releases where hold left
// the cursor. The button is released even when hold fails.
func (t *Translator) pressSequence(ctx context.Context, x, y float64, hold func(context.Context) error) error {
	if err := t.press(ctx, x, y); err != nil {
		return err
	}
	released := false
	defer func() {
		if !released {
			t.cleanup(ctx, "mouseReleased", func(c context.Context) error {
				cur := t.Cursor()
				return t.release(c, cur.X, cur.Y)
			})
		}
	}()

	if hold != nil {
		if err := hold(ctx); err != nil {
			return err
		}
	}
	cur := t.Cursor()
	if err := t.release(ctx, cur.X, cur.Y); err != nil {
		return err
	}
	released = true
	return nil
}

func (t *Translator) mouseTap(ctx context.Context, req Request) (Result, error) {
	if err := t.exec.Sleep(ctx, req.Delay); err != nil {
		return Result{}, err
	}
	if err := t.moveTo(ctx, req.X, req.Y); err != nil {
		return Result{}, err
	}
	if err := t.pressSequence(ctx, req.X, req.Y, nil); err != nil {
		return Result{}, err
	}
	return Result{}, t.exec.Sleep(ctx, t.opts.GestureSettle)
}

// mouseDrag drags from the origin by the direction vector, then moves the
// cursor back by the inverse offsets to where it was before the gesture.
func (t *Translator) mouseDrag(ctx context.Context, req Request) (Result, error) {
	before := t.Cursor()
	dx, dy := req.Direction.Vector(req.Distance)

	if err := t.moveTo(ctx, req.X, req.Y); err != nil {
		return Result{}, err
	}
	err := t.pressSequence(ctx, req.X, req.Y, func(c context.Context) error {
		return t.moveTo(c, req.X+dx, req.Y+dy)
	})
	if err != nil {
		return Result{}, err
	}

	// Inverse offsets: origin+delta back to the pre-gesture position.
	after := t.Cursor()
	ox, oy := before.X-after.X, before.Y-after.Y
	if ox != 0 || oy != 0 {
		if err := t.moveTo(ctx, after.X+ox, after.Y+oy); err != nil {
			return Result{}, err
		}
	}
	return Result{DX: dx, DY: dy}, nil
}

func (t *Translator) mouseScroll(ctx context.Context, req Request) (Result, error) {
	dx, dy := req.Direction.Vector(req.Distance)
	err := t.mouse(ctx, schemas.MouseEventData{
		Type:   schemas.MouseWheel,
		X:      req.X,
		Y:      req.Y,
		Button: schemas.ButtonNone,
		DeltaX: dx,
		DeltaY: dy,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{DX: dx, DY: dy}, nil
}
