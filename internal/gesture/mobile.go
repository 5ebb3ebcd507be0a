package gesture

import (
	"context"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

func touchAt(typ schemas.TouchEventType, x, y float64) schemas.TouchEventData {
	return schemas.TouchEventData{Type: typ, Points: []schemas.TouchPoint{{X: x, Y: y}}}
}

var touchEnd = schemas.TouchEventData{Type: schemas.TouchEnd}

// touchSequence puts a finger down at (x, y), runs hold, and lifts it. The
// finger is lifted even when hold fails.
func (t *Translator) touchSequence(ctx context.Context, x, y float64, hold func(context.Context) error) error {
	if err := t.exec.DispatchTouchEvent(ctx, touchAt(schemas.TouchStart, x, y)); err != nil {
		return err
	}
	released := false
	defer func() {
		if !released {
			t.cleanup(ctx, "touchEnd", func(c context.Context) error {
				return t.exec.DispatchTouchEvent(c, touchEnd)
			})
		}
	}()

	if hold != nil {
		if err := hold(ctx); err != nil {
			return err
		}
	}
	if err := t.exec.DispatchTouchEvent(ctx, touchEnd); err != nil {
		return err
	}
	released = true
	return nil
}

func (t *Translator) touchTap(ctx context.Context, req Request) (Result, error) {
	if err := t.exec.Sleep(ctx, req.Delay); err != nil {
		return Result{}, err
	}
	if err := t.touchSequence(ctx, req.X, req.Y, nil); err != nil {
		return Result{}, err
	}
	return Result{}, t.exec.Sleep(ctx, t.opts.GestureSettle)
}

func (t *Translator) touchLongPress(ctx context.Context, req Request) (Result, error) {
	err := t.touchSequence(ctx, req.X, req.Y, func(c context.Context) error {
		return t.exec.Sleep(c, req.Duration)
	})
	return Result{}, err
}

func (t *Translator) swipe(ctx context.Context, x, y, dx, dy float64) error {
	return t.touchSequence(ctx, x, y, func(c context.Context) error {
		return t.exec.DispatchTouchEvent(c, touchAt(schemas.TouchMove, x+dx, y+dy))
	})
}

func (t *Translator) touchDrag(ctx context.Context, req Request) (Result, error) {
	dx, dy := req.Direction.Vector(req.Distance)
	if err := t.swipe(ctx, req.X, req.Y, dx, dy); err != nil {
		return Result{}, err
	}
	return Result{DX: dx, DY: dy}, nil
}

// touchScroll swipes against the scroll direction: content moves down when
// the finger moves up.
func (t *Translator) touchScroll(ctx context.Context, req Request) (Result, error) {
	dx, dy := req.Direction.Vector(req.Distance)
	fx, fy := req.Direction.Inverse().Vector(req.Distance)
	if err := t.swipe(ctx, req.X, req.Y, fx, fy); err != nil {
		return Result{}, err
	}
	return Result{DX: dx, DY: dy}, nil
}
