package automation

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser/page"
	"github.com/xkilldash9x/scalewob/internal/envelope"
	"github.com/xkilldash9x/scalewob/internal/gesture"
	"github.com/xkilldash9x/scalewob/internal/lifecycle"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var inputTags = map[string]bool{"INPUT": true, "TEXTAREA": true, "SELECT": true}

// Click taps at (x, y) after delay and reports the element there. A zero
// delay selects the default.
func (s *Session) Click(ctx context.Context, x, y int, delay time.Duration) (schemas.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := schemas.GestureTap
	if err := s.requireActive(kind); err != nil {
		return failed(kind), err
	}
	delay, err := orDefault(kind, "delay", delay, s.opts.ClickDelay)
	if err != nil {
		return failed(kind), err
	}
	rx, ry := s.scaler.ToReal(x, y)
	params := s.pointParams(x, y, rx, ry)
	params["delay"] = delay.Milliseconds()

	return s.interact(ctx, kind, params, delay, func(ctx context.Context) (map[string]interface{}, error) {
		if _, err := s.gestures.Dispatch(ctx, gesture.Request{Kind: kind, X: float64(rx), Y: float64(ry), Delay: delay}); err != nil {
			return nil, err
		}
		return s.elementData(ctx, rx, ry), nil
	})
}

// Type types text into the focused element, one key event per character. It
// fails with a Command error when nothing editable has focus.
func (s *Session) Type(ctx context.Context, text string, typingDelay time.Duration) (schemas.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := schemas.GestureType
	if err := s.requireActive(kind); err != nil {
		return failed(kind), err
	}
	typingDelay, err := orDefault(kind, "typing delay", typingDelay, s.opts.TypingDelay)
	if err != nil {
		return failed(kind), err
	}
	params := map[string]interface{}{
		"text":        text,
		"typingDelay": typingDelay.Milliseconds(),
	}
	budget := time.Duration(len([]rune(text))) * typingDelay

	return s.interact(ctx, kind, params, budget, func(ctx context.Context) (map[string]interface{}, error) {
		res, err := s.gestures.Dispatch(ctx, gesture.Request{Kind: kind, Text: text, TypingDelay: typingDelay})
		if err != nil {
			return nil, err
		}
		if res.Target == nil {
			return nil, nil
		}
		t := res.Target
		return map[string]interface{}{
			"element": toMap(t),
			"target": map[string]interface{}{
				"tagName":   t.TagName,
				"id":        t.ID,
				"className": t.ClassName,
				"inputType": t.InputType,
				"isInput":   inputTags[t.TagName],
			},
		}, nil
	})
}

// Scroll scrolls the content under (x, y). Distance is in screenshot pixels
// and must be positive; DefaultDistance is the conventional value.
func (s *Session) Scroll(ctx context.Context, x, y int, direction schemas.Direction, distance int) (schemas.CommandResult, error) {
	return s.travel(ctx, schemas.GestureScroll, x, y, direction, distance)
}

// Drag presses at (x, y) and moves by distance in direction. On desktop the
// cursor is returned to where it was before the drag.
func (s *Session) Drag(ctx context.Context, x, y int, direction schemas.Direction, distance int) (schemas.CommandResult, error) {
	return s.travel(ctx, schemas.GestureDrag, x, y, direction, distance)
}

func (s *Session) travel(ctx context.Context, kind schemas.GestureKind, x, y int, direction schemas.Direction, distance int) (schemas.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(kind); err != nil {
		return failed(kind), err
	}
	dir, err := schemas.ParseDirection(string(direction))
	if err != nil {
		return failed(kind), err
	}
	if distance <= 0 {
		return failed(kind), schemas.NewCommandError(string(kind), "distance must be positive, got %d", distance)
	}

	rx, ry := s.scaler.ToReal(x, y)
	travel := s.scaler.ToRealDistance(distance)
	params := s.pointParams(x, y, rx, ry)
	params["direction"] = string(dir)
	params["distance"] = distance
	params["viewportDistance"] = travel

	return s.interact(ctx, kind, params, 0, func(ctx context.Context) (map[string]interface{}, error) {
		res, err := s.gestures.Dispatch(ctx, gesture.Request{
			Kind:      kind,
			X:         float64(rx),
			Y:         float64(ry),
			Direction: dir,
			Distance:  travel,
		})
		if err != nil {
			return nil, err
		}
		data := map[string]interface{}{"deltaX": res.DX, "deltaY": res.DY}
		if kind == schemas.GestureScroll {
			data["eventType"] = "wheel"
			if s.opts.Platform == schemas.PlatformMobile {
				data["eventType"] = "touch"
			}
		} else {
			data["touchType"] = "drag"
		}
		return data, nil
	})
}

// LongPress holds a touch at (x, y) for duration, which must be positive.
// Desktop sessions have no long press and fail with a Command error in any
// lifecycle state, before any input is sent.
func (s *Session) LongPress(ctx context.Context, x, y int, duration time.Duration) (schemas.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := schemas.GestureLongPress
	if !gesture.Supported(kind, s.opts.Platform) {
		return failed(kind), schemas.NewCommandError(string(kind), "%s is not supported on %s", kind, s.opts.Platform)
	}
	if err := s.requireActive(kind); err != nil {
		return failed(kind), err
	}
	if duration <= 0 {
		return failed(kind), schemas.NewCommandError(string(kind), "duration must be positive, got %v", duration)
	}
	rx, ry := s.scaler.ToReal(x, y)
	params := s.pointParams(x, y, rx, ry)
	params["duration"] = duration.Milliseconds()

	return s.interact(ctx, kind, params, duration, func(ctx context.Context) (map[string]interface{}, error) {
		if _, err := s.gestures.Dispatch(ctx, gesture.Request{Kind: kind, X: float64(rx), Y: float64(ry), Duration: duration}); err != nil {
			return nil, err
		}
		data := s.elementData(ctx, rx, ry)
		data["touchType"] = "long_press"
		return data, nil
	})
}

// Back navigates one step back in history.
func (s *Session) Back(ctx context.Context) (schemas.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := schemas.GestureBack
	if err := s.requireActive(kind); err != nil {
		return failed(kind), err
	}
	params := map[string]interface{}{"action": "back"}
	return s.interact(ctx, kind, params, s.opts.NavigationSettle, func(ctx context.Context) (map[string]interface{}, error) {
		_, err := s.gestures.Dispatch(ctx, gesture.Request{Kind: kind})
		return nil, err
	})
}

// interact runs fn in the envelope. The timeout is the session default plus
// the time the gesture itself is asked to take.
func (s *Session) interact(ctx context.Context, kind schemas.GestureKind, params map[string]interface{}, intrinsic time.Duration, fn envelope.Func) (schemas.CommandResult, error) {
	return s.env.Interact(ctx, envelope.Action{
		Kind:    kind,
		Params:  params,
		Record:  s.machine.State() == lifecycle.Evaluating,
		Timeout: s.opts.Timeout + intrinsic,
	}, fn)
}

// requireActive rejects interactions before Start and after Close.
func (s *Session) requireActive(kind schemas.GestureKind) error {
	return s.machine.Require(string(kind), lifecycle.Started, lifecycle.Evaluating, lifecycle.Finished)
}

// pointParams keeps the caller's coordinates and the viewport point they
// resolved to.
func (s *Session) pointParams(x, y, rx, ry int) map[string]interface{} {
	return map[string]interface{}{
		"x":         x,
		"y":         y,
		"viewportX": rx,
		"viewportY": ry,
	}
}

// elementData describes the element at a viewport point after a gesture.
// The lookup is informational; a miss leaves the data empty.
func (s *Session) elementData(ctx context.Context, rx, ry int) map[string]interface{} {
	data := make(map[string]interface{})
	info, err := page.ElementAt(ctx, s.driver, rx, ry)
	if err != nil {
		s.logger.Debug("No element info after gesture.", zap.Int("x", rx), zap.Int("y", ry), zap.Error(err))
		return data
	}
	data["element"] = toMap(info)
	data["tagName"] = info.TagName
	data["id"] = info.ID
	data["className"] = info.ClassName
	data["text"] = info.Text
	return data
}

// orDefault applies to delays only, where zero means "use the default".
func orDefault(kind schemas.GestureKind, name string, v, def time.Duration) (time.Duration, error) {
	switch {
	case v < 0:
		return 0, schemas.NewCommandError(string(kind), "%s must not be negative, got %v", name, v)
	case v == 0:
		return def, nil
	}
	return v, nil
}

func failed(kind schemas.GestureKind) schemas.CommandResult {
	return schemas.CommandResult{Action: kind}
}

// toMap flattens a page struct into the generic form trajectory data uses.
func toMap(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
