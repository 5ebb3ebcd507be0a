package automation

import (
	"context"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// Replay re-issues a recorded trajectory against this session. Points and
// distances are read in viewport space and mapped into this session's
// screenshot space, so a trajectory recorded at one quality replays the same
// viewport actions at another. Entries recorded as failed are skipped.
// Replay stops at the first error and returns the results so far.
func (s *Session) Replay(ctx context.Context, entries []schemas.TrajectoryEntry) ([]schemas.CommandResult, error) {
	out := make([]schemas.CommandResult, 0, len(entries))
	for i, e := range entries {
		if e.Outcome == schemas.OutcomeFailed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, schemas.NewTimeoutError("replay", 0, "replay cancelled at entry %d", i).WithCause(err)
		}
		res, err := s.replayOne(ctx, e)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Session) replayOne(ctx context.Context, e schemas.TrajectoryEntry) (schemas.CommandResult, error) {
	d := e.Data
	action := actionOf(e)
	switch action {
	case schemas.GestureTap:
		x, y := s.replayPoint(d)
		return s.Click(ctx, x, y, millis(d["delay"]))
	case schemas.GestureType:
		text, _ := d["text"].(string)
		return s.Type(ctx, text, millis(d["typingDelay"]))
	case schemas.GestureScroll, schemas.GestureDrag:
		x, y := s.replayPoint(d)
		dir, _ := d["direction"].(string)
		return s.travel(ctx, action, x, y, schemas.Direction(dir), s.replayDistance(d))
	case schemas.GestureLongPress:
		x, y := s.replayPoint(d)
		return s.LongPress(ctx, x, y, millis(d["duration"]))
	case schemas.GestureBack:
		return s.Back(ctx)
	}
	return failed(action), schemas.NewCommandError("replay", "cannot replay %q entry", e.Kind)
}

// actionOf recovers the gesture of entries written without an action field.
func actionOf(e schemas.TrajectoryEntry) schemas.GestureKind {
	if e.Action != "" {
		return e.Action
	}
	switch e.Kind {
	case schemas.TrajectoryClick:
		return schemas.GestureTap
	case schemas.TrajectoryKeypress:
		return schemas.GestureType
	case schemas.TrajectoryScroll:
		return schemas.GestureScroll
	case schemas.TrajectoryNavigation:
		return schemas.GestureBack
	case schemas.TrajectoryTouch:
		if t, _ := e.Data["touchType"].(string); t == "long_press" {
			return schemas.GestureLongPress
		}
		return schemas.GestureDrag
	}
	return schemas.GestureKind(e.Kind)
}

func (s *Session) replayPoint(d map[string]interface{}) (int, int) {
	vx, okX := number(d["viewportX"])
	vy, okY := number(d["viewportY"])
	if !okX || !okY {
		x, _ := number(d["x"])
		y, _ := number(d["y"])
		return int(x), int(y)
	}
	lx, ly := s.scaler.ToLogical(vx, vy)
	return int(math.Round(lx)), int(math.Round(ly))
}

func (s *Session) replayDistance(d map[string]interface{}) int {
	if vd, ok := number(d["viewportDistance"]); ok && vd > 0 {
		ld, _ := s.scaler.ToLogical(vd, 0)
		// A sub-pixel travel still moves.
		return max(1, int(math.Round(ld)))
	}
	dist, _ := number(d["distance"])
	return int(dist)
}

func millis(v interface{}) time.Duration {
	n, _ := number(v)
	return time.Duration(n) * time.Millisecond
}

// number reads the numeric forms trajectory data takes in memory and after
// a JSON round trip.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case jsoniter.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
