package schemas

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -- Trajectory Schemas --

// TrajectoryKind is the event type the environment evaluator understands.
type TrajectoryKind string

const (
	TrajectoryClick      TrajectoryKind = "click"
	TrajectoryKeypress   TrajectoryKind = "keypress"
	TrajectoryScroll     TrajectoryKind = "scroll"
	TrajectoryTouch      TrajectoryKind = "touch"
	TrajectoryNavigation TrajectoryKind = "navigation"
)

// KindForGesture maps a gesture onto its trajectory event type.
func KindForGesture(g GestureKind) TrajectoryKind {
	switch g {
	case GestureTap:
		return TrajectoryClick
	case GestureType:
		return TrajectoryKeypress
	case GestureScroll:
		return TrajectoryScroll
	case GestureLongPress, GestureDrag:
		return TrajectoryTouch
	case GestureBack:
		return TrajectoryNavigation
	}
	return TrajectoryKind(g)
}

// Outcome tags whether the recorded action was dispatched successfully.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// TrajectoryEntry is one immutable step of an agent's trajectory. Data holds
// the logical (pre-scaling) parameters the agent supplied, plus whatever the
// page reported about the element the action landed on.
type TrajectoryEntry struct {
	Timestamp time.Time
	Kind      TrajectoryKind
	Action    GestureKind
	Outcome   Outcome
	Data      map[string]interface{}
}

type trajectoryEntryWire struct {
	Timestamp int64                  `json:"timestamp"`
	Type      TrajectoryKind         `json:"type"`
	Action    GestureKind            `json:"action,omitempty"`
	Outcome   Outcome                `json:"outcome,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// MarshalJSON emits the evaluator's wire shape: epoch milliseconds, type, data.
func (e TrajectoryEntry) MarshalJSON() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	return json.Marshal(trajectoryEntryWire{
		Timestamp: e.Timestamp.UnixMilli(),
		Type:      e.Kind,
		Action:    e.Action,
		Outcome:   e.Outcome,
		Data:      data,
	})
}

func (e *TrajectoryEntry) UnmarshalJSON(b []byte) error {
	var w trajectoryEntryWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.Timestamp = time.UnixMilli(w.Timestamp)
	e.Kind = w.Type
	e.Action = w.Action
	e.Outcome = w.Outcome
	e.Data = w.Data
	return nil
}

// Clone returns a deep copy so callers can never mutate recorded history.
func (e TrajectoryEntry) Clone() TrajectoryEntry {
	e.Data = cloneMap(e.Data)
	return e
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// CloneParams deep copies a parameter map.
func CloneParams(m map[string]interface{}) map[string]interface{} {
	return cloneMap(m)
}
