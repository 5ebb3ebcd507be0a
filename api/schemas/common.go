package schemas

import "strings"

// -- Common Schemas --

// KeyEventData represents a single key input. Text carries the character to
// insert; Key is set for named keys (e.g., "Enter", "Backspace").
type KeyEventData struct {
	Text      string
	Key       string
	Modifiers KeyModifier
}

// KeyModifier represents keyboard modifiers (Ctrl, Alt, Shift, Meta).
// These values correspond directly to the CDP input.DispatchKeyEvent modifiers bitfield.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1
	ModCtrl  KeyModifier = 2
	ModMeta  KeyModifier = 4
	ModShift KeyModifier = 8
)

// Direction is the enumerated set of gesture directions.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ParseDirection rejects anything outside the enumerated set.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return d, nil
	}
	return "", NewCommandError("parse-direction", "invalid direction %q: use up, down, left or right", s)
}

// Vector returns the signed (dx, dy) for travelling distance d in this direction.
func (d Direction) Vector(distance float64) (float64, float64) {
	switch d {
	case DirectionDown:
		return 0, distance
	case DirectionUp:
		return 0, -distance
	case DirectionRight:
		return distance, 0
	case DirectionLeft:
		return -distance, 0
	}
	return 0, 0
}

// Inverse is the opposite direction.
func (d Direction) Inverse() Direction {
	switch d {
	case DirectionDown:
		return DirectionUp
	case DirectionUp:
		return DirectionDown
	case DirectionRight:
		return DirectionLeft
	case DirectionLeft:
		return DirectionRight
	}
	return d
}

// GestureKind names a logical interaction independent of how a platform realizes it.
type GestureKind string

const (
	GestureTap       GestureKind = "tap"
	GestureLongPress GestureKind = "long_press"
	GestureDrag      GestureKind = "drag"
	GestureScroll    GestureKind = "scroll"
	GestureType      GestureKind = "type"
	GestureBack      GestureKind = "back"
)
