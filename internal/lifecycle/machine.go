// Package lifecycle is the evaluation state machine a session moves through.
package lifecycle

import (
	"strings"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// State is a lifecycle state.
type State string

const (
	Uninitialized State = "uninitialized"
	Started       State = "started"
	Evaluating    State = "evaluating"
	Finished      State = "finished"
	Closed        State = "closed"
)

// transitions lists the legal moves. Any state may move to Closed.
var transitions = map[State][]State{
	Uninitialized: {Started},
	Started:       {Evaluating},
	Evaluating:    {Finished},
	Finished:      {Evaluating},
}

// Hook observes a completed transition.
type Hook func(from, to State)

// Machine holds the current state. It is not safe for concurrent use; its
// owner serializes access.
type Machine struct {
	state State
	hooks []Hook
}

func New() *Machine {
	return &Machine{state: Uninitialized}
}

func (m *Machine) State() State { return m.state }

// OnTransition registers a hook run after every state change.
func (m *Machine) OnTransition(h Hook) {
	m.hooks = append(m.hooks, h)
}

// Can reports whether moving to "to" is legal from the current state.
func (m *Machine) Can(to State) bool {
	if to == Closed {
		return true
	}
	for _, s := range transitions[m.state] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves to "to". Closed to Closed is a no-op.
func (m *Machine) Transition(to State) error {
	if m.state == Closed && to == Closed {
		return nil
	}
	if !m.Can(to) {
		return schemas.NewEvaluationError("transition",
			"cannot move to %s: expected state %s, current state is %s", to, joinStates(m.from(to)), m.state)
	}
	from := m.state
	m.state = to
	for _, h := range m.hooks {
		h(from, to)
	}
	return nil
}

// from lists the states that may move to "to".
func (m *Machine) from(to State) []State {
	var out []State
	for _, s := range []State{Uninitialized, Started, Evaluating, Finished} {
		for _, next := range transitions[s] {
			if next == to {
				out = append(out, s)
			}
		}
	}
	return out
}

// Require fails unless the current state is one of states.
func (m *Machine) Require(op string, states ...State) error {
	for _, s := range states {
		if m.state == s {
			return nil
		}
	}
	return schemas.NewEvaluationError(op, "expected state %s, current state is %s", joinStates(states), m.state)
}

func joinStates(states []State) string {
	if len(states) == 0 {
		return "none"
	}
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}
