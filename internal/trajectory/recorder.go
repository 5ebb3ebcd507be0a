// Package trajectory keeps the ordered history of an evaluation round.
package trajectory

import (
	"fmt"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// Recorder is an append-only, timestamp-ordered log of trajectory entries.
// It does no locking; its owner serializes access.
type Recorder struct {
	entries    []schemas.TrajectoryEntry
	generation uint64
}

func New() *Recorder {
	return &Recorder{}
}

// Reset empties the recorder and starts a new generation.
func (r *Recorder) Reset() {
	r.entries = nil
	r.generation++
}

// Clear empties the recorder without starting a new generation.
func (r *Recorder) Clear() {
	r.entries = nil
}

// Generation counts Resets.
func (r *Recorder) Generation() uint64 { return r.generation }

// Record appends e. Entries must not go back in time.
func (r *Recorder) Record(e schemas.TrajectoryEntry) error {
	if n := len(r.entries); n > 0 {
		last := r.entries[n-1].Timestamp
		if e.Timestamp.Before(last) {
			return fmt.Errorf("trajectory entry at %s precedes last entry at %s",
				e.Timestamp.Format("15:04:05.000"), last.Format("15:04:05.000"))
		}
	}
	r.entries = append(r.entries, e.Clone())
	return nil
}

// Entries returns a deep copy of the history.
func (r *Recorder) Entries() []schemas.TrajectoryEntry {
	out := make([]schemas.TrajectoryEntry, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Clone()
	}
	return out
}

// Drain is Entries for the finish step; the recorder is left untouched so a
// failed submission can be retried.
func (r *Recorder) Drain() []schemas.TrajectoryEntry {
	return r.Entries()
}

func (r *Recorder) Len() int { return len(r.entries) }
