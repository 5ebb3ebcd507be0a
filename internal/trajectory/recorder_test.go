package trajectory

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(offset time.Duration, action schemas.GestureKind, data map[string]interface{}) schemas.TrajectoryEntry {
	return schemas.TrajectoryEntry{
		Timestamp: t0.Add(offset),
		Kind:      schemas.KindForGesture(action),
		Action:    action,
		Outcome:   schemas.OutcomeOK,
		Data:      data,
	}
}

func TestRecorder_RecordAndOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Record(entry(0, schemas.GestureTap, map[string]interface{}{"x": 10})))
	require.NoError(t, r.Record(entry(0, schemas.GestureType, map[string]interface{}{"text": "a"})), "equal timestamps are fine")
	require.NoError(t, r.Record(entry(time.Second, schemas.GestureScroll, nil)))

	err := r.Record(entry(-time.Second, schemas.GestureBack, nil))
	assert.ErrorContains(t, err, "precedes")
	assert.Equal(t, 3, r.Len())

	got := r.Entries()
	want := []schemas.TrajectoryEntry{
		entry(0, schemas.GestureTap, map[string]interface{}{"x": 10}),
		entry(0, schemas.GestureType, map[string]interface{}{"text": "a"}),
		entry(time.Second, schemas.GestureScroll, nil),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder_CopiesAreIsolated(t *testing.T) {
	r := New()
	data := map[string]interface{}{"x": 1, "element": map[string]interface{}{"id": "a"}}
	require.NoError(t, r.Record(entry(0, schemas.GestureTap, data)))

	data["x"] = 99
	got := r.Entries()
	got[0].Data["element"].(map[string]interface{})["id"] = "mutated"

	again := r.Drain()
	assert.Equal(t, 1, again[0].Data["x"])
	assert.Equal(t, "a", again[0].Data["element"].(map[string]interface{})["id"])
	assert.Equal(t, 1, r.Len(), "drain does not mutate")
}

func TestRecorder_ResetAndClear(t *testing.T) {
	r := New()
	require.NoError(t, r.Record(entry(0, schemas.GestureTap, nil)))
	r.Reset()
	assert.Zero(t, r.Len())
	assert.Equal(t, uint64(1), r.Generation())

	require.NoError(t, r.Record(entry(-time.Hour, schemas.GestureTap, nil)), "a reset forgets the last timestamp")
	r.Clear()
	assert.Zero(t, r.Len())
	assert.Equal(t, uint64(1), r.Generation())
}

func TestRecorder_MonotonicProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := New()
		offsets := rapid.SliceOf(rapid.IntRange(-1000, 1000)).Draw(rt, "offsets")
		for _, off := range offsets {
			_ = r.Record(entry(time.Duration(off)*time.Millisecond, schemas.GestureTap, nil))
		}
		entries := r.Entries()
		for i := 1; i < len(entries); i++ {
			if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
				rt.Fatalf("entry %d at %v precedes entry %d at %v", i, entries[i].Timestamp, i-1, entries[i-1].Timestamp)
			}
		}
	})
}
