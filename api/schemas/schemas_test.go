package schemas

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	for in, want := range map[string]Platform{
		"":        PlatformMobile,
		"mobile":  PlatformMobile,
		"desktop": PlatformDesktop,
	} {
		got, err := ParsePlatform(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"tablet", "Desktop", " mobile"} {
		_, err := ParsePlatform(bad)
		assert.ErrorIs(t, err, ErrCommand, bad)
	}
}

func TestProfileFor(t *testing.T) {
	m := ProfileFor(PlatformMobile)
	assert.True(t, m.Mobile)
	assert.True(t, m.Touch)
	assert.Equal(t, int64(390), m.Width)

	d := ProfileFor(PlatformDesktop)
	assert.False(t, d.Touch)
	assert.Equal(t, PlatformDesktop, d.Platform)

	// Profiles are values; editing one leaves the default alone.
	m.Width = 1
	assert.Equal(t, int64(390), MobileProfile.Width)
}

func TestDirection(t *testing.T) {
	d, err := ParseDirection(" Up ")
	require.NoError(t, err)
	assert.Equal(t, DirectionUp, d)

	_, err = ParseDirection("diagonal")
	assert.ErrorIs(t, err, ErrCommand)

	tests := []struct {
		dir     Direction
		dx, dy  float64
		inverse Direction
	}{
		{DirectionUp, 0, -50, DirectionDown},
		{DirectionDown, 0, 50, DirectionUp},
		{DirectionLeft, -50, 0, DirectionRight},
		{DirectionRight, 50, 0, DirectionLeft},
	}
	for _, tt := range tests {
		dx, dy := tt.dir.Vector(50)
		assert.Equal(t, tt.dx, dx, tt.dir)
		assert.Equal(t, tt.dy, dy, tt.dir)
		assert.Equal(t, tt.inverse, tt.dir.Inverse())
		assert.Equal(t, tt.dir, tt.dir.Inverse().Inverse())
	}
}

func TestKindForGesture(t *testing.T) {
	assert.Equal(t, TrajectoryClick, KindForGesture(GestureTap))
	assert.Equal(t, TrajectoryKeypress, KindForGesture(GestureType))
	assert.Equal(t, TrajectoryScroll, KindForGesture(GestureScroll))
	assert.Equal(t, TrajectoryTouch, KindForGesture(GestureLongPress))
	assert.Equal(t, TrajectoryTouch, KindForGesture(GestureDrag))
	assert.Equal(t, TrajectoryNavigation, KindForGesture(GestureBack))
}

func TestTrajectoryEntry_WireShape(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	e := TrajectoryEntry{
		Timestamp: ts,
		Kind:      TrajectoryClick,
		Action:    GestureTap,
		Outcome:   OutcomeOK,
		Data:      map[string]interface{}{"x": 10, "y": 20},
	}

	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":1700000000123,"type":"click","action":"tap","outcome":"ok","data":{"x":10,"y":20}}`, string(b))

	var back TrajectoryEntry
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, ts.Equal(back.Timestamp))
	assert.Equal(t, TrajectoryClick, back.Kind)
	assert.Equal(t, OutcomeOK, back.Outcome)
	assert.Equal(t, float64(10), back.Data["x"])
}

func TestTrajectoryEntry_NilDataIsEmptyObject(t *testing.T) {
	b, err := json.Marshal(TrajectoryEntry{Timestamp: time.UnixMilli(5), Kind: TrajectoryNavigation})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":5,"type":"navigation","data":{}}`, string(b))
}

func TestTrajectoryEntry_CloneIsIndependent(t *testing.T) {
	orig := TrajectoryEntry{
		Kind: TrajectoryKeypress,
		Data: map[string]interface{}{
			"text":    "hi",
			"element": map[string]interface{}{"tagName": "INPUT"},
			"keys":    []interface{}{"h", "i"},
		},
	}
	snapshot := orig.Clone()

	c := orig.Clone()
	c.Data["text"] = "changed"
	c.Data["element"].(map[string]interface{})["tagName"] = "DIV"
	c.Data["keys"].([]interface{})[0] = "x"

	if diff := cmp.Diff(snapshot, orig); diff != "" {
		t.Errorf("original mutated through clone (-want +got):\n%s", diff)
	}
	assert.Nil(t, TrajectoryEntry{}.Clone().Data)
}

func TestCloneParams(t *testing.T) {
	assert.Nil(t, CloneParams(nil))

	in := map[string]interface{}{"guests": map[string]interface{}{"adults": 2}}
	out := CloneParams(in)
	out["guests"].(map[string]interface{})["adults"] = 3
	assert.Equal(t, 2, in["guests"].(map[string]interface{})["adults"])
}

func TestTaskHelpers(t *testing.T) {
	task := TaskDescriptor{ID: "t1", Difficulty: " Easy"}
	assert.True(t, task.MatchesDifficulty("easy"))
	assert.False(t, task.MatchesDifficulty("hard"))

	var nilSchema *TaskSchema
	assert.False(t, nilSchema.AllowsAdditional())
	assert.False(t, (&TaskSchema{}).AllowsAdditional())
	yes, no := true, false
	assert.True(t, (&TaskSchema{AdditionalProperties: &yes}).AllowsAdditional())
	assert.False(t, (&TaskSchema{AdditionalProperties: &no}).AllowsAdditional())

	assert.True(t, PropertySchema{Const: "fixed"}.IsConst())
	assert.True(t, PropertySchema{Const: false}.IsConst())
	assert.False(t, PropertySchema{Type: "string"}.IsConst())
}

func TestTaskDescriptor_DecodesRegistryJSON(t *testing.T) {
	raw := `{"id":"booking","envId":"booking-hotel","difficulty":"Medium","platform":"mobile",
		"tags":["travel"],"params":{"type":"object","required":["destination"],
		"properties":{"destination":{"type":"string"},"currency":{"const":"EUR"}}}}`

	var task TaskDescriptor
	require.NoError(t, json.Unmarshal([]byte(raw), &task))
	assert.Equal(t, "booking-hotel", task.EnvID)
	assert.Equal(t, PlatformMobile, task.Platform)
	require.NotNil(t, task.Schema)
	assert.Equal(t, []string{"destination"}, task.Schema.Required)
	assert.True(t, task.Schema.Properties["currency"].IsConst())
	assert.False(t, task.Schema.AllowsAdditional())
}
