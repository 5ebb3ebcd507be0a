package gesture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/mocks"
)

func newTranslator(t *testing.T, platform schemas.Platform) (*Translator, *mocks.FakeDriver) {
	t.Helper()
	fake := mocks.NewFakeDriver()
	return New(platform, fake, DefaultOptions(), zaptest.NewLogger(t)), fake
}

func touchTypes(calls []mocks.Call) []schemas.TouchEventType {
	var out []schemas.TouchEventType
	for _, c := range calls {
		if c.Kind == mocks.CallTouch {
			out = append(out, c.Touch.Type)
		}
	}
	return out
}

func mouseTypes(calls []mocks.Call) []schemas.MouseEventType {
	var out []schemas.MouseEventType
	for _, c := range calls {
		if c.Kind == mocks.CallMouse {
			out = append(out, c.Mouse.Type)
		}
	}
	return out
}

func TestSupports(t *testing.T) {
	mobile, _ := newTranslator(t, schemas.PlatformMobile)
	desktop, _ := newTranslator(t, schemas.PlatformDesktop)

	for _, k := range []schemas.GestureKind{
		schemas.GestureTap, schemas.GestureLongPress, schemas.GestureDrag,
		schemas.GestureScroll, schemas.GestureType, schemas.GestureBack,
	} {
		assert.True(t, mobile.Supports(k), "mobile %s", k)
	}
	assert.False(t, desktop.Supports(schemas.GestureLongPress))
	assert.True(t, desktop.Supports(schemas.GestureDrag))

	// The package-level check agrees without a translator.
	assert.False(t, Supported(schemas.GestureLongPress, schemas.PlatformDesktop))
	assert.True(t, Supported(schemas.GestureLongPress, schemas.PlatformMobile))
	assert.False(t, Supported("pinch", schemas.PlatformMobile))
}

func TestMobileTap(t *testing.T) {
	tr, fake := newTranslator(t, schemas.PlatformMobile)

	_, err := tr.Dispatch(context.Background(), Request{Kind: schemas.GestureTap, X: 33, Y: 66, Delay: 100 * time.Millisecond})
	require.NoError(t, err)

	calls := fake.CallsOf(mocks.CallTouch, mocks.CallSleep)
	require.Len(t, calls, 4)
	assert.Equal(t, 100*time.Millisecond, calls[0].Sleep, "delay comes first")
	assert.Equal(t, schemas.TouchStart, calls[1].Touch.Type)
	assert.Equal(t, []schemas.TouchPoint{{X: 33, Y: 66}}, calls[1].Touch.Points)
	assert.Equal(t, schemas.TouchEnd, calls[2].Touch.Type)
	assert.Equal(t, DefaultOptions().GestureSettle, calls[3].Sleep, "settle comes last")
	assert.Empty(t, fake.CallsOf(mocks.CallMouse), "mobile never emits mouse events")
}

func TestDesktopTap(t *testing.T) {
	tr, fake := newTranslator(t, schemas.PlatformDesktop)

	_, err := tr.Dispatch(context.Background(), Request{Kind: schemas.GestureTap, X: 100, Y: 50})
	require.NoError(t, err)

	mouse := fake.CallsOf(mocks.CallMouse)
	assert.Equal(t, []schemas.MouseEventType{schemas.MouseMove, schemas.MousePress, schemas.MouseRelease}, mouseTypes(mouse))
	press := mouse[1].Mouse
	assert.Equal(t, schemas.ButtonLeft, press.Button)
	assert.Equal(t, 1, press.ClickCount)
	assert.Equal(t, 100.0, press.X)
	assert.Empty(t, fake.CallsOf(mocks.CallTouch), "desktop never emits touch events")
	assert.Equal(t, Cursor{X: 100, Y: 50}, tr.Cursor())
}

func TestLongPress(t *testing.T) {
	t.Run("mobile holds for the duration", func(t *testing.T) {
		tr, fake := newTranslator(t, schemas.PlatformMobile)
		_, err := tr.Dispatch(context.Background(), Request{Kind: schemas.GestureLongPress, X: 5, Y: 5, Duration: time.Second})
		require.NoError(t, err)

		calls := fake.CallsOf(mocks.CallTouch, mocks.CallSleep)
		require.Len(t, calls, 3)
		assert.Equal(t, schemas.TouchStart, calls[0].Touch.Type)
		assert.Equal(t, time.Second, calls[1].Sleep)
		assert.Equal(t, schemas.TouchEnd, calls[2].Touch.Type)
	})

	t.Run("desktop is unsupported and dispatches nothing", func(t *testing.T) {
		tr, fake := newTranslator(t, schemas.PlatformDesktop)
		_, err := tr.Dispatch(context.Background(), Request{Kind: schemas.GestureLongPress, X: 5, Y: 5, Duration: time.Second})
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrCommand)
		assert.Empty(t, fake.Calls())
	})
}

func TestDirectionVectors(t *testing.T) {
	tests := []struct {
		dir    schemas.Direction
		dx, dy float64
	}{
		{schemas.DirectionDown, 0, 100},
		{schemas.DirectionUp, 0, -100},
		{schemas.DirectionRight, 100, 0},
		{schemas.DirectionLeft, -100, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			tr, fake := newTranslator(t, schemas.PlatformMobile)
			res, err := tr.Dispatch(context.Background(), Request{
				Kind: schemas.GestureDrag, X: 200, Y: 400, Direction: tt.dir, Distance: 100,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.dx, res.DX)
			assert.Equal(t, tt.dy, res.DY)

			touches := fake.CallsOf(mocks.CallTouch)
			assert.Equal(t, []schemas.TouchEventType{schemas.TouchStart, schemas.TouchMove, schemas.TouchEnd}, touchTypes(touches))
			assert.Equal(t, schemas.TouchPoint{X: 200 + tt.dx, Y: 400 + tt.dy}, touches[1].Touch.Points[0])
		})
	}
}

func TestMobileScrollSwipesInverse(t *testing.T) {
	tr, fake := newTranslator(t, schemas.PlatformMobile)
	res, err := tr.Dispatch(context.Background(), Request{
		Kind: schemas.GestureScroll, X: 200, Y: 400, Direction: schemas.DirectionDown, Distance: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, res.DY)

	touches := fake.CallsOf(mocks.CallTouch)
	require.Len(t, touches, 3)
	assert.Equal(t, schemas.TouchPoint{X: 200, Y: 250}, touches[1].Touch.Points[0], "finger moves up to scroll down")
}

func TestDesktopScrollIsWheel(t *testing.T) {
	tr, fake := newTranslator(t, schemas.PlatformDesktop)
	_, err := tr.Dispatch(context.Background(), Request{
		Kind: schemas.GestureScroll, X: 10, Y: 20, Direction: schemas.DirectionLeft, Distance: 100,
	})
	require.NoError(t, err)

	mouse := fake.CallsOf(mocks.CallMouse)
	require.Len(t, mouse, 1)
	wheel := mouse[0].Mouse
	assert.Equal(t, schemas.MouseWheel, wheel.Type)
	assert.Equal(t, -100.0, wheel.DeltaX)
	assert.Equal(t, 0.0, wheel.DeltaY)
	assert.Equal(t, 10.0, wheel.X)
}

func TestDesktopDragReturnsCursor(t *testing.T) {
	tr, fake := newTranslator(t, schemas.PlatformDesktop)
	ctx := context.Background()

	// Park the cursor somewhere first.
	_, err := tr.Dispatch(ctx, Request{Kind: schemas.GestureTap, X: 40, Y: 40})
	require.NoError(t, err)
	fake.Reset()

	res, err := tr.Dispatch(ctx, Request{
		Kind: schemas.GestureDrag, X: 100, Y: 100, Direction: schemas.DirectionRight, Distance: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.DX)

	mouse := fake.CallsOf(mocks.CallMouse)
	assert.Equal(t, []schemas.MouseEventType{
		schemas.MouseMove, schemas.MousePress, schemas.MouseMove, schemas.MouseRelease, schemas.MouseMove,
	}, mouseTypes(mouse))
	assert.Equal(t, int64(1), mouse[2].Mouse.Buttons, "the drag move carries the pressed button")
	assert.Equal(t, 150.0, mouse[3].Mouse.X, "release happens at origin plus delta")
	assert.Equal(t, Cursor{X: 40, Y: 40}, tr.Cursor(), "cursor returns to its pre-gesture position")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"zero distance", Request{Kind: schemas.GestureDrag, Direction: schemas.DirectionUp, Distance: 0}},
		{"negative distance", Request{Kind: schemas.GestureScroll, Direction: schemas.DirectionUp, Distance: -5}},
		{"bad direction", Request{Kind: schemas.GestureScroll, Direction: "diagonal", Distance: 10}},
		{"zero duration", Request{Kind: schemas.GestureLongPress}},
		{"negative delay", Request{Kind: schemas.GestureTap, Delay: -time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, fake := newTranslator(t, schemas.PlatformMobile)
			_, err := tr.Dispatch(context.Background(), tt.req)
			assert.ErrorIs(t, err, schemas.ErrCommand)
			assert.Empty(t, fake.Calls(), "nothing dispatched for an invalid request")
		})
	}
}

func TestCleanupReleasesAfterFailure(t *testing.T) {
	t.Run("mobile move fails", func(t *testing.T) {
		tr, fake := newTranslator(t, schemas.PlatformMobile)
		boom := errors.New("target crashed")
		fake.Fail = func(c mocks.Call) error {
			if c.Kind == mocks.CallTouch && c.Touch.Type == schemas.TouchMove {
				return boom
			}
			return nil
		}

		_, err := tr.Dispatch(context.Background(), Request{
			Kind: schemas.GestureDrag, Direction: schemas.DirectionDown, Distance: 10,
		})
		assert.ErrorIs(t, err, boom)
		types := touchTypes(fake.Calls())
		assert.Equal(t, schemas.TouchEnd, types[len(types)-1], "finger lifted after failure")
	})

	t.Run("desktop drag canceled mid-gesture", func(t *testing.T) {
		tr, fake := newTranslator(t, schemas.PlatformDesktop)
		ctx, cancel := context.WithCancel(context.Background())
		fake.Fail = func(c mocks.Call) error {
			if c.Kind == mocks.CallMouse && c.Mouse.Type == schemas.MousePress {
				cancel()
			}
			return nil
		}

		_, err := tr.Dispatch(ctx, Request{
			Kind: schemas.GestureDrag, X: 10, Y: 10, Direction: schemas.DirectionDown, Distance: 10,
		})
		assert.ErrorIs(t, err, context.Canceled)
		types := mouseTypes(fake.Calls())
		assert.Equal(t, schemas.MouseRelease, types[len(types)-1], "button released on the detached context")
		assert.Zero(t, tr.Cursor().Buttons)
	})
}

func TestType(t *testing.T) {
	t.Run("one key per rune with delays between", func(t *testing.T) {
		tr, fake := newTranslator(t, schemas.PlatformDesktop)
		res, err := tr.Dispatch(context.Background(), Request{
			Kind: schemas.GestureType, Text: "hé\n", TypingDelay: 50 * time.Millisecond,
		})
		require.NoError(t, err)
		require.NotNil(t, res.Target)
		assert.Equal(t, "INPUT", res.Target.TagName)

		keys := fake.CallsOf(mocks.CallKey)
		require.Len(t, keys, 3)
		assert.Equal(t, "h", keys[0].Key.Text)
		assert.Equal(t, "é", keys[1].Key.Text)
		assert.Equal(t, "Enter", keys[2].Key.Key)
		assert.Len(t, fake.CallsOf(mocks.CallSleep), 2)
	})

	t.Run("nothing focused", func(t *testing.T) {
		tr, fake := newTranslator(t, schemas.PlatformMobile)
		fake.Focus = schemas.FocusInfo{Editable: false}

		_, err := tr.Dispatch(context.Background(), Request{Kind: schemas.GestureType, Text: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrCommand)
		assert.Contains(t, err.Error(), "no input element focused")
		assert.Empty(t, fake.CallsOf(mocks.CallKey))
	})
}

func TestBack(t *testing.T) {
	tr, fake := newTranslator(t, schemas.PlatformMobile)
	_, err := tr.Dispatch(context.Background(), Request{Kind: schemas.GestureBack})
	require.NoError(t, err)

	calls := fake.CallsOf(mocks.CallBack, mocks.CallSleep)
	require.Len(t, calls, 2)
	assert.Equal(t, mocks.CallBack, calls[0].Kind)
	assert.Equal(t, 500*time.Millisecond, calls[1].Sleep)
}
