package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// sequence answers with states in order, repeating the last one.
func sequence(states ...schemas.ReadinessState) (Probe, *int) {
	calls := 0
	return func(ctx context.Context) (schemas.ReadinessState, error) {
		i := calls
		if i >= len(states) {
			i = len(states) - 1
		}
		calls++
		return states[i], nil
	}, &calls
}

var (
	loading  = schemas.ReadinessState{ReadyState: "loading"}
	empty    = schemas.ReadinessState{ReadyState: "complete", ChildCount: 0}
	complete = schemas.ReadinessState{ReadyState: "complete", ChildCount: 3}
)

func newWaiter(t *testing.T, probe Probe) (*Waiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return &Waiter{
		Probe:        probe,
		PollInterval: 100 * time.Millisecond,
		SettleDelay:  500 * time.Millisecond,
		Clock:        clock,
		Logger:       zaptest.NewLogger(t),
	}, clock
}

func TestWait_SettlesAfterDelay(t *testing.T) {
	probe, calls := sequence(loading, loading, complete)
	w, clock := newWaiter(t, probe)
	start := clock.now

	require.NoError(t, w.Wait(context.Background(), 10*time.Second))
	// Ready first seen at 200ms, settled 500ms later.
	assert.Equal(t, 700*time.Millisecond, clock.now.Sub(start))
	assert.Equal(t, 8, *calls)
}

func TestWait_DropResetsSettle(t *testing.T) {
	probe, _ := sequence(complete, complete, empty, complete)
	w, clock := newWaiter(t, probe)
	start := clock.now

	require.NoError(t, w.Wait(context.Background(), 10*time.Second))
	// The drop at 200ms resets the mark; ready again at 300ms, settled at 800ms.
	assert.Equal(t, 800*time.Millisecond, clock.now.Sub(start))
}

func TestWait_ZeroSettle(t *testing.T) {
	probe, calls := sequence(complete)
	w, _ := newWaiter(t, probe)
	w.SettleDelay = 0

	require.NoError(t, w.Wait(context.Background(), time.Second))
	assert.Equal(t, 1, *calls)
}

func TestWait_Timeout(t *testing.T) {
	probe, _ := sequence(empty)
	w, _ := newWaiter(t, probe)

	err := w.Wait(context.Background(), time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrTimeout)

	e, ok := schemas.AsError(err)
	require.True(t, ok)
	assert.Equal(t, time.Second, e.Elapsed)
	assert.Contains(t, e.State, `readyState="complete" childCount=0`)
}

func TestWait_ProbeErrorsCountAsNotReady(t *testing.T) {
	boom := errors.New("execution context was destroyed")
	calls := 0
	w, _ := newWaiter(t, func(ctx context.Context) (schemas.ReadinessState, error) {
		calls++
		if calls <= 3 {
			return schemas.ReadinessState{}, boom
		}
		return complete, nil
	})

	require.NoError(t, w.Wait(context.Background(), 10*time.Second))

	calls = -1000
	err := w.Wait(context.Background(), 300*time.Millisecond)
	require.Error(t, err)
	e, _ := schemas.AsError(err)
	assert.Contains(t, e.State, "execution context was destroyed")
}

func TestWait_ContextCanceled(t *testing.T) {
	probe, _ := sequence(loading)
	w, _ := newWaiter(t, probe)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Wait(ctx, time.Second)
	assert.ErrorIs(t, err, schemas.ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait_RealClock(t *testing.T) {
	probe, _ := sequence(complete)
	w := &Waiter{Probe: probe, PollInterval: 5 * time.Millisecond, SettleDelay: 20 * time.Millisecond}

	start := time.Now()
	require.NoError(t, w.Wait(context.Background(), time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWait_StuckPageHonoursTimeout(t *testing.T) {
	// A page busy in a long script never answers until the check's context
	// ends.
	w := &Waiter{
		Probe: func(ctx context.Context) (schemas.ReadinessState, error) {
			select {
			case <-ctx.Done():
				return schemas.ReadinessState{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return complete, nil
			}
		},
		PollInterval: 10 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	}

	start := time.Now()
	err := w.Wait(context.Background(), 200*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)

	e, ok := schemas.AsError(err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, e.Elapsed, 200*time.Millisecond)
	assert.Equal(t, describe(schemas.ReadinessState{}, context.DeadlineExceeded), e.State)
	assert.Contains(t, e.Message, "did not become ready")
}
