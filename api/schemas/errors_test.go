package schemas

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Rendering(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: KindBrowser},
			want: "browser error",
		},
		{
			name: "op and message",
			err:  NewCommandError("swipe", "invalid direction %q", "sideways"),
			want: `command error in swipe: invalid direction "sideways"`,
		},
		{
			name: "timeout with state",
			err:  NewTimeoutError("wait-ready", 1500*time.Millisecond, "page never became ready").WithState("loading"),
			want: "timeout error in wait-ready: page never became ready (after 1.5s) [last state: loading]",
		},
		{
			name: "with cause",
			err:  NewNetworkError("registry", "fetch failed").WithCause(errors.New("connection refused")),
			want: "network error in registry: fetch failed: connection refused",
		},
		{
			name: "message without args is not a format string",
			err:  NewEvaluationError("finish", "100% done"),
			want: "evaluation error in finish: 100% done",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsMatchesKindSentinels(t *testing.T) {
	err := NewTimeoutError("wait", time.Second, "slow")
	wrapped := fmt.Errorf("starting session: %w", err)

	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.NotErrorIs(t, wrapped, ErrCommand)
	assert.NotErrorIs(t, wrapped, ErrBrowser)

	// Concrete errors are not sentinels for each other.
	other := NewTimeoutError("wait", time.Second, "slow")
	assert.False(t, errors.Is(err, other))
}

func TestError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewBrowserError("navigate", "could not load page").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrBrowser)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestKindHelpers(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewEvaluationError("finish", "rejected"))

	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "finish", e.Op)
	assert.Equal(t, KindEvaluation, KindOf(err))
	assert.True(t, IsKind(err, KindEvaluation))
	assert.False(t, IsKind(err, KindNetwork))

	plain := errors.New("plain")
	_, ok = AsError(plain)
	assert.False(t, ok)
	assert.Equal(t, ErrorKind(""), KindOf(plain))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}
