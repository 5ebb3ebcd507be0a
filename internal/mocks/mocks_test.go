package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/browser/page"
)

var _ browser.Driver = (*MockDriver)(nil)

func TestFakeDriver_AnswersPageQueries(t *testing.T) {
	f := NewFakeDriver()
	f.Readiness = []schemas.ReadinessState{{ReadyState: "loading"}, {ReadyState: "complete", ChildCount: 2}}
	ctx := context.Background()

	first, err := page.Readiness(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "loading", first.ReadyState)
	for i := 0; i < 3; i++ {
		st, err := page.Readiness(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, 2, st.ChildCount, "the last readiness value repeats")
	}

	f.Selectors["#go"] = schemas.ElementSummary{TagName: "BUTTON", X: 10, Y: 20}
	summary, err := page.ElementBySelector(ctx, f, "#go")
	require.NoError(t, err)
	assert.Equal(t, "BUTTON", summary.TagName)

	_, err = page.ElementBySelector(ctx, f, "#missing")
	assert.ErrorIs(t, err, schemas.ErrCommand)

	f.Element = nil
	_, err = page.ElementAt(ctx, f, 1, 1)
	assert.ErrorIs(t, err, schemas.ErrCommand)
}

func TestFakeDriver_CapturesEvaluationPayload(t *testing.T) {
	f := NewFakeDriver()
	f.Verdict = map[string]interface{}{"success": false, "message": "nope"}

	payload := map[string]interface{}{"taskId": "t1", "parameters": map[string]interface{}{"city": "Paris, France"}}
	res, err := page.EvaluateTask(context.Background(), f, payload, time.Second)
	require.NoError(t, err)
	assert.False(t, res.Success)

	got := f.Payloads()
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0]["taskId"])
	assert.Equal(t, "Paris, France", got[0]["parameters"].(map[string]interface{})["city"])
}

func TestFakeDriver_FailHook(t *testing.T) {
	f := NewFakeDriver()
	boom := errors.New("boom")
	f.Fail = func(c Call) error {
		if c.Kind == CallTouch && c.Touch.Type == schemas.TouchMove {
			return boom
		}
		return nil
	}

	ctx := context.Background()
	require.NoError(t, f.DispatchTouchEvent(ctx, schemas.TouchEventData{Type: schemas.TouchStart}))
	assert.ErrorIs(t, f.DispatchTouchEvent(ctx, schemas.TouchEventData{Type: schemas.TouchMove}), boom)
	assert.Len(t, f.Primitives(), 2, "failed primitives are still recorded")
}

func TestMockDriver(t *testing.T) {
	m := new(MockDriver)
	m.On("Navigate", mock.Anything, "https://env.test/").Return(nil)
	m.On("CaptureScreenshot", mock.Anything, (*schemas.Clip)(nil), 1.0).Return([]byte{1}, nil)

	require.NoError(t, m.Navigate(context.Background(), "https://env.test/"))
	b, err := m.CaptureScreenshot(context.Background(), nil, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b)
	m.AssertExpectations(t)
}
