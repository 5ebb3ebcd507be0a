package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/browser/page"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CallKind names the driver primitive a Call recorded.
type CallKind string

const (
	CallNavigate   CallKind = "navigate"
	CallBack       CallKind = "back"
	CallMouse      CallKind = "mouse"
	CallTouch      CallKind = "touch"
	CallKey        CallKind = "key"
	CallSleep      CallKind = "sleep"
	CallEvaluate   CallKind = "evaluate"
	CallScreenshot CallKind = "screenshot"
	CallClose      CallKind = "close"
)

// Call is one recorded driver interaction.
type Call struct {
	Kind   CallKind
	URL    string
	Mouse  schemas.MouseEventData
	Touch  schemas.TouchEventData
	Key    schemas.KeyEventData
	Sleep  time.Duration
	Script string
	Clip   *schemas.Clip
	Scale  float64
}

// FakeDriver is a scripted in-memory browser.Driver. It answers the page
// queries by recognizing their markers and records every primitive.
type FakeDriver struct {
	mu    sync.Mutex
	calls []Call

	// Readiness is returned in order; the last value repeats.
	Readiness    []schemas.ReadinessState
	readinessIdx int
	ReadinessErr error

	PageState schemas.PageState
	Focus     schemas.FocusInfo
	// Element is reported for every point query; nil means nothing is there.
	Element   *schemas.ElementInfo
	Selectors map[string]schemas.ElementSummary

	// Verdict is what window.evaluateTask resolves to.
	Verdict map[string]interface{}
	// EvaluateErr fails the evaluation request itself.
	EvaluateErr error
	// EvaluateBlocks makes the evaluation hang until the context ends.
	EvaluateBlocks bool
	payloads       []map[string]interface{}

	ScriptResult interface{}
	ScriptErr    error

	Screenshot []byte

	// RealSleep makes Sleep wait; by default it returns at once.
	RealSleep bool

	// Fail, when set, is consulted before every primitive.
	Fail func(Call) error

	NavigateErr error
	closed      int
}

var _ browser.Driver = (*FakeDriver)(nil)

// NewFakeDriver returns a driver whose page is immediately ready.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Readiness: []schemas.ReadinessState{{ReadyState: "complete", ChildCount: 1}},
		PageState: schemas.PageState{ReadyState: "complete"},
		Focus:     schemas.FocusInfo{Editable: true, TagName: "INPUT", InputType: "text"},
		Element:   &schemas.ElementInfo{TagName: "DIV"},
		Verdict:   map[string]interface{}{"success": true},
		Selectors: map[string]schemas.ElementSummary{},
	}
}

func (f *FakeDriver) record(c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	fail := f.Fail
	f.mu.Unlock()
	if fail != nil {
		return fail(c)
	}
	return nil
}

// Calls returns a copy of everything recorded so far.
func (f *FakeDriver) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf filters Calls by kind.
func (f *FakeDriver) CallsOf(kinds ...CallKind) []Call {
	var out []Call
	for _, c := range f.Calls() {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Primitives are the input events only: mouse, touch and key.
func (f *FakeDriver) Primitives() []Call {
	return f.CallsOf(CallMouse, CallTouch, CallKey)
}

// Reset forgets recorded calls.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// Payloads returns the parameter objects submitted to window.evaluateTask.
func (f *FakeDriver) Payloads() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.payloads...)
}

// CloseCount reports how many times Close ran.
func (f *FakeDriver) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeDriver) Navigate(ctx context.Context, url string) error {
	if err := f.record(Call{Kind: CallNavigate, URL: url}); err != nil {
		return err
	}
	return f.NavigateErr
}

func (f *FakeDriver) Back(ctx context.Context) error {
	return f.record(Call{Kind: CallBack})
}

func (f *FakeDriver) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.record(Call{Kind: CallMouse, Mouse: data})
}

func (f *FakeDriver) DispatchTouchEvent(ctx context.Context, data schemas.TouchEventData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.record(Call{Kind: CallTouch, Touch: data})
}

func (f *FakeDriver) DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.record(Call{Kind: CallKey, Key: data})
}

func (f *FakeDriver) Sleep(ctx context.Context, d time.Duration) error {
	if err := f.record(Call{Kind: CallSleep, Sleep: d}); err != nil {
		return err
	}
	if f.RealSleep {
		return browser.Sleep(ctx, d)
	}
	return ctx.Err()
}

func (f *FakeDriver) Evaluate(ctx context.Context, script string, out interface{}) error {
	return f.evaluate(ctx, script, out)
}

func (f *FakeDriver) EvaluateAsync(ctx context.Context, script string, out interface{}) error {
	return f.evaluate(ctx, script, out)
}

func (f *FakeDriver) evaluate(ctx context.Context, script string, out interface{}) error {
	if err := f.record(Call{Kind: CallEvaluate, Script: script}); err != nil {
		return err
	}

	var result interface{}
	switch {
	case strings.Contains(script, page.MarkerReadiness):
		f.mu.Lock()
		if f.ReadinessErr != nil {
			f.mu.Unlock()
			return f.ReadinessErr
		}
		st := schemas.ReadinessState{}
		if n := len(f.Readiness); n > 0 {
			if f.readinessIdx >= n {
				f.readinessIdx = n - 1
			}
			st = f.Readiness[f.readinessIdx]
			f.readinessIdx++
		}
		f.mu.Unlock()
		result = st
	case strings.Contains(script, page.MarkerState):
		result = f.PageState
	case strings.Contains(script, page.MarkerFocus):
		result = f.Focus
	case strings.Contains(script, page.MarkerElementAtPoint):
		if f.Element == nil {
			result = map[string]interface{}{"ok": false, "error": "no element at coordinates"}
		} else {
			result = map[string]interface{}{"ok": true, "value": f.Element}
		}
	case strings.Contains(script, page.MarkerElementBySelector):
		result = f.selectorLookup(script)
	case strings.Contains(script, page.MarkerEvaluateTask):
		if payload, err := extractPayload(script); err == nil {
			f.mu.Lock()
			f.payloads = append(f.payloads, payload)
			f.mu.Unlock()
		}
		if f.EvaluateBlocks {
			<-ctx.Done()
			return ctx.Err()
		}
		if f.EvaluateErr != nil {
			return f.EvaluateErr
		}
		result = f.Verdict
	case strings.Contains(script, page.MarkerUserScript):
		if f.ScriptErr != nil {
			return f.ScriptErr
		}
		result = f.ScriptResult
	default:
		return errors.New("fake driver: unrecognized script")
	}

	if out == nil {
		return nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (f *FakeDriver) selectorLookup(script string) interface{} {
	for sel, summary := range f.Selectors {
		arg, _ := json.Marshal(sel)
		if strings.Contains(script, "("+string(arg)+")") {
			return map[string]interface{}{"ok": true, "value": summary}
		}
	}
	return map[string]interface{}{"ok": false, "error": "element not found"}
}

// extractPayload recovers the JSON argument of an evaluateTask script,
// which ends in "})(<payload>, <timeoutMs>)".
func extractPayload(script string) (map[string]interface{}, error) {
	start := strings.LastIndex(script, "})(")
	end := strings.LastIndex(script, ", ")
	if start < 0 || end <= start {
		return nil, errors.New("no payload")
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(script[start+3:end]), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (f *FakeDriver) CaptureScreenshot(ctx context.Context, clip *schemas.Clip, scale float64) ([]byte, error) {
	if err := f.record(Call{Kind: CallScreenshot, Clip: clip, Scale: scale}); err != nil {
		return nil, err
	}
	return f.Screenshot, nil
}

func (f *FakeDriver) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return f.record(Call{Kind: CallClose})
}

// Launcher returns a browser.Launcher handing out this driver, recording
// the profile it was asked for.
func (f *FakeDriver) Launcher(profiles *[]schemas.DeviceProfile) browser.Launcher {
	return browser.LauncherFunc(func(ctx context.Context, profile schemas.DeviceProfile) (browser.Driver, error) {
		if profiles != nil {
			*profiles = append(*profiles, profile)
		}
		return f, nil
	})
}
