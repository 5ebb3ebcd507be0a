package page

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
)

// Evaluator is the slice of browser.Driver the queries need.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out interface{}) error
	EvaluateAsync(ctx context.Context, script string, out interface{}) error
}

// evaluationSlack is added to the Go deadline so the in-page timeout fires first.
const evaluationSlack = 2 * time.Second

// lookup is the envelope returned by element queries.
type lookup struct {
	OK    bool                `json:"ok"`
	Error string              `json:"error"`
	Value jsoniter.RawMessage `json:"value"`
}

func (l lookup) decode(op string, out interface{}) error {
	if !l.OK {
		msg := l.Error
		if msg == "" {
			msg = "lookup failed"
		}
		return schemas.NewCommandError(op, "%s", msg)
	}
	if err := json.Unmarshal(l.Value, out); err != nil {
		return schemas.NewCommandError(op, "malformed result").WithCause(err)
	}
	return nil
}

// State reports url, title, viewport and readyState.
func State(ctx context.Context, ev Evaluator) (*schemas.PageState, error) {
	var st schemas.PageState
	if err := ev.Evaluate(ctx, StateScript(), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Readiness probes document.readyState and the body's child count.
func Readiness(ctx context.Context, ev Evaluator) (schemas.ReadinessState, error) {
	var st schemas.ReadinessState
	err := ev.Evaluate(ctx, ReadinessScript(), &st)
	return st, err
}

// ElementAt returns the element at a real viewport point.
func ElementAt(ctx context.Context, ev Evaluator, x, y int) (*schemas.ElementInfo, error) {
	var res lookup
	if err := ev.Evaluate(ctx, ElementAtPointScript(x, y), &res); err != nil {
		return nil, err
	}
	var info schemas.ElementInfo
	if err := res.decode("get-element-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ElementBySelector returns a summary of the first element matching selector.
func ElementBySelector(ctx context.Context, ev Evaluator, selector string) (*schemas.ElementSummary, error) {
	script, err := ElementBySelectorScript(selector)
	if err != nil {
		return nil, schemas.NewCommandError("get-element-info", "invalid selector").WithCause(err)
	}
	var res lookup
	if err := ev.Evaluate(ctx, script, &res); err != nil {
		return nil, err
	}
	var summary schemas.ElementSummary
	if err := res.decode("get-element-info", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Focus describes the focused element.
func Focus(ctx context.Context, ev Evaluator) (*schemas.FocusInfo, error) {
	var info schemas.FocusInfo
	if err := ev.Evaluate(ctx, FocusScript(), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RunUserScript executes caller JavaScript and returns its JSON value. A
// null or undefined result is an empty map.
func RunUserScript(ctx context.Context, ev Evaluator, body string) (interface{}, error) {
	var out interface{}
	if err := ev.EvaluateAsync(ctx, UserScript(body), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return map[string]interface{}{}, nil
	}
	return out, nil
}

// EvaluateTask submits payload to window.evaluateTask and decodes the
// verdict. The timeout is enforced in the page and, with some slack, by
// the context deadline. Both surface as timeout errors. Page failures and
// malformed verdicts are evaluation errors. A verdict with success=false is
// a valid result.
func EvaluateTask(ctx context.Context, ev Evaluator, payload interface{}, timeout time.Duration) (*schemas.EvaluationResult, error) {
	const op = "finish-evaluation"

	script, err := EvaluateTaskScript(payload, timeout)
	if err != nil {
		return nil, schemas.NewCommandError(op, "payload is not serializable").WithCause(err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout+evaluationSlack)
	defer cancel()

	start := time.Now()
	var raw map[string]interface{}
	if err := ev.EvaluateAsync(evalCtx, script, &raw); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return nil, schemas.NewTimeoutError(op, time.Since(start), "evaluation did not complete").WithCause(err)
		}
		var scriptErr *browser.ScriptError
		if errors.As(err, &scriptErr) {
			return nil, schemas.NewEvaluationError(op, "environment evaluator failed").WithCause(err)
		}
		return nil, schemas.NewEvaluationError(op, "evaluation request failed").WithCause(err)
	}

	return DecodeEvaluation(raw, time.Since(start))
}

// DecodeEvaluation turns the raw evaluateTask verdict into a result.
func DecodeEvaluation(raw map[string]interface{}, elapsed time.Duration) (*schemas.EvaluationResult, error) {
	const op = "finish-evaluation"

	if raw == nil {
		return nil, schemas.NewEvaluationError(op, "environment returned no result")
	}
	switch raw["__scalewob"] {
	case statusTimeout:
		return nil, schemas.NewTimeoutError(op, elapsed, "evaluation timed out in page")
	case statusError:
		return nil, schemas.NewEvaluationError(op, "environment evaluator failed: %v", raw["error"])
	}

	success, ok := raw["success"].(bool)
	if !ok {
		return nil, schemas.NewEvaluationError(op, "malformed result: missing boolean success field")
	}

	res := &schemas.EvaluationResult{Success: success}
	details := make(map[string]interface{})
	for k, v := range raw {
		switch k {
		case "success":
		case "score":
			score, ok := v.(float64)
			if !ok {
				return nil, schemas.NewEvaluationError(op, "malformed result: score is %T, want number", v)
			}
			res.Score = &score
		case "message":
			res.Message = fmt.Sprint(v)
		default:
			details[k] = v
		}
	}
	if len(details) > 0 {
		res.Details = details
	}
	return res, nil
}
