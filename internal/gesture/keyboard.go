package gesture

import (
	"context"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser/page"
)

// namedKeys maps control characters onto key presses.
var namedKeys = map[rune]schemas.KeyEventData{
	'\n': {Key: "Enter", Text: "\r"},
	'\r': {Key: "Enter", Text: "\r"},
	'\t': {Key: "Tab"},
	'\b': {Key: "Backspace"},
}

func keyFor(r rune) schemas.KeyEventData {
	if k, ok := namedKeys[r]; ok {
		return k
	}
	return schemas.KeyEventData{Text: string(r)}
}

// typeText types into the focused editable element, one key event per rune.
func (t *Translator) typeText(ctx context.Context, req Request) (Result, error) {
	focus, err := page.Focus(ctx, t.exec)
	if err != nil {
		return Result{}, err
	}
	if !focus.Editable {
		return Result{}, schemas.NewCommandError(string(schemas.GestureType), "no input element focused")
	}

	i := 0
	for _, r := range req.Text {
		if i > 0 {
			if err := t.exec.Sleep(ctx, req.TypingDelay); err != nil {
				return Result{}, err
			}
		}
		if err := t.exec.DispatchKeyEvent(ctx, keyFor(r)); err != nil {
			return Result{}, err
		}
		i++
	}
	return Result{Target: focus}, nil
}
