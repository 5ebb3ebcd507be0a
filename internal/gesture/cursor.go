package gesture

import "github.com/xkilldash9x/scalewob/api/schemas"

// Cursor is the tracked pointer position and pressed-button mask.
type Cursor struct {
	X, Y    float64
	Buttons int64
}

// Cursor returns a snapshot of the tracked pointer.
func (t *Translator) Cursor() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

func (t *Translator) track(data schemas.MouseEventData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor.X, t.cursor.Y = data.X, data.Y
	switch data.Type {
	case schemas.MousePress:
		t.cursor.Buttons = data.Buttons
	case schemas.MouseRelease:
		t.cursor.Buttons = 0
	}
}
