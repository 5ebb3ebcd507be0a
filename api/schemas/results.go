package schemas

import "time"

// -- Result Schemas --

// CommandResult is the uniform outcome of an interaction call.
type CommandResult struct {
	Success  bool                   `json:"success"`
	Action   GestureKind            `json:"action"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// Viewport is the visible area and scroll offset of the page.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
}

// PageState is what get_state reports.
type PageState struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Viewport   Viewport `json:"viewport"`
	ReadyState string   `json:"readyState"`
}

// ReadinessState is the raw signal the readiness waiter polls.
type ReadinessState struct {
	ReadyState string `json:"readyState"`
	ChildCount int    `json:"childCount"`
}

// ElementPosition is a bounding client rect.
type ElementPosition struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

// ElementStyle is the subset of computed style that decides visibility.
type ElementStyle struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
}

// ElementInfo describes the element found at a viewport point.
type ElementInfo struct {
	TagName    string            `json:"tagName"`
	ID         string            `json:"id"`
	ClassName  string            `json:"className"`
	Text       string            `json:"text"`
	Value      string            `json:"value,omitempty"`
	Type       string            `json:"type,omitempty"`
	Href       string            `json:"href,omitempty"`
	Src        string            `json:"src,omitempty"`
	Position   ElementPosition   `json:"position"`
	Style      ElementStyle      `json:"style"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ElementSummary is the selector lookup result. X and Y are the element's
// centre in viewport coordinates.
type ElementSummary struct {
	TagName   string  `json:"tagName"`
	ID        string  `json:"id"`
	ClassName string  `json:"className"`
	Text      string  `json:"text"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Visible   bool    `json:"visible"`
}

// FocusInfo describes document.activeElement.
type FocusInfo struct {
	Editable  bool    `json:"editable"`
	TagName   string  `json:"tagName"`
	ID        string  `json:"id"`
	ClassName string  `json:"className"`
	InputType string  `json:"inputType"`
	Value     string  `json:"value"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// EvaluationResult is what the environment's evaluateTask reported. A result
// with Success=false is a valid outcome (the task was not completed), not an error.
type EvaluationResult struct {
	Success bool                   `json:"success"`
	Score   *float64               `json:"score,omitempty"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	// Params is the caller-visible parameter set; server-fixed constants are never exposed.
	Params     map[string]interface{} `json:"params,omitempty"`
	TaskID     string                 `json:"taskId"`
	FinishedAt time.Time              `json:"finishedAt"`
}

// EvaluationRecord is a finished evaluation round as handed to result sinks.
type EvaluationRecord struct {
	RunID      string            `json:"runId"`
	SessionID  string            `json:"sessionId"`
	EnvID      string            `json:"envId"`
	TaskID     string            `json:"taskId"`
	Platform   Platform          `json:"platform"`
	Result     EvaluationResult  `json:"result"`
	Trajectory []TrajectoryEntry `json:"trajectory"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}
