package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/pkg/automation"
)

// actionRequest carries the arguments of every gesture. Durations are in
// milliseconds. A zero delay selects the session default. An omitted
// direction, distance or duration is filled in by withDefaults; an explicit
// zero is passed through and rejected by the session.
type actionRequest struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Delay       int64  `json:"delay,omitempty"`
	Text        string `json:"text,omitempty"`
	TypingDelay int64  `json:"typingDelay,omitempty"`
	Direction   string `json:"direction,omitempty"`
	Distance    *int   `json:"distance,omitempty"`
	Duration    *int64 `json:"duration,omitempty"`
}

// gestureArgs are the travel and hold arguments once omitted fields are filled.
type gestureArgs struct {
	direction schemas.Direction
	distance  int
	duration  time.Duration
}

func (r actionRequest) withDefaults(o automation.Options) gestureArgs {
	a := gestureArgs{
		direction: schemas.Direction(r.Direction),
		distance:  o.DefaultDistance,
		duration:  o.LongPressDuration,
	}
	if r.Direction == "" {
		a.direction = automation.DefaultDirection
	}
	if r.Distance != nil {
		a.distance = *r.Distance
	}
	if r.Duration != nil {
		a.duration = ms(*r.Duration)
	}
	return a
}

type finishRequest struct {
	Params map[string]interface{} `json:"params"`
}

type scriptRequest struct {
	Script string `json:"script"`
}

type stateResponse struct {
	State  string  `json:"state"`
	Cursor *cursor `json:"cursor,omitempty"`
}

type cursor struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Buttons int64   `json:"buttons"`
}

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

func (s *Server) lifecycleState() stateResponse {
	c := s.session.Cursor()
	return stateResponse{
		State:  string(s.session.State()),
		Cursor: &cursor{X: c.X, Y: c.Y, Buttons: c.Buttons},
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": string(s.session.State()),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.lifecycleState())
}

func (s *Server) handleStartEvaluation(w http.ResponseWriter, r *http.Request) {
	if err := s.session.StartEvaluation(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.lifecycleState())
}

func (s *Server) handleFinishEvaluation(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if err := decode(r, "finish-evaluation", &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.session.FinishEvaluation(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEvaluationResult(w http.ResponseWriter, r *http.Request) {
	res := s.session.GetEvaluationResult()
	if res == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "no evaluation has finished"})
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	entries := s.session.GetTrajectory()
	if entries == nil {
		entries = []schemas.TrajectoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearTrajectory(w http.ResponseWriter, r *http.Request) {
	s.session.ClearTrajectory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	var req actionRequest
	if err := decode(r, action, &req); err != nil {
		s.writeError(w, err)
		return
	}

	ctx := r.Context()
	args := req.withDefaults(s.session.Options())
	var (
		res schemas.CommandResult
		err error
	)
	switch schemas.GestureKind(action) {
	case schemas.GestureTap, "click":
		res, err = s.session.Click(ctx, req.X, req.Y, ms(req.Delay))
	case schemas.GestureType:
		res, err = s.session.Type(ctx, req.Text, ms(req.TypingDelay))
	case schemas.GestureScroll:
		res, err = s.session.Scroll(ctx, req.X, req.Y, args.direction, args.distance)
	case schemas.GestureLongPress:
		res, err = s.session.LongPress(ctx, req.X, req.Y, args.duration)
	case schemas.GestureDrag:
		res, err = s.session.Drag(ctx, req.X, req.Y, args.direction, args.distance)
	case schemas.GestureBack:
		res, err = s.session.Back(ctx)
	default:
		err = schemas.NewCommandError("action", "unknown action %q", action)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.GetState(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleElement looks up by ?selector= when present, otherwise by ?x=&y=.
func (s *Server) handleElement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if sel := q.Get("selector"); sel != "" {
		summary, err := s.session.GetElementInfoBySelector(r.Context(), sel)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, summary)
		return
	}

	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		s.writeError(w, schemas.NewCommandError("get-element-info", "x and y must be integers, or pass selector"))
		return
	}
	info, err := s.session.GetElementInfo(r.Context(), x, y)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleScreenshot serves raw PNG for format=png and JSON otherwise.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	format, err := automation.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if format == automation.FormatImage {
		format = automation.FormatPNG
	}
	out, err := s.session.TakeScreenshot(r.Context(), format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	switch v := out.(type) {
	case []byte:
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(v); err != nil {
			s.logger.Warn("Failed to write screenshot.", zap.Error(err))
		}
	case string:
		s.writeJSON(w, http.StatusOK, map[string]string{"format": string(automation.FormatBase64), "data": v})
	default:
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"data": v})
	}
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := decode(r, "execute-script", &req); err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.session.ExecuteScript(r.Context(), req.Script)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"result": out})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Close(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.lifecycleState())
}
