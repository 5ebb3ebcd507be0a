// Package server exposes a single Session over HTTP so agents that are not
// written in Go can drive it.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/config"
	"github.com/xkilldash9x/scalewob/internal/gesture"
	"github.com/xkilldash9x/scalewob/internal/lifecycle"
	"github.com/xkilldash9x/scalewob/pkg/automation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is the part of *automation.Session the server drives.
type Session interface {
	Start(ctx context.Context) error
	StartEvaluation(ctx context.Context) error
	FinishEvaluation(ctx context.Context, params map[string]interface{}) (*schemas.EvaluationResult, error)
	GetEvaluationResult() *schemas.EvaluationResult
	GetTrajectory() []schemas.TrajectoryEntry
	ClearTrajectory()

	Click(ctx context.Context, x, y int, delay time.Duration) (schemas.CommandResult, error)
	Type(ctx context.Context, text string, typingDelay time.Duration) (schemas.CommandResult, error)
	Scroll(ctx context.Context, x, y int, direction schemas.Direction, distance int) (schemas.CommandResult, error)
	LongPress(ctx context.Context, x, y int, duration time.Duration) (schemas.CommandResult, error)
	Drag(ctx context.Context, x, y int, direction schemas.Direction, distance int) (schemas.CommandResult, error)
	Back(ctx context.Context) (schemas.CommandResult, error)

	GetState(ctx context.Context) (*schemas.PageState, error)
	GetElementInfo(ctx context.Context, x, y int) (*schemas.ElementInfo, error)
	GetElementInfoBySelector(ctx context.Context, selector string) (*schemas.ElementSummary, error)
	TakeScreenshot(ctx context.Context, format automation.Format) (interface{}, error)
	ExecuteScript(ctx context.Context, script string) (interface{}, error)

	Options() automation.Options
	State() lifecycle.State
	Cursor() gesture.Cursor
	Close() error
}

var _ Session = (*automation.Session)(nil)

// Server routes HTTP requests to one Session.
type Server struct {
	session  Session
	cfg      config.ServerConfig
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *mux.Router

	mu       sync.Mutex
	listener net.Listener
}

// New builds the router. A nil gatherer serves the default registry.
func New(session Session, cfg config.ServerConfig, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		session:  session,
		cfg:      cfg,
		gatherer: gatherer,
		logger:   logger.Named("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	sr := r.PathPrefix("/session").Subrouter()
	sr.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	sr.HandleFunc("/evaluation/start", s.handleStartEvaluation).Methods(http.MethodPost)
	sr.HandleFunc("/evaluation/finish", s.handleFinishEvaluation).Methods(http.MethodPost)
	sr.HandleFunc("/evaluation", s.handleEvaluationResult).Methods(http.MethodGet)
	sr.HandleFunc("/trajectory", s.handleTrajectory).Methods(http.MethodGet)
	sr.HandleFunc("/trajectory", s.handleClearTrajectory).Methods(http.MethodDelete)
	sr.HandleFunc("/actions/{action}", s.handleAction).Methods(http.MethodPost)
	sr.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	sr.HandleFunc("/element", s.handleElement).Methods(http.MethodGet)
	sr.HandleFunc("/screenshot", s.handleScreenshot).Methods(http.MethodGet)
	sr.HandleFunc("/script", s.handleScript).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handleClose).Methods(http.MethodDelete)
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control surface listening.", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("Shutting down control surface.")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr is the bound address once Serve has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request served.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch schemas.KindOf(err) {
	case schemas.KindCommand:
		return http.StatusBadRequest
	case schemas.KindEvaluation:
		return http.StatusConflict
	case schemas.KindTimeout:
		return http.StatusGatewayTimeout
	case schemas.KindBrowser, schemas.KindNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout && status != http.StatusBadGateway {
		s.logger.Error("Request failed.", zap.Error(err))
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Kind: string(schemas.KindOf(err))})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response.", zap.Error(err))
	}
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, op string, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return schemas.NewCommandError(op, "malformed request body").WithCause(err)
	}
	return nil
}
