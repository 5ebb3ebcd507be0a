package automation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/browser/cdp"
	"github.com/xkilldash9x/scalewob/internal/browser/pw"
	"github.com/xkilldash9x/scalewob/internal/config"
	"github.com/xkilldash9x/scalewob/internal/gesture"
	"github.com/xkilldash9x/scalewob/internal/metrics"
	"github.com/xkilldash9x/scalewob/internal/readiness"
	"github.com/xkilldash9x/scalewob/internal/results"
)

const (
	DefaultBaseURL           = "https://niumascript.com/scalewob-env"
	DefaultTimeout           = 5 * time.Second
	DefaultStartReadyTimeout = 10 * time.Second
	DefaultEvaluationTimeout = 10 * time.Second

	DefaultClickDelay        = 100 * time.Millisecond
	DefaultTypingDelay       = 50 * time.Millisecond
	DefaultLongPressDuration = time.Second
	DefaultDistance          = 100
	DefaultDirection         = schemas.DirectionDown
)

// Options configure a Session. Zero values select the defaults.
type Options struct {
	EnvID string
	// TaskID selects the task schema and is sent to the evaluator. It
	// defaults to EnvID.
	TaskID  string
	BaseURL string

	Platform schemas.Platform
	Headless bool
	// ScreenshotQuality is "low" (scale 1) or "high" (scale 3, the default).
	ScreenshotQuality string

	Timeout           time.Duration
	StartReadyTimeout time.Duration
	EvaluationTimeout time.Duration

	SettleDelay  time.Duration
	PollInterval time.Duration

	// RecordFailures keeps failed interactions in the trajectory, tagged failed.
	RecordFailures bool

	// ClickDelay and TypingDelay replace a zero delay argument.
	ClickDelay  time.Duration
	TypingDelay time.Duration
	// LongPressDuration and DefaultDistance (screenshot pixels) are what the
	// CLI and HTTP surfaces send when a request omits them. The Session
	// methods themselves reject a zero duration or distance.
	LongPressDuration time.Duration
	DefaultDistance   int

	GestureSettle    time.Duration
	NavigationSettle time.Duration
}

func (o Options) withDefaults() Options {
	if o.TaskID == "" {
		o.TaskID = o.EnvID
	}
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Platform == "" {
		o.Platform = schemas.PlatformMobile
	}
	if o.ScreenshotQuality == "" {
		o.ScreenshotQuality = "high"
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.StartReadyTimeout <= 0 {
		o.StartReadyTimeout = DefaultStartReadyTimeout
	}
	if o.EvaluationTimeout <= 0 {
		o.EvaluationTimeout = DefaultEvaluationTimeout
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = readiness.DefaultSettleDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = readiness.DefaultPollInterval
	}
	if o.ClickDelay <= 0 {
		o.ClickDelay = DefaultClickDelay
	}
	if o.TypingDelay <= 0 {
		o.TypingDelay = DefaultTypingDelay
	}
	if o.LongPressDuration <= 0 {
		o.LongPressDuration = DefaultLongPressDuration
	}
	if o.DefaultDistance <= 0 {
		o.DefaultDistance = DefaultDistance
	}
	g := gesture.DefaultOptions()
	if o.GestureSettle <= 0 {
		o.GestureSettle = g.GestureSettle
	}
	if o.NavigationSettle <= 0 {
		o.NavigationSettle = g.NavigationSettle
	}
	return o
}

// TaskSource resolves task descriptors. *registry.Registry satisfies it.
type TaskSource interface {
	Lookup(ctx context.Context, id string) (*schemas.TaskDescriptor, error)
}

// Option wires a collaborator into a Session.
type Option func(*Session)

// WithLauncher replaces the default chromedp launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(s *Session) { s.launcher = l }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.metrics = c }
}

// WithSinks adds result sinks notified after every successful evaluation.
func WithSinks(sinks ...results.Sink) Option {
	return func(s *Session) { s.sinks = append(s.sinks, sinks...) }
}

// WithTaskSource looks the task schema up when the session starts, unless
// WithSchema supplied one.
func WithTaskSource(src TaskSource) Option {
	return func(s *Session) { s.tasks = src }
}

func WithSchema(schema *schemas.TaskSchema) Option {
	return func(s *Session) { s.schema = schema }
}

// WithClock drives readiness polling and trajectory timestamps.
func WithClock(c readiness.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// FromConfig builds a session from loaded configuration. The browser engine
// picks the launcher unless opts override it.
func FromConfig(cfg config.Interface, logger *zap.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := cfg.Session()
	rc := cfg.Readiness()
	bc := cfg.Browser()

	platform, err := schemas.ParsePlatform(sc.Platform)
	if err != nil {
		return nil, err
	}

	o := Options{
		EnvID:             sc.EnvID,
		TaskID:            sc.TaskID,
		BaseURL:           sc.BaseURL,
		Platform:          platform,
		Headless:          bc.Headless,
		ScreenshotQuality: sc.Quality,
		Timeout:           sc.Timeout,
		StartReadyTimeout: sc.StartReadyTimeout,
		EvaluationTimeout: sc.EvaluationTimeout,
		SettleDelay:       rc.SettleDelay,
		PollInterval:      rc.PollInterval,
		RecordFailures:    sc.RecordFailures,
		ClickDelay:        sc.ClickDelay,
		TypingDelay:       sc.TypingDelay,
		LongPressDuration: sc.LongPressDuration,
		DefaultDistance:   sc.ScrollDistance,
		GestureSettle:     sc.GestureSettle,
		NavigationSettle:  sc.NavigationSettle,
	}

	all := append([]Option{WithLogger(logger), WithLauncher(LauncherFor(bc, logger))}, opts...)
	return New(o, all...)
}

// LauncherFor returns the launcher of the configured engine.
func LauncherFor(cfg config.BrowserConfig, logger *zap.Logger) browser.Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.EqualFold(cfg.Engine, "playwright") {
		return pw.NewLauncher(cfg, logger)
	}
	return cdp.NewLauncher(cfg, logger)
}
