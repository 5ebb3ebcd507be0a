package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/config"
	"github.com/xkilldash9x/scalewob/internal/metrics"
	"github.com/xkilldash9x/scalewob/internal/observability"
	"github.com/xkilldash9x/scalewob/internal/readiness"
	"github.com/xkilldash9x/scalewob/internal/registry"
	"github.com/xkilldash9x/scalewob/internal/results"
	"github.com/xkilldash9x/scalewob/internal/store"
	"github.com/xkilldash9x/scalewob/pkg/automation"
)

// evaluationStore is the part of store.Store the commands use.
type evaluationStore interface {
	PersistEvaluation(ctx context.Context, rec *schemas.EvaluationRecord) error
	GetEvaluation(ctx context.Context, runID string) (*schemas.EvaluationRecord, error)
}

// storeProvider opens the results database. Tests swap it for a mock.
type storeProvider interface {
	Create(ctx context.Context, cfg config.Interface) (evaluationStore, func(), error)
}

type pgStoreProvider struct{}

func (pgStoreProvider) Create(ctx context.Context, cfg config.Interface) (evaluationStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (SCALEWOB_DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// deps are the seams the commands are built on.
type deps struct {
	launcher func(cfg config.BrowserConfig, logger *zap.Logger) browser.Launcher
	stores   storeProvider
	// clock overrides the readiness clock; nil uses the wall clock.
	clock readiness.Clock
}

func defaultDeps() *deps {
	return &deps{
		launcher: automation.LauncherFor,
		stores:   pgStoreProvider{},
	}
}

// sessionComponents is everything a session-driving command owns.
type sessionComponents struct {
	Session  *automation.Session
	Registry *registry.Registry
	Metrics  *prometheus.Registry
	Store    evaluationStore

	closers []func()
}

// Shutdown closes the session first so its last record still reaches the
// sinks, then the sinks and caches.
func (c *sessionComponents) Shutdown() {
	logger := observability.GetLogger()
	if c.Session != nil {
		if err := c.Session.Close(); err != nil {
			logger.Warn("Error while closing session", zap.Error(err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// initializeSession wires a session from cfg: metrics, the task registry as
// schema source, and the result sinks that are configured.
func initializeSession(ctx context.Context, d *deps, cfg config.Interface, logger *zap.Logger) (*sessionComponents, error) {
	c := &sessionComponents{}
	var opts []automation.Option

	// 1. Metrics
	var collector *metrics.Collector
	if cfg.Metrics().Enabled {
		c.Metrics = prometheus.NewRegistry()
		c.Metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.NewCollector(c.Metrics, cfg.Metrics().Namespace, logger)
		opts = append(opts, automation.WithMetrics(collector))
	}

	// 2. Task registry
	if cfg.Registry().URL != "" {
		reg, err := registry.New(cfg.Registry(), registry.WithLogger(logger), registry.WithMetrics(collector))
		if err != nil {
			return c, fmt.Errorf("failed to build task registry: %w", err)
		}
		c.Registry = reg
		c.closers = append(c.closers, func() { _ = reg.Close() })
		opts = append(opts, automation.WithTaskSource(reg))
	}

	// 3. Result sinks
	var sinks []results.Sink
	if cfg.Database().URL != "" {
		st, closeStore, err := d.stores.Create(ctx, cfg)
		if err != nil {
			return c, fmt.Errorf("failed to open results store: %w", err)
		}
		c.Store = st
		if closeStore != nil {
			c.closers = append(c.closers, closeStore)
		}
		sinks = append(sinks, results.NewStoreSink(st))
	}
	if cfg.NATS().URL != "" {
		ns, err := results.NewNATSSink(cfg.NATS(), logger)
		if err != nil {
			return c, fmt.Errorf("failed to connect result publisher: %w", err)
		}
		c.closers = append(c.closers, func() { _ = ns.Close() })
		sinks = append(sinks, ns)
	}
	if len(sinks) > 0 {
		opts = append(opts, automation.WithSinks(sinks...))
	}

	// 4. Session
	opts = append(opts, automation.WithLauncher(d.launcher(cfg.Browser(), logger)))
	if d.clock != nil {
		opts = append(opts, automation.WithClock(d.clock))
	}
	s, err := automation.FromConfig(cfg, logger, opts...)
	if err != nil {
		return c, err
	}
	c.Session = s
	return c, nil
}
