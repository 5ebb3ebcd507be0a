// Package registry reads the remote task registry through a tiered cache:
// process memory, a JSON file per registry URL, an optional shared redis
// and finally the network.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/config"
	"github.com/xkilldash9x/scalewob/internal/metrics"
	"github.com/xkilldash9x/scalewob/internal/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sources reported to metrics and logs.
const (
	SourceMemory = "memory"
	SourceFile   = "file"
	SourceRedis  = "redis"
	SourceRemote = "remote"
)

// maxRegistrySize bounds how much of a registry response is read.
const maxRegistrySize = 16 << 20

// Filter selects tasks. Zero fields match everything.
type Filter struct {
	// Difficulty matches case-insensitively with surrounding space ignored, so
	// "expert" and " Expert" both select tasks labelled "Expert".
	Difficulty string
	Platform   schemas.Platform
	// Tags must each match at least one task tag. Glob patterns are allowed.
	Tags []string
	// ForceRefresh bypasses every cache tier.
	ForceRefresh bool
}

type Option func(*Registry)

// WithHTTPClient replaces the compression-aware default client.
func WithHTTPClient(c *http.Client) Option { return func(r *Registry) { r.client = c } }

// WithRedis sets the shared cache tier, overriding the configured one.
func WithRedis(c *redis.Client) Option {
	return func(r *Registry) { r.redis, r.ownsRedis = c, false }
}

func WithMetrics(m *metrics.Collector) Option { return func(r *Registry) { r.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithClock sets the time source used for cache freshness.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

type snapshot struct {
	tasks   []schemas.TaskDescriptor
	fetched time.Time
}

// Registry is safe for concurrent use.
type Registry struct {
	url     string
	ttl     time.Duration
	timeout time.Duration

	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group

	mu  sync.Mutex
	mem *snapshot

	files       *fileCache
	redis       *redis.Client
	ownsRedis   bool
	redisPrefix string

	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a registry from cfg. The redis tier is connected lazily by the
// client; a down redis only costs a logged warning per read.
func New(cfg config.RegistryConfig, opts ...Option) (*Registry, error) {
	if cfg.URL == "" {
		return nil, schemas.NewNetworkError("registry", "registry url is empty")
	}
	r := &Registry{
		url:         cfg.URL,
		ttl:         cfg.TTL,
		timeout:     cfg.Timeout,
		redisPrefix: cfg.Redis.Prefix,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	if r.timeout <= 0 {
		r.timeout = network.DefaultRequestTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(limit, burst)

	if cfg.Redis.Enabled {
		r.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r.ownsRedis = true
	}

	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry")

	if r.client == nil {
		r.client = network.NewClient(network.ClientConfig{
			RequestTimeout: r.timeout,
			UserAgent:      "scalewob-registry",
			Logger:         r.logger,
		})
	}

	if cfg.CacheDir != "" {
		dir, err := homedir.Expand(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("expanding registry cache dir %q: %w", cfg.CacheDir, err)
		}
		r.files = &fileCache{dir: dir, logger: r.logger}
	}
	return r, nil
}

// Close releases idle connections and an owned redis client.
func (r *Registry) Close() error {
	r.client.CloseIdleConnections()
	if r.redis != nil && r.ownsRedis {
		return r.redis.Close()
	}
	return nil
}

// List returns the tasks that pass f.
func (r *Registry) List(ctx context.Context, f Filter) ([]schemas.TaskDescriptor, error) {
	m, err := newMatcher(f)
	if err != nil {
		return nil, err
	}
	tasks, err := r.tasks(ctx, f.ForceRefresh)
	if err != nil {
		return nil, err
	}
	out := make([]schemas.TaskDescriptor, 0, len(tasks))
	for _, t := range tasks {
		if m.match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// FetchEnvironments is List with the filter spelled out.
func (r *Registry) FetchEnvironments(ctx context.Context, difficulty string, platform schemas.Platform, tags []string, force bool) ([]schemas.TaskDescriptor, error) {
	return r.List(ctx, Filter{Difficulty: difficulty, Platform: platform, Tags: tags, ForceRefresh: force})
}

// Lookup finds a task by its ID or its environment ID.
func (r *Registry) Lookup(ctx context.Context, id string) (*schemas.TaskDescriptor, error) {
	tasks, err := r.tasks(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i], nil
		}
	}
	for i := range tasks {
		if tasks[i].EnvID == id {
			return &tasks[i], nil
		}
	}
	return nil, schemas.NewCommandError("registry-lookup", "task %q not found in registry", id)
}

func (r *Registry) fresh(fetched time.Time) bool {
	return r.ttl > 0 && r.now().Sub(fetched) < r.ttl
}

func (r *Registry) tasks(ctx context.Context, force bool) ([]schemas.TaskDescriptor, error) {
	if !force {
		if tasks, source, ok := r.cached(ctx); ok {
			r.metrics.RecordRegistryFetch(source)
			r.logger.Debug("Registry served from cache.", zap.String("source", source), zap.Int("tasks", len(tasks)))
			return tasks, nil
		}
	}

	ch := r.group.DoChan(r.url, func() (interface{}, error) {
		return r.fetch(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, schemas.NewTimeoutError("registry-fetch", 0, "waiting for registry").WithCause(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		r.metrics.RecordRegistryFetch(SourceRemote)
		return cloneTasks(res.Val.([]schemas.TaskDescriptor)), nil
	}
}

// cached walks the tiers in order and promotes a hit into the faster ones.
func (r *Registry) cached(ctx context.Context) ([]schemas.TaskDescriptor, string, bool) {
	r.mu.Lock()
	mem := r.mem
	r.mu.Unlock()
	if mem != nil && r.fresh(mem.fetched) {
		return cloneTasks(mem.tasks), SourceMemory, true
	}

	if r.files != nil {
		if rec, ok := r.files.load(r.url); ok && r.fresh(rec.FetchedAt) {
			r.remember(rec.Tasks, rec.FetchedAt)
			return cloneTasks(rec.Tasks), SourceFile, true
		}
	}

	if r.redis != nil {
		if rec, ok := r.loadRedis(ctx); ok && r.fresh(rec.FetchedAt) {
			r.remember(rec.Tasks, rec.FetchedAt)
			if r.files != nil {
				r.files.save(rec)
			}
			return cloneTasks(rec.Tasks), SourceRedis, true
		}
	}
	return nil, "", false
}

func (r *Registry) remember(tasks []schemas.TaskDescriptor, fetched time.Time) {
	r.mu.Lock()
	r.mem = &snapshot{tasks: cloneTasks(tasks), fetched: fetched}
	r.mu.Unlock()
}

// fetch runs once per burst of concurrent callers. It is detached from the
// caller that started it so one canceled caller does not fail the others.
func (r *Registry) fetch(ctx context.Context) ([]schemas.TaskDescriptor, error) {
	const op = "registry-fetch"
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	start := r.now()

	if err := r.limiter.Wait(fctx); err != nil {
		return nil, schemas.NewTimeoutError(op, r.now().Sub(start), "rate limited").WithCause(err)
	}

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, schemas.NewNetworkError(op, "building request for %s", r.url).WithCause(err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9")

	r.logger.Info("Fetching task registry.", zap.String("url", r.url))
	resp, err := r.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, schemas.NewTimeoutError(op, r.now().Sub(start), "fetching %s", r.url).WithCause(err)
		}
		return nil, schemas.NewNetworkError(op, "fetching %s", r.url).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, schemas.NewNetworkError(op, "registry %s answered %s", r.url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegistrySize))
	if err != nil {
		if isTimeout(err) {
			return nil, schemas.NewTimeoutError(op, r.now().Sub(start), "reading %s", r.url).WithCause(err)
		}
		return nil, schemas.NewNetworkError(op, "reading %s", r.url).WithCause(err)
	}

	tasks, err := Decode(body, resp.Header.Get("Content-Type"), r.url)
	if err != nil {
		return nil, schemas.NewNetworkError(op, "parsing registry %s", r.url).WithCause(err)
	}
	tasks = normalize(tasks, r.logger)

	fetched := r.now()
	r.remember(tasks, fetched)
	rec := cacheRecord{URL: r.url, FetchedAt: fetched, Tasks: tasks}
	if r.files != nil {
		r.files.save(rec)
	}
	if r.redis != nil {
		r.saveRedis(fctx, rec)
	}
	r.logger.Info("Task registry fetched.", zap.Int("tasks", len(tasks)), zap.Duration("elapsed", r.now().Sub(start)))
	return tasks, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// normalize fills a missing ID or environment ID from the other and drops
// entries with neither.
func normalize(tasks []schemas.TaskDescriptor, logger *zap.Logger) []schemas.TaskDescriptor {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = t.EnvID
		}
		if t.EnvID == "" {
			t.EnvID = t.ID
		}
		if t.ID == "" {
			logger.Warn("Skipping registry entry without an id.", zap.String("name", t.Name))
			continue
		}
		t.Platform = schemas.Platform(strings.ToLower(string(t.Platform)))
		out = append(out, t)
	}
	return out
}

func cloneTasks(in []schemas.TaskDescriptor) []schemas.TaskDescriptor {
	out := make([]schemas.TaskDescriptor, len(in))
	for i, t := range in {
		t.Tags = append([]string(nil), t.Tags...)
		if t.Schema != nil {
			s := *t.Schema
			t.Schema = &s
		}
		out[i] = t
	}
	return out
}

type matcher struct {
	f    Filter
	tags []glob.Glob
}

func newMatcher(f Filter) (*matcher, error) {
	m := &matcher{f: f}
	for _, pattern := range f.Tags {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, schemas.NewCommandError("registry-filter", "invalid tag pattern %q", pattern).WithCause(err)
		}
		m.tags = append(m.tags, g)
	}
	return m, nil
}

// match treats a task without a platform as available on both.
func (m *matcher) match(t schemas.TaskDescriptor) bool {
	if m.f.Difficulty != "" && !t.MatchesDifficulty(m.f.Difficulty) {
		return false
	}
	if m.f.Platform != "" && t.Platform != "" && !strings.EqualFold(string(t.Platform), string(m.f.Platform)) {
		return false
	}
	for _, g := range m.tags {
		hit := false
		for _, tag := range t.Tags {
			if g.Match(strings.ToLower(tag)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
