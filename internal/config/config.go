// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Session() SessionConfig
	Readiness() ReadinessConfig
	Registry() RegistryConfig
	Database() DatabaseConfig
	NATS() NATSConfig
	Metrics() MetricsConfig
	Server() ServerConfig

	SetBrowserHeadless(bool)
	SetBrowserEngine(string)
	SetSessionEnvID(string)
	SetSessionPlatform(string)
	SetSessionQuality(string)
	SetSessionRecordFailures(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	SessionCfg   SessionConfig   `mapstructure:"session" yaml:"session"`
	ReadinessCfg ReadinessConfig `mapstructure:"readiness" yaml:"readiness"`
	RegistryCfg  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	NATSCfg      NATSConfig      `mapstructure:"nats" yaml:"nats"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Session() SessionConfig     { return c.SessionCfg }
func (c *Config) Readiness() ReadinessConfig { return c.ReadinessCfg }
func (c *Config) Registry() RegistryConfig   { return c.RegistryCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) NATS() NATSConfig           { return c.NATSCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)       { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserEngine(e string)       { c.BrowserCfg.Engine = e }
func (c *Config) SetSessionEnvID(id string)       { c.SessionCfg.EnvID = id }
func (c *Config) SetSessionPlatform(p string)     { c.SessionCfg.Platform = p }
func (c *Config) SetSessionQuality(q string)      { c.SessionCfg.Quality = q }
func (c *Config) SetSessionRecordFailures(b bool) { c.SessionCfg.RecordFailures = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the colors for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and tunes the driver backend.
type BrowserConfig struct {
	// Engine is "chromedp" or "playwright".
	Engine   string   `mapstructure:"engine" yaml:"engine"`
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	Debug    bool     `mapstructure:"debug" yaml:"debug"`
	ExecPath string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args     []string `mapstructure:"args" yaml:"args"`
}

// SessionConfig holds the per-session defaults of the interaction surface.
type SessionConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	EnvID             string        `mapstructure:"env_id" yaml:"env_id"`
	TaskID            string        `mapstructure:"task_id" yaml:"task_id"`
	Platform          string        `mapstructure:"platform" yaml:"platform"`
	Quality           string        `mapstructure:"quality" yaml:"quality"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StartReadyTimeout time.Duration `mapstructure:"start_ready_timeout" yaml:"start_ready_timeout"`
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout" yaml:"evaluation_timeout"`
	RecordFailures    bool          `mapstructure:"record_failures" yaml:"record_failures"`
	ClickDelay        time.Duration `mapstructure:"click_delay" yaml:"click_delay"`
	TypingDelay       time.Duration `mapstructure:"typing_delay" yaml:"typing_delay"`
	LongPressDuration time.Duration `mapstructure:"long_press_duration" yaml:"long_press_duration"`
	ScrollDistance    int           `mapstructure:"scroll_distance" yaml:"scroll_distance"`
	GestureSettle     time.Duration `mapstructure:"gesture_settle" yaml:"gesture_settle"`
	NavigationSettle  time.Duration `mapstructure:"navigation_settle" yaml:"navigation_settle"`
}

// ReadinessConfig tunes the readiness waiter's bounded polling.
type ReadinessConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// RegistryConfig configures the task registry read-through cache.
type RegistryConfig struct {
	URL       string        `mapstructure:"url" yaml:"url"`
	CacheDir  string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int           `mapstructure:"burst" yaml:"burst"`
	Redis     RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig enables the shared cache tier.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"-"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// DatabaseConfig holds the Postgres connection string for result persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NATSConfig configures the evaluation result publisher.
type NATSConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
	Name    string `mapstructure:"name" yaml:"name"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalewob")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.engine", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.debug", false)

	// -- Session --
	v.SetDefault("session.base_url", "https://niumascript.com/scalewob-env")
	v.SetDefault("session.platform", "mobile")
	v.SetDefault("session.quality", "low")
	v.SetDefault("session.timeout", "5s")
	v.SetDefault("session.start_ready_timeout", "10s")
	v.SetDefault("session.evaluation_timeout", "10s")
	v.SetDefault("session.record_failures", false)
	v.SetDefault("session.click_delay", "100ms")
	v.SetDefault("session.typing_delay", "50ms")
	v.SetDefault("session.long_press_duration", "1s")
	v.SetDefault("session.scroll_distance", 100)
	v.SetDefault("session.gesture_settle", "100ms")
	v.SetDefault("session.navigation_settle", "500ms")

	// -- Readiness --
	v.SetDefault("readiness.poll_interval", "100ms")
	v.SetDefault("readiness.settle_delay", "500ms")

	// -- Registry --
	v.SetDefault("registry.url", "https://niumascript.com/scalewob-env/tasks.json")
	v.SetDefault("registry.cache_dir", "~/.scalewob/cache")
	v.SetDefault("registry.ttl", "1h")
	v.SetDefault("registry.timeout", "15s")
	v.SetDefault("registry.rate_limit", 2.0)
	v.SetDefault("registry.burst", 1)
	v.SetDefault("registry.redis.enabled", false)
	v.SetDefault("registry.redis.addr", "localhost:6379")
	v.SetDefault("registry.redis.db", 0)
	v.SetDefault("registry.redis.prefix", "scalewob:registry:")

	// -- NATS --
	v.SetDefault("nats.subject", "scalewob.evaluations")
	v.SetDefault("nats.name", "scalewob")

	// -- Metrics --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "scalewob")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets come from the environment, never from the config file.
	_ = v.BindEnv("database.url", "SCALEWOB_DATABASE_URL")
	_ = v.BindEnv("registry.redis.password", "SCALEWOB_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.RegistryCfg.Redis.Enabled && cfg.RegistryCfg.Redis.Password == "" {
		cfg.RegistryCfg.Redis.Password = os.Getenv("SCALEWOB_REDIS_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Engine {
	case "chromedp", "playwright":
	default:
		return fmt.Errorf("browser.engine must be 'chromedp' or 'playwright', got %q", c.BrowserCfg.Engine)
	}
	if err := c.SessionCfg.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if err := c.ReadinessCfg.Validate(); err != nil {
		return fmt.Errorf("readiness configuration invalid: %w", err)
	}
	if err := c.RegistryCfg.Validate(); err != nil {
		return fmt.Errorf("registry configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the session defaults.
func (s *SessionConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	switch s.Platform {
	case "mobile", "desktop":
	default:
		return fmt.Errorf("platform must be 'mobile' or 'desktop', got %q", s.Platform)
	}
	switch s.Quality {
	case "low", "high":
	default:
		return fmt.Errorf("quality must be 'low' or 'high', got %q", s.Quality)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if s.StartReadyTimeout <= 0 || s.EvaluationTimeout <= 0 {
		return fmt.Errorf("start_ready_timeout and evaluation_timeout must be positive durations")
	}
	if s.ClickDelay < 0 || s.TypingDelay < 0 || s.GestureSettle < 0 || s.NavigationSettle < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if s.LongPressDuration <= 0 {
		return fmt.Errorf("long_press_duration must be a positive duration")
	}
	if s.ScrollDistance <= 0 {
		return fmt.Errorf("scroll_distance must be a positive integer")
	}
	return nil
}

// Validate checks the readiness tuning.
func (r *ReadinessConfig) Validate() error {
	if r.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if r.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	return nil
}

// Validate checks the registry settings.
func (r *RegistryConfig) Validate() error {
	if r.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	if r.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if r.Burst <= 0 {
		return fmt.Errorf("burst must be a positive integer")
	}
	if r.Redis.Enabled && r.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}
