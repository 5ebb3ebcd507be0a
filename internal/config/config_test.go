// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "scalewob", cfg.Logger().ServiceName)
	assert.Equal(t, "chromedp", cfg.Browser().Engine)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, "https://niumascript.com/scalewob-env", cfg.Session().BaseURL)
	assert.Equal(t, "mobile", cfg.Session().Platform)
	assert.Equal(t, 5*time.Second, cfg.Session().Timeout)
	assert.Equal(t, 10*time.Second, cfg.Session().EvaluationTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Session().TypingDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Session().ClickDelay)
	assert.Equal(t, time.Second, cfg.Session().LongPressDuration)
	assert.Equal(t, 100, cfg.Session().ScrollDistance)
	assert.False(t, cfg.Session().RecordFailures)
	assert.Equal(t, 100*time.Millisecond, cfg.Readiness().PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Readiness().SettleDelay)
	assert.Equal(t, "scalewob.evaluations", cfg.NATS().Subject)
	assert.False(t, cfg.Registry().Redis.Enabled)
	assert.Equal(t, ":8080", cfg.Server().Addr)

	require.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		badEngine := *cfg
		badEngine.BrowserCfg.Engine = "selenium"
		err := badEngine.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.engine must be 'chromedp' or 'playwright'")
	})

	t.Run("Session Validation", func(t *testing.T) {
		valid := NewDefaultConfig().SessionCfg
		assert.NoError(t, valid.Validate())

		badPlatform := valid
		badPlatform.Platform = "tablet"
		assert.ErrorContains(t, badPlatform.Validate(), "platform must be 'mobile' or 'desktop'")

		badQuality := valid
		badQuality.Quality = "ultra"
		assert.ErrorContains(t, badQuality.Validate(), "quality must be 'low' or 'high'")

		badTimeout := valid
		badTimeout.Timeout = 0
		assert.ErrorContains(t, badTimeout.Validate(), "timeout must be a positive duration")

		badDelay := valid
		badDelay.TypingDelay = -time.Millisecond
		assert.ErrorContains(t, badDelay.Validate(), "delays must not be negative")

		badDistance := valid
		badDistance.ScrollDistance = 0
		assert.ErrorContains(t, badDistance.Validate(), "scroll_distance must be a positive integer")
	})

	t.Run("Readiness Validation", func(t *testing.T) {
		r := ReadinessConfig{PollInterval: 0, SettleDelay: time.Second}
		assert.ErrorContains(t, r.Validate(), "poll_interval must be a positive duration")
	})

	t.Run("Registry Validation", func(t *testing.T) {
		r := NewDefaultConfig().RegistryCfg
		assert.NoError(t, r.Validate())

		noAddr := r
		noAddr.Redis.Enabled = true
		noAddr.Redis.Addr = ""
		assert.ErrorContains(t, noAddr.Validate(), "redis.addr is required")

		noRate := r
		noRate.RateLimit = 0
		assert.ErrorContains(t, noRate.Validate(), "rate_limit must be positive")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
session:
  env_id: "booking-001"
  platform: desktop
  quality: high
  timeout: 2s
readiness:
  settle_delay: 250ms
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "booking-001", cfg.Session().EnvID)
		assert.Equal(t, "desktop", cfg.Session().Platform)
		assert.Equal(t, "high", cfg.Session().Quality)
		assert.Equal(t, 2*time.Second, cfg.Session().Timeout)
		assert.Equal(t, 250*time.Millisecond, cfg.Readiness().SettleDelay)
		// Defaults survive partial files.
		assert.Equal(t, 100*time.Millisecond, cfg.Readiness().PollInterval)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("session.platform", "watch")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "platform must be 'mobile' or 'desktop'")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("registry.redis.enabled", true)

		yamlConfig := []byte(`
database:
  url: "postgres://configfile/db"
`)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		t.Setenv("SCALEWOB_DATABASE_URL", "postgres://envvar/db")
		t.Setenv("SCALEWOB_REDIS_PASSWORD", "hunter2")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "postgres://envvar/db", cfg.Database().URL)
		assert.Equal(t, "hunter2", cfg.Registry().Redis.Password)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(false)
	iface.SetBrowserEngine("playwright")
	iface.SetSessionEnvID("env-42")
	iface.SetSessionPlatform("desktop")
	iface.SetSessionQuality("high")
	iface.SetSessionRecordFailures(true)

	assert.False(t, iface.Browser().Headless)
	assert.Equal(t, "playwright", iface.Browser().Engine)
	assert.Equal(t, "env-42", iface.Session().EnvID)
	assert.Equal(t, "desktop", iface.Session().Platform)
	assert.Equal(t, "high", iface.Session().Quality)
	assert.True(t, iface.Session().RecordFailures)
}
