// File: internal/config/config_test.go
package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "0.0.0.0:8130", cfg.Server().Addr())
	assert.False(t, cfg.Server().RequireAuth)
	assert.Equal(t, 2, cfg.Limits().MaxConcurrency)
	assert.Equal(t, 2*time.Second, cfg.Limits().QueueTimeout)
	assert.Equal(t, 10.0, cfg.Limits().RateLimitRate)
	assert.Equal(t, 20, cfg.Limits().RateLimitBurst)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 200000, cfg.Browser().DOMMaxChars)
	assert.Equal(t, 256, cfg.Events().BufferDepth)
	assert.Equal(t, 45*time.Second, cfg.Events().HeartbeatInterval)
	assert.Equal(t, "frames", cfg.Frames().Dir)
	assert.Equal(t, 15*time.Minute, cfg.Frames().TTL)
	assert.Equal(t, "info", cfg.Logger().Level)
}

func TestConfigValidation(t *testing.T) {
	t.Run("Admission Limits", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		invalidConcurrency := *cfg
		invalidConcurrency.LimitsCfg.MaxConcurrency = 0
		err := invalidConcurrency.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "limits.max_concurrency")

		invalidRate := *cfg
		invalidRate.LimitsCfg.RateLimitRate = -1
		err = invalidRate.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "limits.rate_limit_rate")

		invalidBurst := *cfg
		invalidBurst.LimitsCfg.RateLimitBurst = 0
		err = invalidBurst.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "limits.rate_limit_burst")
	})

	t.Run("Auth Requires Key", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ServerCfg.RequireAuth = true
		cfg.ServerCfg.APIKey = ""
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server.api_key")

		cfg.ServerCfg.APIKey = "secret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Events And Frames", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.EventsCfg.BufferDepth = 0
		assert.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.EventsCfg.HeartbeatInterval = 0
		assert.Error(t, cfg.Validate())

		cfg = NewDefaultConfig()
		cfg.FramesCfg.Dir = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigFromYAML(t *testing.T) {
	yaml := `
server:
  port: 9001
  require_auth: true
  api_key: "topsecret"
limits:
  max_concurrency: 4
  queue_timeout: 500ms
events:
  heartbeat_interval: 3s
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yaml)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server().Port)
	assert.True(t, cfg.Server().RequireAuth)
	assert.Equal(t, "topsecret", cfg.Server().APIKey)
	assert.Equal(t, 4, cfg.Limits().MaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Limits().QueueTimeout)
	assert.Equal(t, 3*time.Second, cfg.Events().HeartbeatInterval)
	// Untouched sections keep their defaults.
	assert.Equal(t, 20, cfg.Limits().RateLimitBurst)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCRAPE_SERVER_PORT", "7777")
	t.Setenv("SCRAPE_LIMITS_MAX_CONCURRENCY", "8")
	t.Setenv("SCRAPE_API_KEY", "env-key")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("SCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server().Port)
	assert.Equal(t, 8, cfg.Limits().MaxConcurrency)
	assert.Equal(t, "env-key", cfg.Server().APIKey)
}

func TestExpandPaths(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("frames.dir", "~/scrape-frames")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(cfg.Frames().Dir, "~"))
	assert.True(t, strings.HasSuffix(cfg.Frames().Dir, "scrape-frames"))
}
