package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// A named config file that does not exist is an error; defaults-only
	// loading goes through the search path.
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Stream.StaleAfter)
	assert.Equal(t, 5*time.Second, cfg.Stream.KeepAliveEvery)
	assert.Equal(t, 3, cfg.Stream.MaxAuthRetries)
	assert.Equal(t, 45*time.Second, cfg.Detect.TotalTimeout)
	assert.True(t, cfg.Updater.Enabled)
	assert.Equal(t, time.Minute, cfg.Updater.CheckInterval)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
stream:
  stale_after: 60s
  keep_alive_every: 10s
updater:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Stream.StaleAfter)
	assert.Equal(t, 10*time.Second, cfg.Stream.KeepAliveEvery)
	assert.False(t, cfg.Updater.Enabled)
	// Untouched sections keep their defaults.
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESTREAMARR_SERVER_PORT", "7070")
	t.Setenv("RESTREAMARR_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Stream.KeepAliveEvery = cfg.Stream.StaleAfter
	assert.Error(t, cfg.Validate(), "keep-alive ticks must outpace the staleness window")

	cfg = base()
	cfg.Detect.TotalTimeout = cfg.Detect.NavTimeout - time.Second
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, base().Validate())
}

func TestAddress(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
}
