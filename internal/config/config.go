// Package config provides configuration management for restreamarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultReadTimeout     = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultStaleAfter      = 30 * time.Second
	defaultKeepAliveEvery  = 5 * time.Second
	defaultMaxAuthRetries  = 3
	defaultProbeTimeout    = 15 * time.Second
	defaultDetectNavTime   = 30 * time.Second
	defaultDetectTotalTime = 45 * time.Second
	defaultDetectPerMinute = 6
	defaultUpdateInterval  = time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Stream   StreamConfig   `mapstructure:"stream"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Detect   DetectConfig   `mapstructure:"detect"`
	Updater  UpdaterConfig  `mapstructure:"updater"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must stay 0: live stream responses are open-ended and a
	// server-level write deadline would sever them mid-play.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StreamConfig holds stream session lifecycle configuration.
type StreamConfig struct {
	// StaleAfter is how long a session may go without activity before the
	// sweeper evicts it.
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// KeepAliveEvery is the interval between activity touches while a
	// session is relaying bytes.
	KeepAliveEvery time.Duration `mapstructure:"keep_alive_every"`
	// MaxAuthRetries is the credential refresh budget for upstream 401/403
	// responses.
	MaxAuthRetries int `mapstructure:"max_auth_retries"`
	// ProbeTimeout bounds a single upstream validation request.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// FFmpegConfig holds transcoder binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = look up in PATH)
}

// DetectConfig holds stream auto-detection configuration.
type DetectConfig struct {
	// NavTimeout bounds fetching the companion page itself.
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
	// TotalTimeout is the hard ceiling for a whole detection attempt.
	TotalTimeout time.Duration `mapstructure:"total_timeout"`
	// RatePerMinute limits how many detections may start per minute.
	RatePerMinute int `mapstructure:"rate_per_minute"`
}

// UpdaterConfig holds auto-update scheduler configuration.
type UpdaterConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with RESTREAMARR_ and use underscores
// for nesting. Example: RESTREAMARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/restreamarr")
		v.AddConfigPath("$HOME/.restreamarr")
	}

	v.SetEnvPrefix("RESTREAMARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "restreamarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Stream defaults
	v.SetDefault("stream.stale_after", defaultStaleAfter)
	v.SetDefault("stream.keep_alive_every", defaultKeepAliveEvery)
	v.SetDefault("stream.max_auth_retries", defaultMaxAuthRetries)
	v.SetDefault("stream.probe_timeout", defaultProbeTimeout)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")

	// Detect defaults
	v.SetDefault("detect.nav_timeout", defaultDetectNavTime)
	v.SetDefault("detect.total_timeout", defaultDetectTotalTime)
	v.SetDefault("detect.rate_per_minute", defaultDetectPerMinute)

	// Updater defaults
	v.SetDefault("updater.enabled", true)
	v.SetDefault("updater.check_interval", defaultUpdateInterval)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Stream.StaleAfter <= 0 {
		return fmt.Errorf("stream.stale_after must be positive")
	}
	if c.Stream.KeepAliveEvery <= 0 {
		return fmt.Errorf("stream.keep_alive_every must be positive")
	}
	if c.Stream.KeepAliveEvery >= c.Stream.StaleAfter {
		return fmt.Errorf("stream.keep_alive_every must be shorter than stream.stale_after")
	}
	if c.Stream.MaxAuthRetries < 0 {
		return fmt.Errorf("stream.max_auth_retries must not be negative")
	}

	if c.Detect.TotalTimeout < c.Detect.NavTimeout {
		return fmt.Errorf("detect.total_timeout must not be shorter than detect.nav_timeout")
	}

	if c.Updater.CheckInterval < time.Second {
		return fmt.Errorf("updater.check_interval must be at least 1s")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
