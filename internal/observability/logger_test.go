package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/restreamarr/restreamarr/internal/config"
)

func newBufferLogger(cfg config.LoggingConfig) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLoggerWithWriter(cfg, &buf), &buf
}

func TestLoggerRedactsCredentials(t *testing.T) {
	logger, buf := newBufferLogger(config.LoggingConfig{Level: "info", Format: "json"})

	logger.Info("upstream request",
		slog.String("url", "http://src/live.m3u8"),
		slog.String("value", "password=hunter2"),
		slog.String("Authorization", "Bearer abc123"),
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "abc123")
	assert.Contains(t, out, "http://src/live.m3u8", "non-sensitive values must pass through")
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
}

func TestLoggerTextFormat(t *testing.T) {
	logger, buf := newBufferLogger(config.LoggingConfig{Level: "info", Format: "text"})

	logger.Info("hello", slog.String("k", "v"))
	assert.True(t, strings.Contains(buf.String(), "msg=hello"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestContextHelpers(t *testing.T) {
	logger, _ := newBufferLogger(config.LoggingConfig{Level: "info", Format: "json"})

	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFromContext(ctx))
	assert.NotNil(t, LoggerFromContext(context.Background()))

	ctx = ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
