package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-ai/crucible/internal/config"
)

func TestTracedLogger_IncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTracedLogger(NewJSONHandler(&buf, slog.LevelDebug), "router")

	logger.Info(context.Background(), "event delivered", "event_id", "evt-123")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "router", entry["component"])
	assert.Equal(t, "event delivered", entry["msg"])
	assert.Equal(t, "evt-123", entry["event_id"])
}

func TestTracedLogger_NoSpanMeansNoTraceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTracedLogger(NewJSONHandler(&buf, slog.LevelDebug), "engine")

	logger.Warn(context.Background(), "cache eviction")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestTracedLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTracedLogger(NewTextHandler(&buf, slog.LevelWarn), "daemon")

	logger.Debug(context.Background(), "suppressed")
	logger.Info(context.Background(), "also suppressed")
	assert.Zero(t, buf.Len())

	logger.Error(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}

func TestBuildLogger_FromConfig(t *testing.T) {
	logger, err := BuildLogger(config.LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestTracer_DisabledIsNoop(t *testing.T) {
	tracer := Tracer(config.TracingConfig{Enabled: false})
	_, span := tracer.Start(context.Background(), "test")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}
