// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/networkeyes/lifecycle/pkg/errutil"
)

func setup(t *testing.T, opts Options) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.Writer = &buf
	logger, err := Setup(opts)
	require.NoError(t, err)
	return logger, &buf
}

func TestSetup_JSONFormat(t *testing.T) {
	logger, buf := setup(t, Options{Service: "networkeyes", Version: "1.0.6", Format: "json"})

	logger.Info("plugin installed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "plugin installed", entry["msg"])
	assert.Equal(t, "networkeyes", entry["service"])
	assert.Equal(t, "1.0.6", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
}

func TestSetup_TextFormat(t *testing.T) {
	logger, buf := setup(t, Options{Service: "networkeyes", Format: "text"})

	logger.Info("plugin deleted")

	assert.Contains(t, buf.String(), "plugin deleted")
	assert.Contains(t, buf.String(), "service=networkeyes")
}

func TestSetup_DefaultFormatIsJSON(t *testing.T) {
	logger, buf := setup(t, Options{Service: "networkeyes"})

	logger.Info("status")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
}

func TestSetup_Level(t *testing.T) {
	logger, buf := setup(t, Options{Level: "warn"})

	logger.Info("hidden")
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_Rejects(t *testing.T) {
	_, err := Setup(Options{Level: "chatty"})
	errutil.AssertErrorCode(t, err, "INVALID_LOG_LEVEL")

	_, err = Setup(Options{Format: "xml"})
	errutil.AssertErrorCode(t, err, "INVALID_LOG_FORMAT")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestHandler_TraceContext(t *testing.T) {
	logger, buf := setup(t, Options{Service: "networkeyes"})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "traced")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	logger, buf := setup(t, Options{})

	logger.Info("untraced")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	logger, buf := setup(t, Options{Service: "networkeyes"})

	logger.With("op_id", "01J").WithGroup("plugin").Info("grouped", "slug", "BrainDriveNetwork")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "01J", entry["op_id"])
	require.IsType(t, map[string]any{}, entry["plugin"])
	assert.Equal(t, "BrainDriveNetwork", entry["plugin"].(map[string]any)["slug"])
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault(Options{Service: "networkeyes", Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}
