// Copyright (c) 2026 the runeach authors.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerReturnsDefaultWhenUnset(t *testing.T) {
	assert.Same(t, DefaultLogger, Logger(context.Background()))
}

func TestNewAndLoggerRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	ctx := New(context.Background(), logger)
	assert.Same(t, logger, Logger(ctx))
}

func TestNewNilLoggerFallsBack(t *testing.T) {
	ctx := New(context.Background(), nil)
	assert.Same(t, DefaultLogger, Logger(ctx))
}

func TestPrettyHandlerWritesMessageAndAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	h := NewPrettyHandler(&slog.HandlerOptions{Level: slog.LevelDebug},
		WithDestinationWriter(buf),
	)
	logger := slog.New(h)

	logger.Info("hello", "item", 42)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "item")
	assert.Contains(t, out, "42")
}

func TestPrettyHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	h := NewPrettyHandler(&slog.HandlerOptions{Level: slog.LevelWarn},
		WithDestinationWriter(buf),
	)
	logger := slog.New(h)

	logger.Debug("should not appear")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}
