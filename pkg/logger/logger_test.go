package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/faultgraph/faultgraph/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("bogus"))
}

func TestColorHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelDebug)

	log.Error("extraction failed")
	assert.Contains(t, buf.String(), "\033[31m")

	buf.Reset()
	log.Warn("retrying llm call")
	assert.Contains(t, buf.String(), "\033[33m")

	buf.Reset()
	log.Info("checkpoint saved", "processed_chunks", 5)
	out := buf.String()
	assert.Contains(t, out, "\033[32m")
	assert.Contains(t, out, "processed_chunks=5")

	buf.Reset()
	log.Info("chunk processed")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelWarn)

	log.Info("not shown")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.NotEmpty(t, buf.String())
}
