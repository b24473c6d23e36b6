package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger records calls for assertions.
type captureLogger struct {
	entries []entry
}

type entry struct {
	level string
	msg   string
	args  []any
}

func (c *captureLogger) Debug(msg string, args ...any) { c.record("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.record("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.record("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.record("error", msg, args) }

func (c *captureLogger) record(level, msg string, args []any) {
	c.entries = append(c.entries, entry{level: level, msg: msg, args: args})
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
}

func TestNewSlogLoggerTo_WritesStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerTo(&buf, LogLevelInfo, "json")

	logger.Info("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"key":"value"`)
}

func TestNewSlogLoggerTo_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLoggerTo(&buf, LogLevelWarn, "text")

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestPipelineLogger_AttachesContext(t *testing.T) {
	capture := &captureLogger{}
	log := NewPipelineLogger(capture).
		WithComponent("engine").
		WithConversation("conv-1", "msg-1")

	log.Info("stage done", "extra", 1)

	require.Len(t, capture.entries, 1)
	args := capture.entries[0].args
	assert.Contains(t, args, "component")
	assert.Contains(t, args, "engine")
	assert.Contains(t, args, "conversation_id")
	assert.Contains(t, args, "conv-1")
	assert.Contains(t, args, "message_id")
	assert.Contains(t, args, "extra")
}

func TestPipelineLogger_WithIsCopyOnWrite(t *testing.T) {
	capture := &captureLogger{}
	base := NewPipelineLogger(capture).WithComponent("a")
	derived := base.WithComponent("b")

	base.Info("from base")
	derived.Info("from derived")

	require.Len(t, capture.entries, 2)
	assert.Contains(t, capture.entries[0].args, "a")
	assert.Contains(t, capture.entries[1].args, "b")
}

func TestPipelineLogger_LogStage(t *testing.T) {
	capture := &captureLogger{}
	log := NewPipelineLogger(capture)

	log.LogStage("router", 1, 5*time.Millisecond, nil)
	log.LogStage("router", 2, 5*time.Millisecond, errors.New("boom"))

	require.Len(t, capture.entries, 2)
	assert.Equal(t, "info", capture.entries[0].level)
	assert.Equal(t, "error", capture.entries[1].level)
	assert.Contains(t, capture.entries[1].args, "boom")
}

func TestNewPipelineLogger_NilLoggerIsSafe(t *testing.T) {
	log := NewPipelineLogger(nil)
	assert.NotPanics(t, func() {
		log.Info("noop")
		log.LogCheckpoint("router")
	})
}
