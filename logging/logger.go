// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug in
// any structured logger. It also offers a richer PipelineLogger with
// contextual helpers (conversation, turn, component) and domain specific
// logging helpers for stages, model calls and checkpoint writes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface for ConvoMesh. This allows
// users to provide their own logger implementation or use the built-in
// adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewSlogLogger creates a Logger writing to stdout at the given level using
// the requested handler format ("json" or "text").
func NewSlogLogger(level LogLevel, format string) Logger {
	return NewSlogLoggerTo(os.Stdout, level, format)
}

// NewSlogLoggerTo creates a Logger writing to w at the given level.
func NewSlogLoggerTo(w io.Writer, level LogLevel, format string) Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return NewSlogAdapter(slog.New(handler))
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PipelineLogger wraps a Logger adding conversation / turn context and
// domain convenience methods. It is cheap to copy via the With* methods.
type PipelineLogger struct {
	logger         Logger
	component      string
	conversationID string
	messageID      string
}

// NewPipelineLogger wraps l; a nil l is replaced by NoOpLogger.
func NewPipelineLogger(l Logger) *PipelineLogger {
	if l == nil {
		l = NoOpLogger{}
	}
	return &PipelineLogger{logger: l}
}

// WithComponent sets the logical component (stage, engine, admission, ...).
func (p *PipelineLogger) WithComponent(c string) *PipelineLogger {
	np := *p
	np.component = c
	return &np
}

// WithConversation attaches conversation and message identifiers.
func (p *PipelineLogger) WithConversation(conversationID, messageID string) *PipelineLogger {
	np := *p
	np.conversationID = conversationID
	np.messageID = messageID
	return &np
}

func (p *PipelineLogger) args(extra ...any) []any {
	out := make([]any, 0, len(extra)+6)
	if p.component != "" {
		out = append(out, "component", p.component)
	}
	if p.conversationID != "" {
		out = append(out, "conversation_id", p.conversationID)
	}
	if p.messageID != "" {
		out = append(out, "message_id", p.messageID)
	}
	return append(out, extra...)
}

// Debug logs at debug level with the attached context.
func (p *PipelineLogger) Debug(msg string, extra ...any) { p.logger.Debug(msg, p.args(extra...)...) }

// Info logs at info level with the attached context.
func (p *PipelineLogger) Info(msg string, extra ...any) { p.logger.Info(msg, p.args(extra...)...) }

// Warn logs at warn level with the attached context.
func (p *PipelineLogger) Warn(msg string, extra ...any) { p.logger.Warn(msg, p.args(extra...)...) }

// Error logs at error level with the attached context.
func (p *PipelineLogger) Error(msg string, extra ...any) { p.logger.Error(msg, p.args(extra...)...) }

// LogStage records a single stage execution outcome.
func (p *PipelineLogger) LogStage(stage string, attempt int, dur time.Duration, err error) {
	if err != nil {
		p.logger.Error("stage execution failed", p.args(
			"stage", stage, "attempt", attempt, "duration", dur, "error", err.Error())...)
		return
	}
	p.logger.Info("stage execution completed", p.args(
		"stage", stage, "attempt", attempt, "duration", dur)...)
}

// LogModelCall records model call latency and token usage.
func (p *PipelineLogger) LogModelCall(model string, tokens int, dur time.Duration, err error) {
	if err != nil {
		p.logger.Error("model call failed", p.args(
			"model", model, "duration", dur, "error", err.Error())...)
		return
	}
	p.logger.Info("model call completed", p.args(
		"model", model, "token_count", tokens, "duration", dur)...)
}

// LogRetrieval records a retrieval call and its candidate count.
func (p *PipelineLogger) LogRetrieval(query string, hits int, dur time.Duration, err error) {
	if err != nil {
		p.logger.Warn("retrieval call failed", p.args(
			"query", query, "duration", dur, "error", err.Error())...)
		return
	}
	p.logger.Debug("retrieval call completed", p.args(
		"query", query, "hits", hits, "duration", dur)...)
}

// LogCheckpoint records a checkpoint write.
func (p *PipelineLogger) LogCheckpoint(nextStage string) {
	p.logger.Debug("checkpoint written", p.args("next_stage", nextStage)...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
