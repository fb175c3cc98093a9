// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// CycleIDKey is the context key for the orchestrator cycle ID
	CycleIDKey contextKey = "cycle_id"
	// StageKey is the context key for the running stage name
	StageKey contextKey = "stage"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops every record. Used by tests and tools.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, cycle_id and stage from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok && cycleID != "" {
		newLogger = newLogger.WithCycleID(cycleID)
	}

	if stage, ok := ctx.Value(StageKey).(string); ok && stage != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("stage", stage)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithCycleID returns a logger tagged with the orchestrator cycle
func (l *Logger) WithCycleID(cycleID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("cycle_id", cycleID)),
	}
}

// WithLead returns a logger tagged with a lead email
func (l *Logger) WithLead(email string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("lead", email)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// StageError logs a stage that failed as a whole.
func (l *Logger) StageError(stage string, err error) {
	l.Error("stage_error",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// LeadError logs a per-lead failure inside a stage.
func (l *Logger) LeadError(stage, email string, err error) {
	l.Warn("lead_error",
		slog.String("stage", stage),
		slog.String("lead", email),
		slog.String("error", err.Error()),
	)
}

// CycleSummary logs the totals of a finished cycle.
func (l *Logger) CycleSummary(cycleID string, durationSeconds float64, newLeads, replies, bookings, followUps, errs int) {
	level := slog.LevelInfo
	if errs > 0 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "cycle_complete",
		slog.String("cycle_id", cycleID),
		slog.Float64("duration_seconds", durationSeconds),
		slog.Int("new_leads", newLeads),
		slog.Int("replies", replies),
		slog.Int("bookings", bookings),
		slog.Int("follow_ups_sent", followUps),
		slog.Int("errors", errs),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
