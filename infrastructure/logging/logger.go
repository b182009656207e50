// Package logging provides structured logging with trace/task correlation.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for the overall run's trace ID.
	TraceIDKey ContextKey = "trace_id"
	// TaskRefKey is the context key for the task reference currently being
	// processed, so every log line on a task's path can be correlated.
	TaskRefKey ContextKey = "task_ref"
	// AgentIDKey is the context key for the worker/agent identity.
	AgentIDKey ContextKey = "agent_id"
	// ServiceKey is the context key for the service/component name.
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with additional functionality.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{
		Logger:  logger,
		service: service,
	}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables. Defaults to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a new logger entry with context values.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if taskRef := ctx.Value(TaskRefKey); taskRef != nil {
		entry = entry.WithField("task_ref", taskRef)
	}
	if agentID := ctx.Value(AgentIDKey); agentID != nil {
		entry = entry.WithField("agent_id", agentID)
	}

	return entry
}

// WithTaskRef creates a new logger entry scoped to a task reference.
func (l *Logger) WithTaskRef(taskRef string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service":  l.service,
		"task_ref": taskRef,
	})
}

// WithFields creates a new logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a new logger entry with an error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithTaskRef adds a task reference to the context.
func WithTaskRef(ctx context.Context, taskRef string) context.Context {
	return context.WithValue(ctx, TaskRefKey, taskRef)
}

// GetTaskRef retrieves the task reference from context.
func GetTaskRef(ctx context.Context) string {
	if ref, ok := ctx.Value(TaskRefKey).(string); ok {
		return ref
	}
	return ""
}

// WithAgentID adds an agent/worker identity to the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// GetAgentID retrieves the agent/worker identity from context.
func GetAgentID(ctx context.Context) string {
	if id, ok := ctx.Value(AgentIDKey).(string); ok {
		return id
	}
	return ""
}

// LogLedgerInstruction logs the outcome of submitting a signed instruction
// to the coordination substrate.
func (l *Logger) LogLedgerInstruction(ctx context.Context, instruction, signature string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"instruction": instruction,
		"signature":   signature,
	})
	if err != nil {
		entry.WithError(err).Error("ledger instruction failed")
	} else {
		entry.Info("ledger instruction confirmed")
	}
}

// LogDatabaseQuery logs a persistence-layer query.
func (l *Logger) LogDatabaseQuery(ctx context.Context, query string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"query":       query,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("database query failed")
	} else {
		entry.Debug("database query executed")
	}
}

// LogAudit logs an audit event for a policy or claim decision.
func (l *Logger) LogAudit(ctx context.Context, action, resource, resourceID, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit log")
}

// LogPerformance logs timing/throughput metrics for a named operation.
func (l *Logger) LogPerformance(ctx context.Context, operation string, metrics map[string]interface{}) {
	fields := logrus.Fields{
		"operation": operation,
		"type":      "performance",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Info("performance metrics")
}

// Global logger instance (initialized once at process startup).
var defaultLogger *Logger

// InitDefault initializes the default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, lazily creating a fallback one.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("unknown", "info", "json")
	}
	return defaultLogger
}

// FormatDuration renders a duration in fractional milliseconds, matching
// the precision used throughout the structured log fields above.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
