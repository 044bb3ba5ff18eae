// Package logger provides the structured, multi-destination logger used by
// every component. Console output goes through log/slog; the lifecycle log is
// an append-only JSON-lines file rotated by lumberjack.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Logger is the main interface for logging throughout the application
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	DebugContext(ctx context.Context, msg string, args ...interface{})
	InfoContext(ctx context.Context, msg string, args ...interface{})
	WarnContext(ctx context.Context, msg string, args ...interface{})
	ErrorContext(ctx context.Context, msg string, args ...interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger

	// WithComponent returns a logger tagged with a component
	WithComponent(component Component) Logger

	// WithSource returns a logger tagged with a log source
	WithSource(source LogSource) Logger

	// Close flushes and closes all log destinations
	Close() error
}

// LogEntry is one line of the lifecycle log
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Component Component              `json:"component,omitempty"`
	Source    LogSource              `json:"log_source,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	EventID   string                 `json:"event_id,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// sink is one log destination
type sink interface {
	log(level LogLevel, msg string, component Component, source LogSource, fields map[string]interface{})
	Close() error
}

type ctxKey string

const eventIDKey ctxKey = "event_id"

// WithEventID returns a context whose log lines carry the given event ID
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey, id)
}

// MultiLogger implements Logger by dispatching to every enabled sink
type MultiLogger struct {
	config     *Config
	level      *slog.LevelVar
	sinks      []sink
	baseFields map[string]interface{}
	component  Component
	source     LogSource
}

// NewLogger creates a logger with the tiers enabled in config
func NewLogger(config *Config) (*MultiLogger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	ml := &MultiLogger{
		config:     config,
		level:      new(slog.LevelVar),
		baseFields: make(map[string]interface{}),
	}
	ml.level.Set(slogLevel(config.Level))

	if config.Console.Enabled {
		console, err := newConsoleLogger(config, ml.level)
		if err != nil {
			return nil, fmt.Errorf("failed to create console logger: %w", err)
		}
		ml.sinks = append(ml.sinks, console)
	}

	if config.File.Enabled {
		file, err := NewFileLogger(config)
		if err != nil {
			// The lifecycle log is observability only; run without it.
			fmt.Fprintf(os.Stderr, "Warning: Failed to create file logger: %v\n", err)
		} else {
			ml.sinks = append(ml.sinks, file)
		}
	}

	return ml, nil
}

func (ml *MultiLogger) Debug(msg string, args ...interface{}) {
	ml.DebugContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) Info(msg string, args ...interface{}) {
	ml.InfoContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) Warn(msg string, args ...interface{}) {
	ml.WarnContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) Error(msg string, args ...interface{}) {
	ml.ErrorContext(context.Background(), msg, args...)
}

func (ml *MultiLogger) DebugContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelDebug, msg, args...)
}

func (ml *MultiLogger) InfoContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelInfo, msg, args...)
}

func (ml *MultiLogger) WarnContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelWarn, msg, args...)
}

func (ml *MultiLogger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {
	ml.log(ctx, LevelError, msg, args...)
}

// WithFields returns a new logger with additional fields
func (ml *MultiLogger) WithFields(fields map[string]interface{}) Logger {
	child := ml.clone()
	child.baseFields = make(map[string]interface{}, len(ml.baseFields)+len(fields))
	for k, v := range ml.baseFields {
		child.baseFields[k] = v
	}
	for k, v := range fields {
		child.baseFields[k] = v
	}
	return child
}

// WithComponent returns a new logger tagged with a component
func (ml *MultiLogger) WithComponent(component Component) Logger {
	child := ml.clone()
	child.component = component
	return child
}

// WithSource returns a new logger tagged with a log source
func (ml *MultiLogger) WithSource(source LogSource) Logger {
	child := ml.clone()
	child.source = source
	return child
}

// Close flushes and closes all log destinations. Loggers derived with
// WithFields/WithComponent/WithSource share the sinks, so close the root only.
func (ml *MultiLogger) Close() error {
	var errs []error
	for _, s := range ml.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing logger: %v", errs)
	}
	return nil
}

func (ml *MultiLogger) clone() *MultiLogger {
	return &MultiLogger{
		config:     ml.config,
		level:      ml.level,
		sinks:      ml.sinks,
		baseFields: ml.baseFields,
		component:  ml.component,
		source:     ml.source,
	}
}

// Enabled reports whether a message at level would be written
func (ml *MultiLogger) Enabled(level LogLevel) bool {
	return slogLevel(level) >= ml.level.Level()
}

// SetLevel changes the minimum level at runtime for this logger and every
// logger derived from the same root
func (ml *MultiLogger) SetLevel(level LogLevel) {
	ml.level.Set(slogLevel(level))
}

func (ml *MultiLogger) log(ctx context.Context, level LogLevel, msg string, args ...interface{}) {
	if !ml.Enabled(level) {
		return
	}

	fields := make(map[string]interface{}, len(ml.baseFields)+len(args)/2+1)
	for k, v := range ml.baseFields {
		fields[k] = v
	}
	// args are key/value pairs; a trailing odd key is dropped
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprintf("%v", args[i])] = args[i+1]
	}
	if ctx != nil {
		if id, ok := ctx.Value(eventIDKey).(string); ok {
			fields["event_id"] = id
		}
	}

	for _, s := range ml.sinks {
		s.log(level, msg, ml.component, ml.source, fields)
	}
}

// NoOpLogger is a logger that does nothing (for testing)
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{})                            {}
func (n *NoOpLogger) Info(msg string, args ...interface{})                             {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})                             {}
func (n *NoOpLogger) Error(msg string, args ...interface{})                            {}
func (n *NoOpLogger) DebugContext(ctx context.Context, msg string, args ...interface{}) {}
func (n *NoOpLogger) InfoContext(ctx context.Context, msg string, args ...interface{})  {}
func (n *NoOpLogger) WarnContext(ctx context.Context, msg string, args ...interface{})  {}
func (n *NoOpLogger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {}
func (n *NoOpLogger) WithFields(fields map[string]interface{}) Logger                  { return n }
func (n *NoOpLogger) WithComponent(component Component) Logger                         { return n }
func (n *NoOpLogger) WithSource(source LogSource) Logger                               { return n }
func (n *NoOpLogger) Close() error                                                     { return nil }

var _ Logger = (*NoOpLogger)(nil)

var (
	defaultLogger Logger = &NoOpLogger{}
	loggerMu      sync.RWMutex
)

// SetDefault sets the global default logger
func SetDefault(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = l
}

// Default returns the global default logger
func Default() Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

func Debug(msg string, args ...interface{}) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	Default().Error(msg, args...)
}
