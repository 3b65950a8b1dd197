// Package observability provides structured logging and health checks
// for the library service.
package observability

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger with additional convenience methods.
type Logger struct {
	*zap.Logger
}

// loggerContextKey is the context key for storing logger instances.
type loggerContextKey struct{}

// GlobalLogger is the default logger instance. Exported for testing.
var GlobalLogger *Logger

// InitLogger initializes the global logger for the given environment.
// Valid environments: development, test, staging, production.
func InitLogger(env string) (*Logger, error) {
	var config zap.Config

	switch env {
	case "development", "test":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production", "staging":
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid environment: %s (must be development, test, staging, or production)", env)
	}

	// LOG_LEVEL overrides the environment default.
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger := &Logger{Logger: zapLogger}
	GlobalLogger = logger

	return logger, nil
}

// GetLogger returns the global logger instance.
// Panics if InitLogger has not been called.
func GetLogger() *Logger {
	if GlobalLogger == nil {
		panic("logger not initialized - call InitLogger first")
	}
	return GlobalLogger
}

// WithFields creates a new logger with additional fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.With(fields...)}
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With(zap.Error(err))}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(zap.String("component", component))}
}

// ContextWithLogger adds the logger to the context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger from context.
// Returns the global logger if not found.
func LoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return logger
	}
	return GetLogger()
}

// Sync flushes any buffered log entries.
// Should be called before application shutdown.
func (l *Logger) Sync() error {
	if err := l.Logger.Sync(); err != nil {
		return fmt.Errorf("failed to sync logger: %w", err)
	}
	return nil
}

// LogRequest logs an HTTP request.
func (l *Logger) LogRequest(method, path string, statusCode int, duration float64) {
	l.Info("http request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Float64("duration_ms", duration),
	)
}

// LogStoreOperation logs a store operation.
func (l *Logger) LogStoreOperation(operation, table string, err error) {
	if err != nil {
		l.Error("store operation failed",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Error(err),
		)
	} else {
		l.Debug("store operation completed",
			zap.String("operation", operation),
			zap.String("table", table),
		)
	}
}

// LogBusOperation logs a bus publish attempt.
func (l *Logger) LogBusOperation(subject, eventID string, err error) {
	if err != nil {
		l.Error("bus publish failed",
			zap.String("subject", subject),
			zap.String("eventID", eventID),
			zap.Error(err),
		)
	} else {
		l.Debug("bus publish completed",
			zap.String("subject", subject),
			zap.String("eventID", eventID),
		)
	}
}
