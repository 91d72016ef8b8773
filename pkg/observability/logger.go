package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/adminhub/pkg/contextkeys"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}[l]
}

// toLogrusLevel converts LogLevel to logrus.Level
func (l LogLevel) toLogrusLevel() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLogLevel parses a log level string, defaulting to InfoLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// NewLogger creates a JSON structured logger
func NewLogger(level LogLevel, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(level.toLogrusLevel())
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

// NopLogger returns a logger that discards everything. Useful in tests.
func NopLogger() *logrus.Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

type loggerKey struct{}

// WithLogger adds a logger entry to the context
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry)
}

// FromContext returns the request-scoped logger entry enriched with the
// request ID, user ID and trace IDs found in ctx. When no logger was
// attached, fallback is used.
func FromContext(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	var logger logrus.FieldLogger = fallback
	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		logger = entry
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if userID := contextkeys.GetUserID(ctx); userID != "" {
		logger = logger.WithField("user_id", userID)
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		logger = logger.WithFields(logrus.Fields{
			"trace_id": spanCtx.TraceID().String(),
			"span_id":  spanCtx.SpanID().String(),
		})
	}

	return logger
}
