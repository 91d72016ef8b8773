package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/adminhub/pkg/contextkeys"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("Debug message should not be logged at Info level")
	}

	logger.Info("info message")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log entry: %v", err)
	}
	if entry["msg"] != "info message" {
		t.Errorf("Expected msg 'info message', got %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level info, got %v", entry["level"])
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	ctx = contextkeys.WithUserID(ctx, "42")

	FromContext(ctx, logger).Warn("cache down")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log entry: %v", err)
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("Expected request_id req-1, got %v", entry["request_id"])
	}
	if entry["user_id"] != "42" {
		t.Errorf("Expected user_id 42, got %v", entry["user_id"])
	}
}

func TestFromContext_TraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(tracetest.NewSpanRecorder()))
	ctx, span := tp.Tracer(TracerName).Start(context.Background(), "op")
	defer span.End()

	FromContext(ctx, logger).Info("traced")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log entry: %v", err)
	}
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), entry["trace_id"])
	}
	if entry["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("Expected span_id %s, got %v", span.SpanContext().SpanID(), entry["span_id"])
	}
}
