package audit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/contextkeys"
	"github.com/platinummonkey/adminhub/pkg/middleware"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }

// LogrusLogger writes events to a structured log stream
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates a logger writing one entry per event
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

func (l *LogrusLogger) Log(_ context.Context, e *Event) error {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": e.Type,
		"status":     e.Status,
	}
	if e.UserID != nil {
		fields["user_id"] = *e.UserID
	}
	if e.Email != "" {
		fields["email"] = e.Email
	}
	if e.Route != "" {
		fields["method"] = e.Method
		fields["route"] = e.Route
		fields["status_code"] = e.StatusCode
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	if e.ResourceID != "" {
		fields["resource"] = e.ResourceType + "/" + e.ResourceID
	}
	l.logger.WithFields(fields).Info(e.Message)
	return nil
}

// MultiLogger fans an event out to every logger. All loggers are tried;
// their errors are joined.
type MultiLogger []Logger

func (m MultiLogger) Log(ctx context.Context, e *Event) error {
	var errs []error
	for _, l := range m {
		if err := l.Log(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewEvent starts an event populated from the request
func NewEvent(r *http.Request, eventType EventType, status Status) *Event {
	e := &Event{
		OccurredAt: time.Now().UTC(),
		Type:       eventType,
		Status:     status,
	}
	if r != nil {
		e.IPAddress = middleware.ClientIP(r)
		e.UserAgent = r.UserAgent()
		e.Method = r.Method
		e.RequestID = contextkeys.GetRequestID(r.Context())
	}
	return e
}
