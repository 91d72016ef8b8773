// Package mail is the outbound e-mail boundary. Delivery is pluggable; the
// bundled implementation only logs messages.
package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Message is a rendered e-mail
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	// Link is the action link embedded in the body, kept separately for logging
	Link string
}

// Mailer delivers messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger logrus.FieldLogger
}

// NewLogMailer creates a logging mailer
func NewLogMailer(logger logrus.FieldLogger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
		"link":    msg.Link,
	}).Info("email queued")
	return nil
}

// RecordingMailer keeps sent messages in memory. Useful in tests.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (m *RecordingMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the delivered messages
func (m *RecordingMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// PasswordReset builds the recovery message
func PasswordReset(from, to, username, link string, validHours int) Message {
	return Message{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("Password recovery for user %s", to),
		Body: fmt.Sprintf("Hello %s,\n\nUse the link below to reset your password. It is valid for %d hour(s).\n\n%s\n",
			username, validHours, link),
		Link: link,
	}
}

// AccountConfirm builds the registration confirmation message
func AccountConfirm(from, to, username, link string) Message {
	return Message{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("Confirm account for user %s", username),
		Body:    fmt.Sprintf("Hello %s,\n\nConfirm your account by following this link:\n\n%s\n", username, link),
		Link:    link,
	}
}

// NewAccount notifies a user that an administrator created their account
func NewAccount(from, to, username, loginURL string) Message {
	return Message{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("New account for user %s", username),
		Body:    fmt.Sprintf("Hello %s,\n\nAn account was created for you. Sign in at:\n\n%s\n", username, loginURL),
		Link:    loginURL,
	}
}
