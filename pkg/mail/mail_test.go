package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	msg := PasswordReset("noreply@x", "a@x", "alice", "http://host/auth/reset-password?token=t", 1)
	require.NoError(t, NewLogMailer(logger).Send(context.Background(), msg))
	assert.Contains(t, buf.String(), `"to":"a@x"`)
	assert.Contains(t, buf.String(), "reset-password?token=t")
}

func TestRecordingMailer(t *testing.T) {
	m := &RecordingMailer{}
	require.NoError(t, m.Send(context.Background(), AccountConfirm("f", "b@x", "bob", "link")))
	require.Len(t, m.Sent(), 1)
	assert.Equal(t, "Confirm account for user bob", m.Sent()[0].Subject)

	m.Err = errors.New("smtp down")
	assert.Error(t, m.Send(context.Background(), Message{}))
	assert.Len(t, m.Sent(), 1)
}
