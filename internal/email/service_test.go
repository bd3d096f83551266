package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	d := &recordingDialer{}
	s := &smtpSender{from: "no-reply@carriage.test", dialer: d}

	err := s.Send(context.Background(), Message{
		To:      "rider@example.com",
		Subject: "Carriage Ride Approved",
		Text:    "Your ride has been approved.",
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"rider@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Carriage Ride Approved"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Your ride has been approved.")
}

func TestSMTPSenderWrapsDialError(t *testing.T) {
	boom := errors.New("connection refused")
	s := &smtpSender{from: "a@b.c", dialer: &recordingDialer{err: boom}}

	err := s.Send(context.Background(), Message{To: "x@example.com"})
	assert.ErrorIs(t, err, boom)
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	d := &recordingDialer{}
	s := &smtpSender{dialer: d}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Send(ctx, Message{To: "x@example.com"}), context.Canceled)
	assert.Empty(t, d.sent)
}
