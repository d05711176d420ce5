package email

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/pkg/circuitbreaker"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

type captureSender struct {
	sent []*gomail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m...)
	return nil
}

func appointment() *model.Appointment {
	return &model.Appointment{
		Base:          model.Base{ID: uuid.New()},
		Type:          model.AppointmentTypeConsultation,
		ScheduledDate: time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC),
		Duration:      30,
	}
}

func TestAppointmentScheduled(t *testing.T) {
	sender := &captureSender{}
	svc := NewServiceWithSender(sender, "clinic@example.com", logger.Nop())

	err := svc.AppointmentScheduled(context.Background(), &model.User{Email: "ana@example.com", FirstName: "Ana"}, appointment())
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"ana@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Appointment confirmed"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Ana")
	assert.Contains(t, buf.String(), "CONSULTATION")
}

func TestRelayFailuresOpenBreaker(t *testing.T) {
	sender := &captureSender{err: errors.New("connection refused")}
	svc := NewServiceWithSender(sender, "clinic@example.com", logger.Nop())
	to := &model.User{Email: "ana@example.com"}

	for i := 0; i < 3; i++ {
		assert.Error(t, svc.AppointmentCancelled(context.Background(), to, appointment()))
	}
	err := svc.AppointmentCancelled(context.Background(), to, appointment())
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestCancelledContextSendsNothing(t *testing.T) {
	sender := &captureSender{}
	svc := NewServiceWithSender(sender, "clinic@example.com", logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.Send(ctx, "a@example.com", "s", "b"), context.Canceled)
	assert.Empty(t, sender.sent)
}

type stalledSender struct {
	release chan struct{}
}

func (s stalledSender) DialAndSend(...*gomail.Message) error {
	<-s.release
	return nil
}

func TestSendGivesUpAtDeadline(t *testing.T) {
	sender := stalledSender{release: make(chan struct{})}
	defer close(sender.release)
	svc := NewServiceWithSender(sender, "clinic@example.com", logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := svc.Send(ctx, "a@example.com", "s", "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
}
