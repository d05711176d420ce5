// Package email sends patient notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/care-scheduler/internal/config"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/pkg/circuitbreaker"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

var (
	scheduledTmpl = template.Must(template.New("scheduled").Parse(
		`<p>Hello {{.Name}},</p><p>Your {{.Type}} appointment is booked for <strong>{{.When}}</strong> ({{.Duration}} minutes).</p>`))
	cancelledTmpl = template.Must(template.New("cancelled").Parse(
		`<p>Hello {{.Name}},</p><p>Your {{.Type}} appointment on <strong>{{.When}}</strong> has been cancelled.</p>`))
)

type notice struct {
	Name     string
	Type     model.AppointmentType
	When     string
	Duration int
}

type Service struct {
	sender  Sender
	from    string
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

func NewService(cfg config.EmailConfig, log *logger.Logger) *Service {
	return NewServiceWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, log)
}

func NewServiceWithSender(sender Sender, from string, log *logger.Logger) *Service {
	return &Service{
		sender: sender,
		from:   from,
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 3,
			Cooldown:    time.Minute,
		}),
		log: log.With("component", "email"),
	}
}

func (s *Service) AppointmentScheduled(ctx context.Context, to *model.User, appt *model.Appointment) error {
	return s.render(ctx, to, "Appointment confirmed", scheduledTmpl, appt)
}

func (s *Service) AppointmentCancelled(ctx context.Context, to *model.User, appt *model.Appointment) error {
	return s.render(ctx, to, "Appointment cancelled", cancelledTmpl, appt)
}

func (s *Service) render(ctx context.Context, to *model.User, subject string, tmpl *template.Template, appt *model.Appointment) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, notice{
		Name:     to.FirstName,
		Type:     appt.Type,
		When:     appt.ScheduledDate.Format("Mon, 02 Jan 2006 15:04 MST"),
		Duration: appt.Duration,
	}); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return s.Send(ctx, to.Email, subject, body.String())
}

// Send delivers one HTML message. It gives up when ctx ends, and fails fast
// while the SMTP relay is considered down.
func (s *Service) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	err := s.breaker.Execute(func() error {
		sent := make(chan error, 1)
		go func() { sent <- s.sender.DialAndSend(m) }()
		select {
		case err := <-sent:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	s.log.Debug("email sent", "subject", subject)
	return nil
}
