// Package events publishes appointment lifecycle events for other systems.
// Payloads carry identifiers only, never names or contact details.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/pkg/messaging"
)

const (
	DefaultChannel = "care-scheduler.appointments"

	TypeAppointmentScheduled = "appointment.scheduled"
	TypeAppointmentCancelled = "appointment.cancelled"
)

type AppointmentEvent struct {
	AppointmentID  uuid.UUID               `json:"appointment_id"`
	PatientID      uuid.UUID               `json:"patient_id"`
	ProfessionalID uuid.UUID               `json:"professional_id"`
	Type           model.AppointmentType   `json:"type"`
	Status         model.AppointmentStatus `json:"status"`
	ScheduledDate  time.Time               `json:"scheduled_date"`
	Duration       int                     `json:"duration"`
}

// Publisher is an appointment notifier backed by a broker.
type Publisher struct {
	broker  messaging.Broker
	channel string
	clock   func() time.Time
}

func NewPublisher(broker messaging.Broker, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{broker: broker, channel: channel, clock: time.Now}
}

func (p *Publisher) AppointmentScheduled(ctx context.Context, _ *model.User, appt *model.Appointment) error {
	return p.publish(ctx, TypeAppointmentScheduled, appt)
}

func (p *Publisher) AppointmentCancelled(ctx context.Context, _ *model.User, appt *model.Appointment) error {
	return p.publish(ctx, TypeAppointmentCancelled, appt)
}

func (p *Publisher) publish(ctx context.Context, kind string, appt *model.Appointment) error {
	return p.broker.Publish(ctx, p.channel, messaging.Message{
		Type:       kind,
		OccurredAt: p.clock().UTC(),
		Payload: AppointmentEvent{
			AppointmentID:  appt.ID,
			PatientID:      appt.PatientID,
			ProfessionalID: appt.ProfessionalID,
			Type:           appt.Type,
			Status:         appt.Status,
			ScheduledDate:  appt.ScheduledDate,
			Duration:       appt.Duration,
		},
	})
}
