package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "SCHEDULED"
	AppointmentStatusConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentStatusInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentStatusCompleted  AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled  AppointmentStatus = "CANCELLED"
	AppointmentStatusNoShow     AppointmentStatus = "NO_SHOW"
)

// appointmentTransitions lists, per status, the statuses it may move to.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusScheduled: {
		AppointmentStatusConfirmed,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
	AppointmentStatusConfirmed: {
		AppointmentStatusInProgress,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
	},
	AppointmentStatusInProgress: {
		AppointmentStatusCompleted,
	},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// Terminal statuses free the slot and accept no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled || s == AppointmentStatusNoShow
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TerminalAppointmentStatuses is used by stores when excluding finished bookings.
func TerminalAppointmentStatuses() []AppointmentStatus {
	return []AppointmentStatus{AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow}
}

type AppointmentType string

const (
	AppointmentTypeConsultation AppointmentType = "CONSULTATION"
	AppointmentTypeExam         AppointmentType = "EXAM"
	AppointmentTypeProcedure    AppointmentType = "PROCEDURE"
	AppointmentTypeTelemedicine AppointmentType = "TELEMEDICINE"
	AppointmentTypeReturn       AppointmentType = "RETURN"
	AppointmentTypeEmergency    AppointmentType = "EMERGENCY"
)

const DefaultAppointmentDuration = 30

func (t AppointmentType) Valid() bool {
	switch t {
	case AppointmentTypeConsultation, AppointmentTypeExam, AppointmentTypeProcedure,
		AppointmentTypeTelemedicine, AppointmentTypeReturn, AppointmentTypeEmergency:
		return true
	}
	return false
}

type Appointment struct {
	Base
	PatientID        uuid.UUID         `db:"patient_id" json:"patient_id"`
	ProfessionalID   uuid.UUID         `db:"professional_id" json:"professional_id"`
	Type             AppointmentType   `db:"type" json:"type"`
	Status           AppointmentStatus `db:"status" json:"status"`
	ScheduledDate    time.Time         `db:"scheduled_date" json:"scheduled_date"`
	Duration         int               `db:"duration" json:"duration"`
	Reason           string            `db:"reason" json:"reason,omitempty"`
	Notes            string            `db:"notes" json:"notes,omitempty"`
	RoomNumber       string            `db:"room_number" json:"room_number,omitempty"`
	IsTelemedicine   bool              `db:"is_telemedicine" json:"is_telemedicine"`
	TelemedicineLink string            `db:"telemedicine_link" json:"telemedicine_link,omitempty"`
	CancelReason     *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledBy      *uuid.UUID        `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt      *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// End is the exclusive end of the booked interval.
func (a *Appointment) End() time.Time {
	return a.ScheduledDate.Add(time.Duration(a.Duration) * time.Minute)
}

// Overlaps reports whether [start, end) intersects the appointment's interval.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledDate.Before(end) && start.Before(a.End())
}

type CreateAppointmentRequest struct {
	PatientID        uuid.UUID       `json:"patient_id" binding:"required"`
	ProfessionalID   uuid.UUID       `json:"professional_id" binding:"required"`
	Type             AppointmentType `json:"type" binding:"required,appointment_type"`
	ScheduledDate    time.Time       `json:"scheduled_date" binding:"required"`
	Duration         int             `json:"duration" binding:"omitempty,min=1,max=720"`
	Reason           string          `json:"reason" binding:"max=1000"`
	Notes            string          `json:"notes" binding:"max=2000"`
	RoomNumber       string          `json:"room_number" binding:"max=32"`
	IsTelemedicine   bool            `json:"is_telemedicine"`
	TelemedicineLink string          `json:"telemedicine_link" binding:"omitempty,url"`
}

// UpdateAppointmentRequest is a patch; nil fields are left untouched.
// Status is deliberately absent.
type UpdateAppointmentRequest struct {
	ProfessionalID   *uuid.UUID       `json:"professional_id"`
	Type             *AppointmentType `json:"type" binding:"omitempty,appointment_type"`
	ScheduledDate    *time.Time       `json:"scheduled_date"`
	Duration         *int             `json:"duration" binding:"omitempty,min=1,max=720"`
	Reason           *string          `json:"reason" binding:"omitempty,max=1000"`
	Notes            *string          `json:"notes" binding:"omitempty,max=2000"`
	RoomNumber       *string          `json:"room_number" binding:"omitempty,max=32"`
	IsTelemedicine   *bool            `json:"is_telemedicine"`
	TelemedicineLink *string          `json:"telemedicine_link" binding:"omitempty,url"`
}

// Reschedules reports whether the patch moves the booked interval.
func (r *UpdateAppointmentRequest) Reschedules() bool {
	return r.ProfessionalID != nil || r.ScheduledDate != nil || r.Duration != nil
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type TransitionAppointmentRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=CONFIRMED IN_PROGRESS COMPLETED NO_SHOW"`
}

type AppointmentFilter struct {
	PatientID      *uuid.UUID
	ProfessionalID *uuid.UUID
	Status         AppointmentStatus
	// Day restricts results to one calendar day (UTC).
	Day *time.Time
}
