package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		List(ctx context.Context, page model.Pagination) ([]*model.Patient, int, error)
	}

	ProfessionalRepository interface {
		Create(ctx context.Context, professional *model.Professional) error
		Get(ctx context.Context, id uuid.UUID) (*model.Professional, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Professional, error)
		Update(ctx context.Context, professional *model.Professional) error
		List(ctx context.Context, page model.Pagination) ([]*model.Professional, int, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		// List returns one page ordered by scheduled date ascending, plus the total match count.
		List(ctx context.Context, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error)
		// HasConflict reports whether a non-terminal appointment of the professional
		// intersects [start, end). excludeID skips the appointment being rescheduled.
		HasConflict(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error)
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
		Update(ctx context.Context, record *model.MedicalRecord) error
		List(ctx context.Context, patientID *uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error)
	}

	AuditRepository interface {
		// Append assigns the next sequence number for the record's key and stores it.
		Append(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter model.AuditFilter, page model.Pagination) ([]*model.AuditLog, int, error)
		// Rewrite applies fn to every record whose actor is subject.ActorID or whose
		// resource id is one of subject.ResourceIDs, persisting those fn reports as changed.
		Rewrite(ctx context.Context, subject AuditSubject, fn func(*model.AuditLog) bool) (int, error)
	}

	ErasureRepository interface {
		// Erase deletes the patient and its user and stores the tombstone in one unit.
		Erase(ctx context.Context, erasure *model.Erasure) error
		Get(ctx context.Context, patientID uuid.UUID) (*model.Erasure, error)
		ListPending(ctx context.Context) ([]*model.Erasure, error)
		MarkRecorded(ctx context.Context, patientID uuid.UUID, at time.Time) error
		MarkCompleted(ctx context.Context, patientID uuid.UUID, at time.Time) error
	}
)

// AuditSubject selects the audit records that belong to an erased person.
type AuditSubject struct {
	ActorID     string
	ResourceIDs []string
}

// Repositories bundles one implementation of every store.
type Repositories struct {
	Users          UserRepository
	Patients       PatientRepository
	Professionals  ProfessionalRepository
	Appointments   AppointmentRepository
	MedicalRecords MedicalRecordRepository
	Audit          AuditRepository
	Erasures       ErasureRepository
}
