// Package medical keeps clinical records. Free-text notes are encrypted at
// rest and decrypted only on the way out.
package medical

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	"github.com/jwalitptl/care-scheduler/internal/service/privacy"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

type Service struct {
	records       repository.MedicalRecordRepository
	patients      repository.PatientRepository
	professionals repository.ProfessionalRepository
	appointments  repository.AppointmentRepository
	cipher        *privacy.Cipher
	clock         func() time.Time
	timeout       time.Duration
	log           *logger.Logger
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(repos repository.Repositories, cipher *privacy.Cipher, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		records:       repos.MedicalRecords,
		patients:      repos.Patients,
		professionals: repos.Professionals,
		appointments:  repos.Appointments,
		cipher:        cipher,
		clock:         func() time.Time { return time.Now().UTC() },
		timeout:       5 * time.Second,
		log:           log.With("component", "medical-records"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notFound(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource)
	}
	return apperrors.Persistence("get "+resource, err)
}

func (s *Service) Create(ctx context.Context, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
		return nil, notFound("patient", err)
	}
	if _, err := s.professionals.Get(ctx, req.ProfessionalID); err != nil {
		return nil, notFound("professional", err)
	}
	if req.AppointmentID != nil {
		appt, err := s.appointments.Get(ctx, *req.AppointmentID)
		if err != nil {
			return nil, notFound("appointment", err)
		}
		if appt.PatientID != req.PatientID {
			return nil, apperrors.Validation("appointment belongs to another patient")
		}
	}

	date := s.clock()
	if req.Date != nil {
		date = req.Date.UTC()
	}
	record := &model.MedicalRecord{
		PatientID:      req.PatientID,
		ProfessionalID: req.ProfessionalID,
		AppointmentID:  req.AppointmentID,
		Date:           date,
		Diagnosis:      req.Diagnosis,
		Symptoms:       req.Symptoms,
		TreatmentPlan:  req.TreatmentPlan,
	}
	sealed, err := s.cipher.Encrypt(req.Notes)
	if err != nil {
		return nil, apperrors.Persistence("encrypt notes", err)
	}
	record.Notes = sealed

	if err := s.records.Create(ctx, record); err != nil {
		return nil, apperrors.Persistence("create medical record", err)
	}
	s.log.Info("medical record created", "record_id", record.ID.String())

	record.Notes = req.Notes
	return record, nil
}

// Get returns one record. Patients only see their own chart.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.MedicalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, notFound("medical record", err)
	}
	if err := s.checkOwner(ctx, record.PatientID, actor); err != nil {
		return nil, err
	}
	return s.open(record)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateMedicalRecordRequest) (*model.MedicalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, notFound("medical record", err)
	}
	if req.Diagnosis != nil {
		record.Diagnosis = *req.Diagnosis
	}
	if req.Symptoms != nil {
		record.Symptoms = *req.Symptoms
	}
	if req.TreatmentPlan != nil {
		record.TreatmentPlan = *req.TreatmentPlan
	}
	if req.Notes != nil {
		if record.Notes, err = s.cipher.Encrypt(*req.Notes); err != nil {
			return nil, apperrors.Persistence("encrypt notes", err)
		}
	}
	record.UpdatedAt = s.clock()

	if err := s.records.Update(ctx, record); err != nil {
		return nil, notFound("medical record", err)
	}
	return s.open(record)
}

// List pages through records, newest first. A nil patientID lists every
// chart; patients are always narrowed to their own.
func (s *Service) List(ctx context.Context, actor model.Actor, patientID *uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if actor.Role == model.RolePatient {
		own, err := s.patients.GetByUserID(ctx, actor.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return []*model.MedicalRecord{}, 0, nil
		}
		if err != nil {
			return nil, 0, apperrors.Persistence("get patient", err)
		}
		if patientID != nil && *patientID != own.ID {
			return nil, 0, apperrors.Authorization("patients may only access their own records")
		}
		patientID = &own.ID
	}

	records, total, err := s.records.List(ctx, patientID, page.Normalize())
	if err != nil {
		return nil, 0, apperrors.Persistence("list medical records", err)
	}
	for i, r := range records {
		if records[i], err = s.open(r); err != nil {
			return nil, 0, err
		}
	}
	return records, total, nil
}

// History is the full chart of one patient.
func (s *Service) History(ctx context.Context, actor model.Actor, patientID uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error) {
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, 0, notFound("patient", err)
	}
	return s.List(ctx, actor, &patientID, page)
}

func (s *Service) checkOwner(ctx context.Context, patientID uuid.UUID, actor model.Actor) error {
	if actor.Role != model.RolePatient {
		return nil
	}
	own, err := s.patients.GetByUserID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && own.ID != patientID) {
		return apperrors.Authorization("patients may only access their own records")
	}
	if err != nil {
		return apperrors.Persistence("get patient", err)
	}
	return nil
}

func (s *Service) open(record *model.MedicalRecord) (*model.MedicalRecord, error) {
	clear, err := s.cipher.Decrypt(record.Notes)
	if err != nil {
		s.log.Error(err, "medical record notes not decryptable", "record_id", record.ID.String())
		return nil, apperrors.Persistence("decrypt notes", err)
	}
	record.Notes = clear
	return record, nil
}
