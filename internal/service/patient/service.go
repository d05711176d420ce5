// Package patient manages patient profiles. Deleting a patient is an erasure.
package patient

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

// Eraser removes a patient for good.
type Eraser interface {
	Erase(ctx context.Context, patientID uuid.UUID, actor model.Actor) error
}

type Service struct {
	patients repository.PatientRepository
	users    repository.UserRepository
	cipher   *privacy.Cipher
	eraser   Eraser
	clock    func() time.Time
	timeout  time.Duration
	log      *logger.Logger
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(repos repository.Repositories, cipher *privacy.Cipher, eraser Eraser, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		patients: repos.Patients,
		users:    repos.Users,
		cipher:   cipher,
		eraser:   eraser,
		clock:    func() time.Time { return time.Now().UTC() },
		timeout:  5 * time.Second,
		log:      log.With("component", "patients"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a profile for an existing PATIENT user. Consent is mandatory.
func (s *Service) Create(ctx context.Context, req *model.CreatePatientRequest) (*model.PatientProfile, error) {
	if !req.Consent {
		return nil, apperrors.Validation("patient consent is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.Get(ctx, req.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, apperrors.Persistence("get user", err)
	}
	if user.Role != model.RolePatient {
		return nil, apperrors.Validationf("user has role %s, expected %s", user.Role, model.RolePatient)
	}

	now := s.clock()
	p := &model.Patient{
		UserID:          user.ID,
		DateOfBirth:     req.DateOfBirth,
		Gender:          req.Gender,
		BloodType:       req.BloodType,
		Allergies:       req.Allergies,
		InsuranceName:   req.InsuranceName,
		InsuranceNumber: req.InsuranceNumber,
		Consent:         true,
		ConsentDate:     &now,
	}
	switch err := s.patients.Create(ctx, p); {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperrors.Validation("user already has a patient profile")
	case err != nil:
		return nil, apperrors.Persistence("create patient", err)
	}
	s.log.Info("patient created", "patient_id", p.ID.String())
	return s.profile(p, user), nil
}

// Get returns one profile. Patients may only read their own.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.PatientProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RolePatient && p.UserID != actor.UserID {
		return nil, apperrors.Authorization("patients may only access their own profile")
	}
	return s.profile(p, user), nil
}

func (s *Service) List(ctx context.Context, actor model.Actor, page model.Pagination) ([]*model.PatientProfile, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if actor.Role == model.RolePatient {
		p, err := s.patients.GetByUserID(ctx, actor.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return []*model.PatientProfile{}, 0, nil
		}
		if err != nil {
			return nil, 0, apperrors.Persistence("get patient", err)
		}
		user, err := s.users.Get(ctx, p.UserID)
		if err != nil {
			return nil, 0, apperrors.Persistence("get user", err)
		}
		return []*model.PatientProfile{s.profile(p, user)}, 1, nil
	}

	patients, total, err := s.patients.List(ctx, page.Normalize())
	if err != nil {
		return nil, 0, apperrors.Persistence("list patients", err)
	}
	out := make([]*model.PatientProfile, 0, len(patients))
	for _, p := range patients {
		user, err := s.users.Get(ctx, p.UserID)
		if err != nil {
			return nil, 0, apperrors.Persistence("get user", err)
		}
		out = append(out, s.profile(p, user))
	}
	return out, total, nil
}

// Update patches clinical and insurance fields. Consent cannot be revoked here.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest, actor model.Actor) (*model.PatientProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RolePatient && p.UserID != actor.UserID {
		return nil, apperrors.Authorization("patients may only update their own profile")
	}

	if req.DateOfBirth != nil {
		p.DateOfBirth = req.DateOfBirth
	}
	if req.Gender != nil {
		p.Gender = *req.Gender
	}
	if req.BloodType != nil {
		p.BloodType = *req.BloodType
	}
	if req.Allergies != nil {
		p.Allergies = *req.Allergies
	}
	if req.InsuranceName != nil {
		p.InsuranceName = *req.InsuranceName
	}
	if req.InsuranceNumber != nil {
		p.InsuranceNumber = *req.InsuranceNumber
	}
	p.UpdatedAt = s.clock()

	if err := s.patients.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient")
		}
		return nil, apperrors.Persistence("update patient", err)
	}
	return s.profile(p, user), nil
}

// Delete erases the patient and its user and anonymizes their history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	return s.eraser.Erase(ctx, id, actor)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Patient, *model.User, error) {
	p, err := s.patients.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.NotFound("patient")
	}
	if err != nil {
		return nil, nil, apperrors.Persistence("get patient", err)
	}
	user, err := s.users.Get(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.NotFound("patient")
	}
	if err != nil {
		return nil, nil, apperrors.Persistence("get user", err)
	}
	return p, user, nil
}

func (s *Service) profile(p *model.Patient, user *model.User) *model.PatientProfile {
	out := &model.PatientProfile{
		Patient:   *p,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	}
	if user.NationalID != "" {
		clear, err := s.cipher.Decrypt(user.NationalID)
		if err != nil {
			s.log.Warn("national id not decryptable", "patient_id", p.ID.String())
		}
		out.NationalIDMasked = privacy.MaskIdentityNumber(clear)
	}
	return out
}
