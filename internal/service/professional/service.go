package professional

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
	apperrors "github.com/jwalitptl/care-scheduler/pkg/errors"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

type Service struct {
	professionals repository.ProfessionalRepository
	users         repository.UserRepository
	timeout       time.Duration
	log           *logger.Logger
}

func NewService(repos repository.Repositories, timeout time.Duration, log *logger.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		professionals: repos.Professionals,
		users:         repos.Users,
		timeout:       timeout,
		log:           log.With("component", "professionals"),
	}
}

// Create registers a clinical user as bookable.
func (s *Service) Create(ctx context.Context, req *model.CreateProfessionalRequest) (*model.Professional, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.Get(ctx, req.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, apperrors.Persistence("get user", err)
	}
	if !user.Role.Clinical() {
		return nil, apperrors.Validationf("role %s cannot hold a professional profile", user.Role)
	}

	p := &model.Professional{
		UserID:                user.ID,
		Specialization:        req.Specialization,
		LicenseNumber:         req.LicenseNumber,
		LicenseState:          req.LicenseState,
		TelemedicineAvailable: req.TelemedicineAvailable,
	}
	switch err := s.professionals.Create(ctx, p); {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperrors.Validation("professional profile or license already registered")
	case err != nil:
		return nil, apperrors.Persistence("create professional", err)
	}
	s.log.Info("professional created", "professional_id", p.ID.String())
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Professional, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.professionals.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("professional")
	}
	if err != nil {
		return nil, apperrors.Persistence("get professional", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, page model.Pagination) ([]*model.Professional, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, total, err := s.professionals.List(ctx, page.Normalize())
	if err != nil {
		return nil, 0, apperrors.Persistence("list professionals", err)
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateProfessionalRequest) (*model.Professional, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if req.Specialization != nil {
		p.Specialization = *req.Specialization
	}
	if req.LicenseState != nil {
		p.LicenseState = *req.LicenseState
	}
	if req.TelemedicineAvailable != nil {
		p.TelemedicineAvailable = *req.TelemedicineAvailable
	}
	if err := s.professionals.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("professional")
		}
		return nil, apperrors.Persistence("update professional", err)
	}
	return p, nil
}
