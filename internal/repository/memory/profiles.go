package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
)

type UserStore struct {
	db *DB
}

func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	s.db.users[user.ID] = &cp
	return nil
}

func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	cp := *user
	s.db.users[user.ID] = &cp
	return nil
}

func (s *UserStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type PatientStore struct {
	db *DB
}

func (s *PatientStore) Create(ctx context.Context, patient *model.Patient) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, p := range s.db.patients {
		if p.UserID == patient.UserID {
			return repository.ErrDuplicate
		}
	}
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	now := time.Now().UTC()
	patient.CreatedAt, patient.UpdatedAt = now, now
	cp := *patient
	s.db.patients[patient.ID] = &cp
	return nil
}

func (s *PatientStore) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	p, ok := s.db.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *PatientStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, p := range s.db.patients {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *PatientStore) Update(ctx context.Context, patient *model.Patient) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.patients[patient.ID]; !ok {
		return repository.ErrNotFound
	}
	patient.UpdatedAt = time.Now().UTC()
	cp := *patient
	s.db.patients[patient.ID] = &cp
	return nil
}

func (s *PatientStore) List(ctx context.Context, page model.Pagination) ([]*model.Patient, int, error) {
	if err := alive(ctx); err != nil {
		return nil, 0, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	all := make([]*model.Patient, 0, len(s.db.patients))
	for _, p := range s.db.patients {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return paginate(all, page), len(all), nil
}

type ProfessionalStore struct {
	db *DB
}

func (s *ProfessionalStore) Create(ctx context.Context, professional *model.Professional) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, p := range s.db.professionals {
		if p.UserID == professional.UserID || p.LicenseNumber == professional.LicenseNumber {
			return repository.ErrDuplicate
		}
	}
	if professional.ID == uuid.Nil {
		professional.ID = uuid.New()
	}
	now := time.Now().UTC()
	professional.CreatedAt, professional.UpdatedAt = now, now
	cp := *professional
	s.db.professionals[professional.ID] = &cp
	return nil
}

func (s *ProfessionalStore) Get(ctx context.Context, id uuid.UUID) (*model.Professional, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	p, ok := s.db.professionals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *ProfessionalStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Professional, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, p := range s.db.professionals {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ProfessionalStore) Update(ctx context.Context, professional *model.Professional) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.professionals[professional.ID]; !ok {
		return repository.ErrNotFound
	}
	professional.UpdatedAt = time.Now().UTC()
	cp := *professional
	s.db.professionals[professional.ID] = &cp
	return nil
}

func (s *ProfessionalStore) List(ctx context.Context, page model.Pagination) ([]*model.Professional, int, error) {
	if err := alive(ctx); err != nil {
		return nil, 0, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	all := make([]*model.Professional, 0, len(s.db.professionals))
	for _, p := range s.db.professionals {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return paginate(all, page), len(all), nil
}
