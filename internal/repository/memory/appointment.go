package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
)

type AppointmentStore struct {
	db *DB
}

func (s *AppointmentStore) Create(ctx context.Context, appointment *model.Appointment) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	now := time.Now().UTC()
	appointment.CreatedAt, appointment.UpdatedAt = now, now
	cp := *appointment
	s.db.appointments[appointment.ID] = &cp
	return nil
}

func (s *AppointmentStore) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	a, ok := s.db.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *AppointmentStore) Update(ctx context.Context, appointment *model.Appointment) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.appointments[appointment.ID]; !ok {
		return repository.ErrNotFound
	}
	appointment.UpdatedAt = time.Now().UTC()
	cp := *appointment
	s.db.appointments[appointment.ID] = &cp
	return nil
}

func (s *AppointmentStore) List(ctx context.Context, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error) {
	if err := alive(ctx); err != nil {
		return nil, 0, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var dayStart, dayEnd time.Time
	if filter.Day != nil {
		d := filter.Day.UTC()
		dayStart = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd = dayStart.AddDate(0, 0, 1)
	}

	matched := make([]*model.Appointment, 0)
	for _, a := range s.db.appointments {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.ProfessionalID != nil && a.ProfessionalID != *filter.ProfessionalID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Day != nil && (a.ScheduledDate.Before(dayStart) || !a.ScheduledDate.Before(dayEnd)) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ScheduledDate.Equal(matched[j].ScheduledDate) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ScheduledDate.Before(matched[j].ScheduledDate)
	})
	return paginate(matched, page), len(matched), nil
}

func (s *AppointmentStore) HasConflict(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	if err := alive(ctx); err != nil {
		return false, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, a := range s.db.appointments {
		if a.ProfessionalID != professionalID || a.Status.Terminal() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

type MedicalRecordStore struct {
	db *DB
}

func (s *MedicalRecordStore) Create(ctx context.Context, record *model.MedicalRecord) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now
	cp := *record
	s.db.records[record.ID] = &cp
	return nil
}

func (s *MedicalRecordStore) Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	if err := alive(ctx); err != nil {
		return nil, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	r, ok := s.db.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MedicalRecordStore) Update(ctx context.Context, record *model.MedicalRecord) error {
	if err := alive(ctx); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.records[record.ID]; !ok {
		return repository.ErrNotFound
	}
	record.UpdatedAt = time.Now().UTC()
	cp := *record
	s.db.records[record.ID] = &cp
	return nil
}

func (s *MedicalRecordStore) List(ctx context.Context, patientID *uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error) {
	if err := alive(ctx); err != nil {
		return nil, 0, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	matched := make([]*model.MedicalRecord, 0)
	for _, r := range s.db.records {
		if patientID != nil && r.PatientID != *patientID {
			continue
		}
		cp := *r
		matched = append(matched, &cp)
	}
	// newest first, like a chart
	sort.Slice(matched, func(i, j int) bool { return matched[i].Date.After(matched[j].Date) })
	return paginate(matched, page), len(matched), nil
}
