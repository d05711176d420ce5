// Package memory implements the repositories on process memory. It backs the
// test suites and the `storage.driver: memory` development mode.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository"
)

// DB holds every table behind one lock so multi-table operations such as
// erasure stay atomic.
type DB struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]*model.User
	patients      map[uuid.UUID]*model.Patient
	professionals map[uuid.UUID]*model.Professional
	appointments  map[uuid.UUID]*model.Appointment
	records       map[uuid.UUID]*model.MedicalRecord
	audit         []*model.AuditLog
	sequences     map[string]int64
	erasures      map[uuid.UUID]*model.Erasure
}

func New() *DB {
	return &DB{
		users:         make(map[uuid.UUID]*model.User),
		patients:      make(map[uuid.UUID]*model.Patient),
		professionals: make(map[uuid.UUID]*model.Professional),
		appointments:  make(map[uuid.UUID]*model.Appointment),
		records:       make(map[uuid.UUID]*model.MedicalRecord),
		sequences:     make(map[string]int64),
		erasures:      make(map[uuid.UUID]*model.Erasure),
	}
}

// Repositories returns views over the shared tables.
func (db *DB) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:          &UserStore{db: db},
		Patients:       &PatientStore{db: db},
		Professionals:  &ProfessionalStore{db: db},
		Appointments:   &AppointmentStore{db: db},
		MedicalRecords: &MedicalRecordStore{db: db},
		Audit:          &AuditStore{db: db},
		Erasures:       &ErasureStore{db: db},
	}
}

func paginate[T any](items []T, page model.Pagination) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// alive fails fast when the caller's deadline has already passed.
func alive(ctx context.Context) error {
	return ctx.Err()
}
