package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/care-scheduler/internal/repository"
)

type userRepository struct {
	BaseRepository
}

type patientRepository struct {
	BaseRepository
}

type professionalRepository struct {
	BaseRepository
}

type appointmentRepository struct {
	BaseRepository
}

type medicalRecordRepository struct {
	BaseRepository
}

type auditRepository struct {
	BaseRepository
}

type erasureRepository struct {
	BaseRepository
}

// NewRepositories wires every store onto one connection pool.
func NewRepositories(db *sqlx.DB) repository.Repositories {
	base := NewBaseRepository(db)
	return repository.Repositories{
		Users:          &userRepository{base},
		Patients:       &patientRepository{base},
		Professionals:  &professionalRepository{base},
		Appointments:   &appointmentRepository{base},
		MedicalRecords: &medicalRecordRepository{base},
		Audit:          &auditRepository{base},
		Erasures:       &erasureRepository{base},
	}
}
