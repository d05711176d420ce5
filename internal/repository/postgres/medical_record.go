package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

const medicalRecordColumns = `
	id, patient_id, professional_id, appointment_id, date, diagnosis,
	symptoms, treatment_plan, notes, created_at, updated_at`

func (r *medicalRecordRepository) Create(ctx context.Context, record *model.MedicalRecord) error {
	query := `
		INSERT INTO medical_records (` + medicalRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.PatientID,
		record.ProfessionalID,
		record.AppointmentID,
		record.Date,
		record.Diagnosis,
		record.Symptoms,
		record.TreatmentPlan,
		record.Notes,
		record.CreatedAt,
		record.UpdatedAt,
	)
	return translate(err, "create medical record")
}

func (r *medicalRecordRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	var record model.MedicalRecord
	if err := r.db.GetContext(ctx, &record, `SELECT `+medicalRecordColumns+` FROM medical_records WHERE id = $1`, id); err != nil {
		return nil, translate(err, "get medical record")
	}
	return &record, nil
}

func (r *medicalRecordRepository) Update(ctx context.Context, record *model.MedicalRecord) error {
	query := `
		UPDATE medical_records
		SET diagnosis = $1, symptoms = $2, treatment_plan = $3, notes = $4, updated_at = $5
		WHERE id = $6
	`
	record.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		record.Diagnosis,
		record.Symptoms,
		record.TreatmentPlan,
		record.Notes,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return translate(err, "update medical record")
	}
	return mustAffect(res, "update medical record")
}

func (r *medicalRecordRepository) List(ctx context.Context, patientID *uuid.UUID, page model.Pagination) ([]*model.MedicalRecord, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM medical_records WHERE ($1::uuid IS NULL OR patient_id = $1)`, patientID); err != nil {
		return nil, 0, translate(err, "count medical records")
	}

	query := `SELECT ` + medicalRecordColumns + ` FROM medical_records
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		ORDER BY date DESC LIMIT $2 OFFSET $3`

	records := []*model.MedicalRecord{}
	if err := r.db.SelectContext(ctx, &records, query, patientID, page.Limit, page.Offset()); err != nil {
		return nil, 0, translate(err, "list medical records")
	}
	return records, total, nil
}
