package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

const patientColumns = `
	id, user_id, date_of_birth, gender, blood_type, allergies,
	insurance_name, insurance_number, consent, consent_date, created_at, updated_at`

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	now := time.Now().UTC()
	patient.CreatedAt, patient.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, query,
		patient.ID,
		patient.UserID,
		patient.DateOfBirth,
		patient.Gender,
		patient.BloodType,
		patient.Allergies,
		patient.InsuranceName,
		patient.InsuranceNumber,
		patient.Consent,
		patient.ConsentDate,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	return translate(err, "create patient")
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id); err != nil {
		return nil, translate(err, "get patient")
	}
	return &patient, nil
}

func (r *patientRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, `SELECT `+patientColumns+` FROM patients WHERE user_id = $1`, userID); err != nil {
		return nil, translate(err, "get patient by user")
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET date_of_birth = $1, gender = $2, blood_type = $3, allergies = $4,
			insurance_name = $5, insurance_number = $6, consent = $7, consent_date = $8, updated_at = $9
		WHERE id = $10
	`
	patient.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		patient.DateOfBirth,
		patient.Gender,
		patient.BloodType,
		patient.Allergies,
		patient.InsuranceName,
		patient.InsuranceNumber,
		patient.Consent,
		patient.ConsentDate,
		patient.UpdatedAt,
		patient.ID,
	)
	if err != nil {
		return translate(err, "update patient")
	}
	return mustAffect(res, "update patient")
}

func (r *patientRepository) List(ctx context.Context, page model.Pagination) ([]*model.Patient, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients`); err != nil {
		return nil, 0, translate(err, "count patients")
	}

	patients := []*model.Patient{}
	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY created_at ASC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &patients, query, page.Limit, page.Offset()); err != nil {
		return nil, 0, translate(err, "list patients")
	}
	return patients, total, nil
}
