package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

const professionalColumns = `
	id, user_id, specialization, license_number, license_state,
	telemedicine_available, created_at, updated_at`

func (r *professionalRepository) Create(ctx context.Context, professional *model.Professional) error {
	query := `
		INSERT INTO professionals (` + professionalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if professional.ID == uuid.Nil {
		professional.ID = uuid.New()
	}
	now := time.Now().UTC()
	professional.CreatedAt, professional.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, query,
		professional.ID,
		professional.UserID,
		professional.Specialization,
		professional.LicenseNumber,
		professional.LicenseState,
		professional.TelemedicineAvailable,
		professional.CreatedAt,
		professional.UpdatedAt,
	)
	return translate(err, "create professional")
}

func (r *professionalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Professional, error) {
	var professional model.Professional
	if err := r.db.GetContext(ctx, &professional, `SELECT `+professionalColumns+` FROM professionals WHERE id = $1`, id); err != nil {
		return nil, translate(err, "get professional")
	}
	return &professional, nil
}

func (r *professionalRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Professional, error) {
	var professional model.Professional
	if err := r.db.GetContext(ctx, &professional, `SELECT `+professionalColumns+` FROM professionals WHERE user_id = $1`, userID); err != nil {
		return nil, translate(err, "get professional by user")
	}
	return &professional, nil
}

func (r *professionalRepository) Update(ctx context.Context, professional *model.Professional) error {
	query := `
		UPDATE professionals
		SET specialization = $1, license_state = $2, telemedicine_available = $3, updated_at = $4
		WHERE id = $5
	`
	professional.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		professional.Specialization,
		professional.LicenseState,
		professional.TelemedicineAvailable,
		professional.UpdatedAt,
		professional.ID,
	)
	if err != nil {
		return translate(err, "update professional")
	}
	return mustAffect(res, "update professional")
}

func (r *professionalRepository) List(ctx context.Context, page model.Pagination) ([]*model.Professional, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM professionals`); err != nil {
		return nil, 0, translate(err, "count professionals")
	}

	professionals := []*model.Professional{}
	query := `SELECT ` + professionalColumns + ` FROM professionals ORDER BY created_at ASC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &professionals, query, page.Limit, page.Offset()); err != nil {
		return nil, 0, translate(err, "list professionals")
	}
	return professionals, total, nil
}
