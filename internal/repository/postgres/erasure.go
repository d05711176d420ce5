package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

const erasureColumns = `patient_id, user_id, token, requested_by, requested_at, recorded_at, completed_at`

func (r *erasureRepository) Erase(ctx context.Context, erasure *model.Erasure) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, erasure.PatientID)
		if err != nil {
			return translate(err, "delete patient")
		}
		if err := mustAffect(res, "delete patient"); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, erasure.UserID); err != nil {
			return translate(err, "delete user")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO erasures (`+erasureColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			erasure.PatientID,
			erasure.UserID,
			erasure.Token,
			erasure.RequestedBy,
			erasure.RequestedAt,
			erasure.RecordedAt,
			erasure.CompletedAt,
		)
		return translate(err, "insert erasure")
	})
}

func (r *erasureRepository) Get(ctx context.Context, patientID uuid.UUID) (*model.Erasure, error) {
	var erasure model.Erasure
	if err := r.db.GetContext(ctx, &erasure, `SELECT `+erasureColumns+` FROM erasures WHERE patient_id = $1`, patientID); err != nil {
		return nil, translate(err, "get erasure")
	}
	return &erasure, nil
}

func (r *erasureRepository) ListPending(ctx context.Context) ([]*model.Erasure, error) {
	erasures := []*model.Erasure{}
	query := `SELECT ` + erasureColumns + ` FROM erasures WHERE completed_at IS NULL ORDER BY requested_at`
	if err := r.db.SelectContext(ctx, &erasures, query); err != nil {
		return nil, translate(err, "list pending erasures")
	}
	return erasures, nil
}

func (r *erasureRepository) MarkRecorded(ctx context.Context, patientID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE erasures SET recorded_at = $1 WHERE patient_id = $2`, at, patientID)
	if err != nil {
		return translate(err, "record erasure")
	}
	return mustAffect(res, "record erasure")
}

func (r *erasureRepository) MarkCompleted(ctx context.Context, patientID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE erasures SET completed_at = $1 WHERE patient_id = $2`, at, patientID)
	if err != nil {
		return translate(err, "complete erasure")
	}
	return mustAffect(res, "complete erasure")
}
