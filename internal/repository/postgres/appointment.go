package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

const appointmentColumns = `
	id, patient_id, professional_id, type, status, scheduled_date, duration,
	reason, notes, room_number, is_telemedicine, telemedicine_link,
	cancel_reason, cancelled_by, cancelled_at, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	now := time.Now().UTC()
	appointment.CreatedAt, appointment.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.ProfessionalID,
		appointment.Type,
		appointment.Status,
		appointment.ScheduledDate,
		appointment.Duration,
		appointment.Reason,
		appointment.Notes,
		appointment.RoomNumber,
		appointment.IsTelemedicine,
		appointment.TelemedicineLink,
		appointment.CancelReason,
		appointment.CancelledBy,
		appointment.CancelledAt,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	return translate(err, "create appointment")
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, translate(err, "get appointment")
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET professional_id = $1, type = $2, status = $3, scheduled_date = $4, duration = $5,
			reason = $6, notes = $7, room_number = $8, is_telemedicine = $9, telemedicine_link = $10,
			cancel_reason = $11, cancelled_by = $12, cancelled_at = $13, updated_at = $14
		WHERE id = $15
	`
	appointment.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		appointment.ProfessionalID,
		appointment.Type,
		appointment.Status,
		appointment.ScheduledDate,
		appointment.Duration,
		appointment.Reason,
		appointment.Notes,
		appointment.RoomNumber,
		appointment.IsTelemedicine,
		appointment.TelemedicineLink,
		appointment.CancelReason,
		appointment.CancelledBy,
		appointment.CancelledAt,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		return translate(err, "update appointment")
	}
	return mustAffect(res, "update appointment")
}

func appointmentWhere(filter model.AppointmentFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.ProfessionalID != nil {
		args = append(args, *filter.ProfessionalID)
		conds = append(conds, fmt.Sprintf("professional_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Day != nil {
		d := filter.Day.UTC()
		start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		args = append(args, start, start.AddDate(0, 0, 1))
		conds = append(conds, fmt.Sprintf("scheduled_date >= $%d AND scheduled_date < $%d", len(args)-1, len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error) {
	page = page.Normalize()
	where, args := appointmentWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM appointments`+where, args...); err != nil {
		return nil, 0, translate(err, "count appointments")
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments` + where +
		fmt.Sprintf(" ORDER BY scheduled_date ASC, created_at ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, translate(err, "list appointments")
	}
	return appointments, total, nil
}

func (r *appointmentRepository) HasConflict(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE professional_id = $1
			AND status NOT IN ('COMPLETED', 'CANCELLED', 'NO_SHOW')
			AND scheduled_date < $3
			AND scheduled_date + make_interval(mins => duration) > $2
			AND ($4::uuid IS NULL OR id <> $4)
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, professionalID, start, end, excludeID); err != nil {
		return false, translate(err, "check appointment conflicts")
	}
	return exists, nil
}
