package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

const userColumns = `
	id, email, password_hash, role, first_name, last_name, phone,
	national_id, national_id_hash, active, last_login_at, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.NationalID,
		user.NationalIDHash,
		user.Active,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translate(err, "create user")
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "get user")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return nil, translate(err, "get user by email")
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET email = $1, role = $2, first_name = $3, last_name = $4, phone = $5,
			national_id = $6, national_id_hash = $7, active = $8, updated_at = $9
		WHERE id = $10
	`
	user.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.Role,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.NationalID,
		user.NationalIDHash,
		user.Active,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return translate(err, "update user")
	}
	return mustAffect(res, "update user")
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return translate(err, "touch last login")
	}
	return mustAffect(res, "touch last login")
}
