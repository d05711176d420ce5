package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RoleNurse        Role = "NURSE"
	RoleReceptionist Role = "RECEPTIONIST"
	RolePatient      Role = "PATIENT"
	RoleTechnician   Role = "TECHNICIAN"
)

func AllRoles() []Role {
	return []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist, RolePatient, RoleTechnician}
}

func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// Clinical roles may own a professional profile.
func (r Role) Clinical() bool {
	return r == RoleDoctor || r == RoleNurse || r == RoleTechnician
}

// User represents a system user
type User struct {
	Base
	Email          string     `json:"email" db:"email"`
	PasswordHash   string     `json:"-" db:"password_hash"`
	Role           Role       `json:"role" db:"role"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	Phone          string     `json:"phone,omitempty" db:"phone"`
	NationalID     string     `json:"-" db:"national_id"`
	NationalIDHash string     `json:"-" db:"national_id_hash"`
	Active         bool       `json:"active" db:"active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Actor is the authenticated identity attached to a request.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
	Email  string    `json:"email"`
}

type RegisterRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Role       Role   `json:"role" binding:"required,oneof=ADMIN DOCTOR NURSE RECEPTIONIST PATIENT TECHNICIAN"`
	FirstName  string `json:"first_name" binding:"required,max=100"`
	LastName   string `json:"last_name" binding:"max=100"`
	Phone      string `json:"phone" binding:"max=32"`
	NationalID string `json:"national_id" binding:"omitempty,len=11,numeric"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             *User     `json:"user"`
}
