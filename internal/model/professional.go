package model

import (
	"github.com/google/uuid"
)

// Professional is a bookable clinician. Its availability for new bookings
// follows the owning user's Active flag.
type Professional struct {
	Base
	UserID                uuid.UUID `db:"user_id" json:"user_id"`
	Specialization        string    `db:"specialization" json:"specialization"`
	LicenseNumber         string    `db:"license_number" json:"license_number"`
	LicenseState          string    `db:"license_state" json:"license_state,omitempty"`
	TelemedicineAvailable bool      `db:"telemedicine_available" json:"telemedicine_available"`
}

type CreateProfessionalRequest struct {
	UserID                uuid.UUID `json:"user_id" binding:"required"`
	Specialization        string    `json:"specialization" binding:"required,max=100"`
	LicenseNumber         string    `json:"license_number" binding:"required,max=32"`
	LicenseState          string    `json:"license_state" binding:"max=2"`
	TelemedicineAvailable bool      `json:"telemedicine_available"`
}

type UpdateProfessionalRequest struct {
	Specialization        *string `json:"specialization" binding:"omitempty,max=100"`
	LicenseState          *string `json:"license_state" binding:"omitempty,max=2"`
	TelemedicineAvailable *bool   `json:"telemedicine_available"`
}
