package model

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	Base
	UserID          uuid.UUID  `db:"user_id" json:"user_id"`
	DateOfBirth     *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender          string     `db:"gender" json:"gender,omitempty"`
	BloodType       string     `db:"blood_type" json:"blood_type,omitempty"`
	Allergies       string     `db:"allergies" json:"allergies,omitempty"`
	InsuranceName   string     `db:"insurance_name" json:"insurance_name,omitempty"`
	InsuranceNumber string     `db:"insurance_number" json:"insurance_number,omitempty"`
	Consent         bool       `db:"consent" json:"consent"`
	ConsentDate     *time.Time `db:"consent_date" json:"consent_date,omitempty"`
}

// PatientProfile joins the patient row with its owning user for display.
type PatientProfile struct {
	Patient
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	// NationalIDMasked never carries the clear value.
	NationalIDMasked string `json:"national_id,omitempty"`
}

type CreatePatientRequest struct {
	UserID          uuid.UUID  `json:"user_id" binding:"required"`
	DateOfBirth     *time.Time `json:"date_of_birth"`
	Gender          string     `json:"gender" binding:"omitempty,oneof=MALE FEMALE OTHER"`
	BloodType       string     `json:"blood_type" binding:"omitempty,max=3"`
	Allergies       string     `json:"allergies" binding:"max=2000"`
	InsuranceName   string     `json:"insurance_name" binding:"max=200"`
	InsuranceNumber string     `json:"insurance_number" binding:"max=64"`
	Consent         bool       `json:"consent"`
}

type UpdatePatientRequest struct {
	DateOfBirth     *time.Time `json:"date_of_birth"`
	Gender          *string    `json:"gender" binding:"omitempty,oneof=MALE FEMALE OTHER"`
	BloodType       *string    `json:"blood_type" binding:"omitempty,max=3"`
	Allergies       *string    `json:"allergies" binding:"omitempty,max=2000"`
	InsuranceName   *string    `json:"insurance_name" binding:"omitempty,max=200"`
	InsuranceNumber *string    `json:"insurance_number" binding:"omitempty,max=64"`
}
