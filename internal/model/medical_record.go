package model

import (
	"time"

	"github.com/google/uuid"
)

// MedicalRecord is a clinical note. Notes is stored encrypted and only
// decrypted on the way out of the medical service.
type MedicalRecord struct {
	Base
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProfessionalID uuid.UUID  `db:"professional_id" json:"professional_id"`
	AppointmentID  *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Date           time.Time  `db:"date" json:"date"`
	Diagnosis      string     `db:"diagnosis" json:"diagnosis,omitempty"`
	Symptoms       string     `db:"symptoms" json:"symptoms,omitempty"`
	TreatmentPlan  string     `db:"treatment_plan" json:"treatment_plan,omitempty"`
	Notes          string     `db:"notes" json:"notes,omitempty"`
}

type CreateMedicalRecordRequest struct {
	PatientID      uuid.UUID  `json:"patient_id" binding:"required"`
	ProfessionalID uuid.UUID  `json:"professional_id" binding:"required"`
	AppointmentID  *uuid.UUID `json:"appointment_id"`
	Date           *time.Time `json:"date"`
	Diagnosis      string     `json:"diagnosis" binding:"max=2000"`
	Symptoms       string     `json:"symptoms" binding:"max=2000"`
	TreatmentPlan  string     `json:"treatment_plan" binding:"max=4000"`
	Notes          string     `json:"notes" binding:"max=8000"`
}

type UpdateMedicalRecordRequest struct {
	Diagnosis     *string `json:"diagnosis" binding:"omitempty,max=2000"`
	Symptoms      *string `json:"symptoms" binding:"omitempty,max=2000"`
	TreatmentPlan *string `json:"treatment_plan" binding:"omitempty,max=4000"`
	Notes         *string `json:"notes" binding:"omitempty,max=8000"`
}
