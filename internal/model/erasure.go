package model

import (
	"time"

	"github.com/google/uuid"
)

// Erasure is the tombstone left behind when a patient and its user are
// deleted. RecordedAt is set once the erasure audit record is stored;
// CompletedAt stays nil until the audit history has been anonymized.
type Erasure struct {
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	Token       string     `db:"token" json:"token"`
	RequestedBy uuid.UUID  `db:"requested_by" json:"requested_by"`
	RequestedAt time.Time  `db:"requested_at" json:"requested_at"`
	RecordedAt  *time.Time `db:"recorded_at" json:"recorded_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

func (e *Erasure) Pending() bool {
	return e.CompletedAt == nil
}
