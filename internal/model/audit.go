package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionRead   AuditAction = "READ"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionLogin  AuditAction = "LOGIN"
	AuditActionLogout AuditAction = "LOGOUT"
	AuditActionExport AuditAction = "EXPORT"
	AuditActionPrint  AuditAction = "PRINT"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionRead, AuditActionUpdate, AuditActionDelete,
		AuditActionLogin, AuditActionLogout, AuditActionExport, AuditActionPrint:
		return true
	}
	return false
}

// Resource names shared by authorization and the audit trail.
const (
	ResourceAppointments   = "appointments"
	ResourcePatients       = "patients"
	ResourceMedicalRecords = "medical-records"
	ResourceProfessionals  = "professionals"
	ResourceAuditLogs      = "audit-logs"
	ResourceAuth           = "auth"
)

// AuditGlobalKey scopes sequence numbers of records that carry no resource id.
const AuditGlobalKey = "_global"

// AuditLog is an append-only audit record. ActorID holds a user id, or an
// anonymization token once the actor has been erased.
type AuditLog struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	Sequence      int64       `json:"sequence" db:"sequence"`
	ActorID       *string     `json:"actor_id" db:"actor_id"`
	Action        AuditAction `json:"action" db:"action"`
	Resource      string      `json:"resource" db:"resource"`
	ResourceID    *string     `json:"resource_id" db:"resource_id"`
	Detail        JSONMap     `json:"detail" db:"detail"`
	OriginAddress string      `json:"origin_address" db:"origin_address"`
	ClientAgent   string      `json:"client_agent" db:"client_agent"`
	Timestamp     time.Time   `json:"timestamp" db:"timestamp"`
}

// SequenceKey is the scope the record's sequence number is allocated in.
func (l *AuditLog) SequenceKey() string {
	if l.ResourceID == nil || *l.ResourceID == "" {
		return AuditGlobalKey
	}
	return *l.ResourceID
}

type AuditFilter struct {
	ActorID    string      `form:"actor_id"`
	Resource   string      `form:"resource"`
	ResourceID string      `form:"resource_id"`
	Action     AuditAction `form:"action"`
	From       *time.Time  `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time  `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	// Chronological lists oldest first instead of newest first.
	Chronological bool `form:"-"`
}
