// Package rbac decides whether a role may perform an action on a resource.
// The matrix is compiled in; anything not listed is denied.
package rbac

import (
	"sort"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

type Action string

const (
	ActionCreate     Action = "CREATE"
	ActionRead       Action = "READ"
	ActionUpdate     Action = "UPDATE"
	ActionDelete     Action = "DELETE"
	ActionExport     Action = "EXPORT"
	ActionCancel     Action = "CANCEL"
	ActionTransition Action = "TRANSITION"
)

type permission struct {
	resource string
	action   Action
}

var (
	everyone = model.AllRoles()
	staff    = []model.Role{model.RoleAdmin, model.RoleDoctor, model.RoleNurse, model.RoleReceptionist}
)

var matrix = map[permission][]model.Role{
	{model.ResourceAppointments, ActionRead}:       {model.RoleAdmin, model.RoleDoctor, model.RoleNurse, model.RoleReceptionist, model.RolePatient},
	{model.ResourceAppointments, ActionCreate}:     {model.RoleAdmin, model.RoleReceptionist, model.RolePatient},
	{model.ResourceAppointments, ActionUpdate}:     {model.RoleAdmin, model.RoleReceptionist},
	{model.ResourceAppointments, ActionCancel}:     everyone,
	{model.ResourceAppointments, ActionTransition}: staff,

	{model.ResourcePatients, ActionRead}:   {model.RoleAdmin, model.RoleDoctor, model.RoleNurse, model.RoleReceptionist, model.RolePatient},
	{model.ResourcePatients, ActionCreate}: {model.RoleAdmin, model.RoleReceptionist},
	{model.ResourcePatients, ActionUpdate}: {model.RoleAdmin, model.RoleReceptionist, model.RolePatient},
	{model.ResourcePatients, ActionDelete}: {model.RoleAdmin},

	{model.ResourceMedicalRecords, ActionRead}:   {model.RoleAdmin, model.RoleDoctor, model.RoleNurse, model.RolePatient},
	{model.ResourceMedicalRecords, ActionCreate}: {model.RoleAdmin, model.RoleDoctor},
	{model.ResourceMedicalRecords, ActionUpdate}: {model.RoleAdmin, model.RoleDoctor},

	{model.ResourceProfessionals, ActionRead}:   everyone,
	{model.ResourceProfessionals, ActionCreate}: {model.RoleAdmin},
	{model.ResourceProfessionals, ActionUpdate}: {model.RoleAdmin},

	{model.ResourceAuditLogs, ActionRead}:   {model.RoleAdmin},
	{model.ResourceAuditLogs, ActionExport}: {model.RoleAdmin},
}

// Authorize is a pure lookup. Unknown roles, resources and actions are denied.
func Authorize(role model.Role, resource string, action Action) bool {
	for _, allowed := range matrix[permission{resource, action}] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Allowed lists the roles permitted for (resource, action), sorted.
func Allowed(resource string, action Action) []model.Role {
	roles := append([]model.Role(nil), matrix[permission{resource, action}]...)
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// AuditAction maps an authorization action onto the audit vocabulary.
func (a Action) AuditAction() model.AuditAction {
	switch a {
	case ActionCreate:
		return model.AuditActionCreate
	case ActionRead:
		return model.AuditActionRead
	case ActionDelete:
		return model.AuditActionDelete
	case ActionExport:
		return model.AuditActionExport
	default:
		// cancel and status transitions are updates of the appointment
		return model.AuditActionUpdate
	}
}
