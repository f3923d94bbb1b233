package rbac

import "coparent/api/internal/store"

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleParent Role = "parent"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionPropose Action = "propose"
	ActionInitial Action = "initial"
	ActionRestore Action = "restore"
	ActionExport  Action = "export"
	ActionAdmin   Action = "admin"
)

// Viewers are mediators or counsel with read-only access.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleParent:
		return action == ActionRead || action == ActionPropose || action == ActionInitial || action == ActionRestore || action == ActionExport
	case RoleViewer:
		return action == ActionRead || action == ActionExport
	default:
		return false
	}
}

// CanInitialFor reports whether a caller acting for actor may set target's
// initials. Parents only ever initial for themselves.
func CanInitialFor(role Role, actor, target store.Party) bool {
	if !target.Valid() || !Can(role, ActionInitial) {
		return false
	}
	return role == RoleAdmin || actor == target
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleParent, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
