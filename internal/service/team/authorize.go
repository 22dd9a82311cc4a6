package team

import "github.com/lolplq101/valcomps/internal/domain"

// Operation enumerates guarded membership actions.
type Operation int

const (
	OpLeave Operation = iota
	OpDisband
	OpChangeRole
	OpRemoveMember
	OpRefreshCode
)

// authorize is the pure permission table for membership operations. It only
// consults the actor's role; target checks (self, captain) stay with the
// operations. The storage layer re-validates membership and capacity on
// write, so this check is a gate, not the last line of defense.
func authorize(op Operation, actor domain.Role) bool {
	switch op {
	case OpLeave:
		return actor == domain.RoleCoCaptain || actor == domain.RolePlayer
	case OpDisband, OpChangeRole, OpRefreshCode:
		return actor == domain.RoleCaptain
	case OpRemoveMember:
		return actor == domain.RoleCaptain || actor == domain.RoleCoCaptain
	}
	return false
}
