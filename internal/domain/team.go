package domain

import "time"

// Role grades a member's permission scope within a team.
type Role string

const (
	RoleCaptain   Role = "captain"
	RoleCoCaptain Role = "co-captain"
	RolePlayer    Role = "player"
)

// Valid reports whether the role is one of the known grades.
func (r Role) Valid() bool {
	switch r {
	case RoleCaptain, RoleCoCaptain, RolePlayer:
		return true
	}
	return false
}

// MaxTeamMembers caps a team at 5 core players plus 5 substitutes.
const MaxTeamMembers = 10

// Team is a roster group joinable through an invite code.
type Team struct {
	ID         string
	Name       string
	InviteCode string
	CreatedBy  string
	CreatedAt  time.Time
	Members    map[string]Member
}

// Member links a user to a team with a role and profile snapshot.
type Member struct {
	Role        Role
	DisplayName string
	PhotoURL    string
	JoinedAt    time.Time
}

// MemberRole returns the caller's role, or "" when not a member.
func (t *Team) MemberRole(uid string) Role {
	if t == nil {
		return ""
	}
	if m, ok := t.Members[uid]; ok {
		return m.Role
	}
	return ""
}

// Full reports whether the team is at the member cap.
func (t *Team) Full() bool {
	return len(t.Members) >= MaxTeamMembers
}
