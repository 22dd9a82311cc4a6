package repository

import (
	"context"

	"github.com/lolplq101/valcomps/internal/domain"
)

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// TeamRepository manages teams and memberships. AddMember is the atomic
// conditional write the membership protocol depends on: it admits the member
// only while the cap holds and the uid is absent, under a row lock, so two
// concurrent joins cannot both pass the capacity check.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	GetTeamByInviteCode(ctx context.Context, code string) (*domain.Team, error)
	GetTeamByMember(ctx context.Context, uid string) (*domain.Team, error)
	InviteCodeTaken(ctx context.Context, code string) (bool, error)
	AddMember(ctx context.Context, teamID, uid string, member domain.Member, cap int) error
	RemoveMember(ctx context.Context, teamID, uid string) error
	UpdateMemberRole(ctx context.Context, teamID, uid string, role domain.Role) error
	UpdateInviteCode(ctx context.Context, teamID, newCode string) error
	DeleteTeam(ctx context.Context, teamID string) error
}

// RosterRepository stores each user's roster wholesale under a fixed key.
type RosterRepository interface {
	SaveRoster(ctx context.Context, uid string, roster *domain.Roster) error
	GetRoster(ctx context.Context, uid string) (*domain.Roster, error)
}

// CompRepository persists users' saved comps and the share-code backlink.
type CompRepository interface {
	CreateComp(ctx context.Context, comp *domain.Comp) error
	GetComp(ctx context.Context, ownerUID, compID string) (*domain.Comp, error)
	ListCompsByOwner(ctx context.Context, ownerUID string) ([]domain.Comp, error)
	SetShareCode(ctx context.Context, ownerUID, compID, shareCode string) error
}

// SharedCompRepository stores the public write-once share records.
type SharedCompRepository interface {
	PublishSharedComp(ctx context.Context, shared *domain.SharedComp) error
	GetSharedComp(ctx context.Context, code string) (*domain.SharedComp, error)
	ShareCodeTaken(ctx context.Context, code string) (bool, error)
}
