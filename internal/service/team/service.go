package team

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/lolplq101/valcomps/internal/code"
	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/repository"
)

// InvitePrefix namespaces invite codes.
const InvitePrefix = "TEAM"

var (
	ErrNameRequired   = errors.New("team: team name is required")
	ErrCodeRequired   = errors.New("team: invite code is required")
	ErrCodeNotFound   = errors.New("team: no team found with that code")
	ErrAlreadyInTeam  = errors.New("team: leave your current team first")
	ErrNotInTeam      = errors.New("team: not in a team")
	ErrTeamFull       = errors.New("team: team is full")
	ErrNotAuthorized  = errors.New("team: insufficient permissions")
	ErrCaptainLeaving = errors.New("team: transfer captaincy or disband instead of leaving")
	ErrSelfTarget     = errors.New("team: cannot target yourself")
	ErrTargetCaptain  = errors.New("team: the captain cannot be targeted")
	ErrInvalidRole    = errors.New("team: invalid role")
	ErrMemberNotFound = errors.New("team: member not found")
)

// Actor identifies the caller plus the profile snapshot written into
// membership records.
type Actor struct {
	UID         string
	DisplayName string
	PhotoURL    string
}

// Publisher pushes membership events to a team's connected sessions.
type Publisher interface {
	Broadcast(teamID string, payload []byte)
}

// Service owns the team membership protocol: create, join, leave, disband,
// role changes, member removal and invite-code rotation. Permission checks
// run here and capacity/duplication checks run again inside the repository's
// conditional write, so a stale read can never oversubscribe a team.
type Service struct {
	teams        repository.TeamRepository
	events       Publisher
	logger       *slog.Logger
	memberCap    int
	codeAttempts int
}

// New constructs a Service.
func New(teams repository.TeamRepository, events Publisher, logger *slog.Logger, memberCap, codeAttempts int) Service {
	if memberCap <= 0 {
		memberCap = domain.MaxTeamMembers
	}
	return Service{teams: teams, events: events, logger: logger, memberCap: memberCap, codeAttempts: codeAttempts}
}

// Create founds a team with the actor as captain and a fresh invite code.
func (s Service) Create(ctx context.Context, actor Actor, name string) (*domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if _, err := s.myTeam(ctx, actor.UID); err == nil {
		return nil, ErrAlreadyInTeam
	} else if !errors.Is(err, ErrNotInTeam) {
		return nil, err
	}

	inviteCode, err := code.GenerateUnique(ctx, InvitePrefix, code.DefaultLength, s.codeAttempts, s.teams.InviteCodeTaken)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	team := &domain.Team{
		ID:         uuid.NewString(),
		Name:       name,
		InviteCode: inviteCode,
		CreatedBy:  actor.UID,
		CreatedAt:  now,
		Members: map[string]domain.Member{
			actor.UID: {
				Role:        domain.RoleCaptain,
				DisplayName: actor.DisplayName,
				PhotoURL:    actor.PhotoURL,
				JoinedAt:    now,
			},
		},
	}
	if err := s.teams.CreateTeam(ctx, team); err != nil {
		return nil, err
	}
	s.logger.Info("team created", "team_id", team.ID, "captain_uid", actor.UID)
	return team, nil
}

// Join adds the actor as a player on the team behind the invite code.
// Joining a team the actor already belongs to is idempotent: the existing
// membership is returned untouched, so a captain re-entering their own code
// is neither duplicated nor downgraded.
func (s Service) Join(ctx context.Context, actor Actor, inviteCode string) (*domain.Team, error) {
	inviteCode = code.Normalize(inviteCode)
	if inviteCode == "" {
		return nil, ErrCodeRequired
	}

	target, err := s.teams.GetTeamByInviteCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if target.MemberRole(actor.UID) != "" {
		return target, nil
	}
	if current, err := s.myTeam(ctx, actor.UID); err == nil && current.ID != target.ID {
		return nil, ErrAlreadyInTeam
	} else if err != nil && !errors.Is(err, ErrNotInTeam) {
		return nil, err
	}

	member := domain.Member{
		Role:        domain.RolePlayer,
		DisplayName: actor.DisplayName,
		PhotoURL:    actor.PhotoURL,
		JoinedAt:    time.Now().UTC(),
	}
	if err := s.teams.AddMember(ctx, target.ID, actor.UID, member, s.memberCap); err != nil {
		switch {
		case errors.Is(err, repository.ErrTeamFull):
			return nil, ErrTeamFull
		case errors.Is(err, repository.ErrAlreadyMember):
			return s.teams.GetTeamByID(ctx, target.ID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	joined, err := s.teams.GetTeamByID(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("member joined", "team_id", joined.ID, "uid", actor.UID)
	s.publish(joined.ID, event{Type: EventMemberJoined, UID: actor.UID, DisplayName: actor.DisplayName})
	return joined, nil
}

// Leave removes the actor from their team. Captains are refused: captaincy
// has to be handed off or the team disbanded first.
func (s Service) Leave(ctx context.Context, actorUID string) error {
	team, err := s.myTeam(ctx, actorUID)
	if err != nil {
		return err
	}
	if !authorize(OpLeave, team.MemberRole(actorUID)) {
		return ErrCaptainLeaving
	}
	if err := s.teams.RemoveMember(ctx, team.ID, actorUID); err != nil {
		return err
	}
	s.logger.Info("member left", "team_id", team.ID, "uid", actorUID)
	s.publish(team.ID, event{Type: EventMemberLeft, UID: actorUID})
	return nil
}

// Disband deletes the team permanently. Captain only.
func (s Service) Disband(ctx context.Context, actorUID string) error {
	team, err := s.myTeam(ctx, actorUID)
	if err != nil {
		return err
	}
	if !authorize(OpDisband, team.MemberRole(actorUID)) {
		return ErrNotAuthorized
	}
	if err := s.teams.DeleteTeam(ctx, team.ID); err != nil {
		return err
	}
	s.logger.Info("team disbanded", "team_id", team.ID, "uid", actorUID)
	s.publish(team.ID, event{Type: EventTeamDisbanded, UID: actorUID})
	return nil
}

// ChangeMemberRole sets another member's role. Captain only, never on
// yourself, and captaincy itself is not assignable this way: there is no
// captain-transfer path.
func (s Service) ChangeMemberRole(ctx context.Context, actorUID, targetUID string, newRole domain.Role) (*domain.Team, error) {
	if targetUID == actorUID {
		return nil, ErrSelfTarget
	}
	if !newRole.Valid() || newRole == domain.RoleCaptain {
		return nil, ErrInvalidRole
	}
	team, err := s.myTeam(ctx, actorUID)
	if err != nil {
		return nil, err
	}
	if !authorize(OpChangeRole, team.MemberRole(actorUID)) {
		return nil, ErrNotAuthorized
	}
	target, ok := team.Members[targetUID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	if err := s.teams.UpdateMemberRole(ctx, team.ID, targetUID, newRole); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	target.Role = newRole
	team.Members[targetUID] = target
	s.logger.Info("member role changed", "team_id", team.ID, "uid", targetUID, "role", string(newRole))
	s.publish(team.ID, event{Type: EventRoleChanged, UID: targetUID, Role: string(newRole)})
	return team, nil
}

// RemoveMember kicks another member. Captains and co-captains may do this;
// the captain themselves can never be removed.
func (s Service) RemoveMember(ctx context.Context, actorUID, targetUID string) (*domain.Team, error) {
	if targetUID == actorUID {
		return nil, ErrSelfTarget
	}
	team, err := s.myTeam(ctx, actorUID)
	if err != nil {
		return nil, err
	}
	if !authorize(OpRemoveMember, team.MemberRole(actorUID)) {
		return nil, ErrNotAuthorized
	}
	target, ok := team.Members[targetUID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	if target.Role == domain.RoleCaptain {
		return nil, ErrTargetCaptain
	}
	if err := s.teams.RemoveMember(ctx, team.ID, targetUID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	delete(team.Members, targetUID)
	s.logger.Info("member removed", "team_id", team.ID, "uid", targetUID, "by", actorUID)
	s.publish(team.ID, event{Type: EventMemberRemoved, UID: targetUID})
	return team, nil
}

// RefreshInviteCode rotates the team's invite code; the old one stops
// working immediately. Captain only.
func (s Service) RefreshInviteCode(ctx context.Context, actorUID string) (*domain.Team, error) {
	team, err := s.myTeam(ctx, actorUID)
	if err != nil {
		return nil, err
	}
	if !authorize(OpRefreshCode, team.MemberRole(actorUID)) {
		return nil, ErrNotAuthorized
	}
	newCode, err := code.GenerateUnique(ctx, InvitePrefix, code.DefaultLength, s.codeAttempts, s.teams.InviteCodeTaken)
	if err != nil {
		return nil, err
	}
	if err := s.teams.UpdateInviteCode(ctx, team.ID, newCode); err != nil {
		return nil, err
	}
	team.InviteCode = newCode
	s.logger.Info("invite code refreshed", "team_id", team.ID)
	s.publish(team.ID, event{Type: EventCodeRefreshed, UID: actorUID})
	return team, nil
}

// MyTeam returns the caller's team, or (nil, nil) when unaffiliated.
func (s Service) MyTeam(ctx context.Context, actorUID string) (*domain.Team, error) {
	team, err := s.myTeam(ctx, actorUID)
	if errors.Is(err, ErrNotInTeam) {
		return nil, nil
	}
	return team, err
}

func (s Service) myTeam(ctx context.Context, actorUID string) (*domain.Team, error) {
	team, err := s.teams.GetTeamByMember(ctx, actorUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotInTeam
		}
		return nil, err
	}
	return team, nil
}
