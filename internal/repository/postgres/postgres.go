package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository       = (*Repository)(nil)
	_ repository.TeamRepository       = (*Repository)(nil)
	_ repository.RosterRepository     = (*Repository)(nil)
	_ repository.CompRepository       = (*Repository)(nil)
	_ repository.SharedCompRepository = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, display_name, photo_url, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.DisplayName, user.PhotoURL, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, display_name, photo_url, password_hash, created_at FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, display_name, photo_url, password_hash, created_at FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateTeam stores the team row and its founding members atomically.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const teamInsert = `INSERT INTO teams (id, name, invite_code, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, teamInsert, team.ID, team.Name, team.InviteCode, team.CreatedBy, team.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}
	const memberInsert = `INSERT INTO team_members (team_id, uid, role, display_name, photo_url, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for uid, member := range team.Members {
		if _, err := tx.Exec(ctx, memberInsert, team.ID, uid, string(member.Role), member.DisplayName, member.PhotoURL, member.JoinedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetTeamByID returns a team with its member map.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT id, name, invite_code, created_by, created_at FROM teams WHERE id = $1`
	return r.loadTeam(ctx, query, teamID)
}

// GetTeamByInviteCode resolves an invite code. Codes are stored upper-cased;
// normalization happens before the call.
func (r *Repository) GetTeamByInviteCode(ctx context.Context, inviteCode string) (*domain.Team, error) {
	const query = `SELECT id, name, invite_code, created_by, created_at FROM teams WHERE invite_code = $1`
	return r.loadTeam(ctx, query, inviteCode)
}

// GetTeamByMember finds the team a user belongs to. When stale writes left a
// user in several teams, the earliest joined membership wins (first match,
// mirroring the original best-effort lookup).
func (r *Repository) GetTeamByMember(ctx context.Context, uid string) (*domain.Team, error) {
	const query = `SELECT t.id, t.name, t.invite_code, t.created_by, t.created_at
		FROM teams t
		INNER JOIN team_members tm ON tm.team_id = t.id
		WHERE tm.uid = $1
		ORDER BY tm.joined_at ASC
		LIMIT 1`
	return r.loadTeam(ctx, query, uid)
}

func (r *Repository) loadTeam(ctx context.Context, query string, arg any) (*domain.Team, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	var t domain.Team
	if err := row.Scan(&t.ID, &t.Name, &t.InviteCode, &t.CreatedBy, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	members, err := r.listMembers(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Members = members
	return &t, nil
}

func (r *Repository) listMembers(ctx context.Context, teamID string) (map[string]domain.Member, error) {
	const query = `SELECT uid, role, display_name, photo_url, joined_at FROM team_members WHERE team_id = $1`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make(map[string]domain.Member)
	for rows.Next() {
		var (
			uid  string
			role string
			m    domain.Member
		)
		if err := rows.Scan(&uid, &role, &m.DisplayName, &m.PhotoURL, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		members[uid] = m
	}
	return members, rows.Err()
}

// InviteCodeTaken reports whether any team currently holds the code.
func (r *Repository) InviteCodeTaken(ctx context.Context, inviteCode string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teams WHERE invite_code = $1)`
	var taken bool
	if err := r.pool.QueryRow(ctx, query, inviteCode).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// AddMember admits a member only while the team is below cap and the uid is
// absent. The team row is locked for the duration so concurrent joins
// serialize on the capacity check instead of racing past it.
func (r *Repository) AddMember(ctx context.Context, teamID, uid string, member domain.Member, cap int) error {
	if cap <= 0 {
		cap = domain.MaxTeamMembers
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM teams WHERE id = $1 FOR UPDATE`, teamID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM team_members WHERE team_id = $1 AND uid = $2)`, teamID, uid).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return repository.ErrAlreadyMember
	}
	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM team_members WHERE team_id = $1`, teamID).Scan(&count); err != nil {
		return err
	}
	if count >= cap {
		return repository.ErrTeamFull
	}
	const insert = `INSERT INTO team_members (team_id, uid, role, display_name, photo_url, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, insert, teamID, uid, string(member.Role), member.DisplayName, member.PhotoURL, member.JoinedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RemoveMember deletes a membership row.
func (r *Repository) RemoveMember(ctx context.Context, teamID, uid string) error {
	const query = `DELETE FROM team_members WHERE team_id = $1 AND uid = $2`
	tag, err := r.pool.Exec(ctx, query, teamID, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateMemberRole rewrites the member's role field.
func (r *Repository) UpdateMemberRole(ctx context.Context, teamID, uid string, role domain.Role) error {
	const query = `UPDATE team_members SET role = $3 WHERE team_id = $1 AND uid = $2`
	tag, err := r.pool.Exec(ctx, query, teamID, uid, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateInviteCode replaces the team's invite code.
func (r *Repository) UpdateInviteCode(ctx context.Context, teamID, newCode string) error {
	const query = `UPDATE teams SET invite_code = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, teamID, newCode)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteTeam removes the team; membership rows cascade.
func (r *Repository) DeleteTeam(ctx context.Context, teamID string) error {
	const query = `DELETE FROM teams WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, teamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SaveRoster writes the whole roster under the user's key.
func (r *Repository) SaveRoster(ctx context.Context, uid string, roster *domain.Roster) error {
	if roster == nil {
		return fmt.Errorf("roster required")
	}
	players, err := json.Marshal(roster.Players)
	if err != nil {
		return err
	}
	const query = `INSERT INTO rosters (uid, team_name, players, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE SET team_name = EXCLUDED.team_name, players = EXCLUDED.players, updated_at = EXCLUDED.updated_at`
	_, err = r.pool.Exec(ctx, query, uid, roster.TeamName, players, roster.UpdatedAt)
	return err
}

// GetRoster hydrates the stored roster wholesale.
func (r *Repository) GetRoster(ctx context.Context, uid string) (*domain.Roster, error) {
	const query = `SELECT team_name, players, updated_at FROM rosters WHERE uid = $1`
	row := r.pool.QueryRow(ctx, query, uid)
	var (
		roster  domain.Roster
		players []byte
	)
	if err := row.Scan(&roster.TeamName, &players, &roster.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(players, &roster.Players); err != nil {
		return nil, fmt.Errorf("decode roster players: %w", err)
	}
	return &roster, nil
}

// CreateComp inserts a saved comp.
func (r *Repository) CreateComp(ctx context.Context, comp *domain.Comp) error {
	agents, err := json.Marshal(comp.Agents)
	if err != nil {
		return err
	}
	const query = `INSERT INTO comps (id, owner_uid, name, map_id, agents, notes, share_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`
	_, err = r.pool.Exec(ctx, query, comp.ID, comp.OwnerUID, comp.Name, comp.MapID, agents, comp.Notes, comp.ShareCode, comp.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetComp fetches one of the owner's comps.
func (r *Repository) GetComp(ctx context.Context, ownerUID, compID string) (*domain.Comp, error) {
	const query = `SELECT id, owner_uid, name, map_id, agents, notes, COALESCE(share_code, ''), created_at
		FROM comps WHERE owner_uid = $1 AND id = $2`
	row := r.pool.QueryRow(ctx, query, ownerUID, compID)
	comp, err := scanComp(row)
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// ListCompsByOwner returns the owner's saved comps, newest first.
func (r *Repository) ListCompsByOwner(ctx context.Context, ownerUID string) ([]domain.Comp, error) {
	const query = `SELECT id, owner_uid, name, map_id, agents, notes, COALESCE(share_code, ''), created_at
		FROM comps WHERE owner_uid = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comps := make([]domain.Comp, 0)
	for rows.Next() {
		comp, err := scanComp(rows)
		if err != nil {
			return nil, err
		}
		comps = append(comps, *comp)
	}
	return comps, rows.Err()
}

func scanComp(row pgx.Row) (*domain.Comp, error) {
	var (
		c      domain.Comp
		agents []byte
	)
	if err := row.Scan(&c.ID, &c.OwnerUID, &c.Name, &c.MapID, &agents, &c.Notes, &c.ShareCode, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(agents, &c.Agents); err != nil {
		return nil, fmt.Errorf("decode comp agents: %w", err)
	}
	return &c, nil
}

// SetShareCode links a published share code back onto the owner's comp.
// The code is set once; a second link attempt is refused.
func (r *Repository) SetShareCode(ctx context.Context, ownerUID, compID, shareCode string) error {
	const query = `UPDATE comps SET share_code = $3 WHERE owner_uid = $1 AND id = $2 AND share_code IS NULL`
	tag, err := r.pool.Exec(ctx, query, ownerUID, compID, shareCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

// PublishSharedComp writes the public record. Records are write-once: a
// duplicate code surfaces as ErrConflict instead of overwriting.
func (r *Repository) PublishSharedComp(ctx context.Context, shared *domain.SharedComp) error {
	agents, err := json.Marshal(shared.Agents)
	if err != nil {
		return err
	}
	const query = `INSERT INTO shared_comps (code, name, map_id, agents, notes, owner_uid, owner_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.pool.Exec(ctx, query, shared.Code, shared.Name, shared.MapID, agents, shared.Notes, shared.OwnerUID, shared.OwnerName, shared.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetSharedComp looks up a published record by code.
func (r *Repository) GetSharedComp(ctx context.Context, shareCode string) (*domain.SharedComp, error) {
	const query = `SELECT code, name, map_id, agents, notes, owner_uid, owner_name, created_at
		FROM shared_comps WHERE code = $1`
	row := r.pool.QueryRow(ctx, query, shareCode)
	var (
		s      domain.SharedComp
		agents []byte
	)
	if err := row.Scan(&s.Code, &s.Name, &s.MapID, &agents, &s.Notes, &s.OwnerUID, &s.OwnerName, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(agents, &s.Agents); err != nil {
		return nil, fmt.Errorf("decode shared comp agents: %w", err)
	}
	return &s, nil
}

// ShareCodeTaken reports whether a published record holds the code.
func (r *Repository) ShareCodeTaken(ctx context.Context, shareCode string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM shared_comps WHERE code = $1)`
	var taken bool
	if err := r.pool.QueryRow(ctx, query, shareCode).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
