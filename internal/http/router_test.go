package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/lolplq101/valcomps/internal/catalog"
	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/repository"
	"github.com/lolplq101/valcomps/internal/service/auth"
	"github.com/lolplq101/valcomps/internal/service/comp"
	"github.com/lolplq101/valcomps/internal/service/roster"
	"github.com/lolplq101/valcomps/internal/service/team"
	"github.com/lolplq101/valcomps/internal/ws"
	"github.com/lolplq101/valcomps/pkg/config"
)

// memRepo is an in-memory stand-in for the postgres repository, implementing
// every store interface the services need.
type memRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	teams   map[string]*domain.Team
	rosters map[string]*domain.Roster
	comps   map[string]*domain.Comp
	shared  map[string]*domain.SharedComp
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:   make(map[string]*domain.User),
		teams:   make(map[string]*domain.Team),
		rosters: make(map[string]*domain.Roster),
		comps:   make(map[string]*domain.Comp),
		shared:  make(map[string]*domain.SharedComp),
	}
}

func (m *memRepo) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrConflict
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *memRepo) CreateTeam(_ context.Context, t *domain.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = cloneTeam(t)
	return nil
}

func (m *memRepo) GetTeamByID(_ context.Context, teamID string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTeam(t), nil
}

func (m *memRepo) GetTeamByInviteCode(_ context.Context, code string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teams {
		if t.InviteCode == code {
			return cloneTeam(t), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) GetTeamByMember(_ context.Context, uid string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teams {
		if _, ok := t.Members[uid]; ok {
			return cloneTeam(t), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) InviteCodeTaken(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teams {
		if t.InviteCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) AddMember(_ context.Context, teamID, uid string, member domain.Member, cap int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, exists := t.Members[uid]; exists {
		return repository.ErrAlreadyMember
	}
	if len(t.Members) >= cap {
		return repository.ErrTeamFull
	}
	t.Members[uid] = member
	return nil
}

func (m *memRepo) RemoveMember(_ context.Context, teamID, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, exists := t.Members[uid]; !exists {
		return repository.ErrNotFound
	}
	delete(t.Members, uid)
	return nil
}

func (m *memRepo) UpdateMemberRole(_ context.Context, teamID, uid string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	member, exists := t.Members[uid]
	if !exists {
		return repository.ErrNotFound
	}
	member.Role = role
	t.Members[uid] = member
	return nil
}

func (m *memRepo) UpdateInviteCode(_ context.Context, teamID, newCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	t.InviteCode = newCode
	return nil
}

func (m *memRepo) DeleteTeam(_ context.Context, teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[teamID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.teams, teamID)
	return nil
}

func (m *memRepo) SaveRoster(_ context.Context, uid string, r *domain.Roster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *r
	clone.Players = append([]domain.RosterSlot(nil), r.Players...)
	m.rosters[uid] = &clone
	return nil
}

func (m *memRepo) GetRoster(_ context.Context, uid string) (*domain.Roster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rosters[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) CreateComp(_ context.Context, c *domain.Comp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *c
	m.comps[c.OwnerUID+"/"+c.ID] = &clone
	return nil
}

func (m *memRepo) GetComp(_ context.Context, ownerUID, compID string) (*domain.Comp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comps[ownerUID+"/"+compID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *memRepo) ListCompsByOwner(_ context.Context, ownerUID string) ([]domain.Comp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Comp
	for _, c := range m.comps {
		if c.OwnerUID == ownerUID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) SetShareCode(_ context.Context, ownerUID, compID, shareCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comps[ownerUID+"/"+compID]
	if !ok {
		return repository.ErrNotFound
	}
	if c.ShareCode != "" {
		return repository.ErrConflict
	}
	c.ShareCode = shareCode
	return nil
}

func (m *memRepo) PublishSharedComp(_ context.Context, shared *domain.SharedComp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.shared[shared.Code]; exists {
		return repository.ErrConflict
	}
	clone := *shared
	m.shared[shared.Code] = &clone
	return nil
}

func (m *memRepo) GetSharedComp(_ context.Context, code string) (*domain.SharedComp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shared[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (m *memRepo) ShareCodeTaken(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.shared[code]
	return ok, nil
}

func cloneTeam(t *domain.Team) *domain.Team {
	clone := *t
	clone.Members = make(map[string]domain.Member, len(t.Members))
	for uid, member := range t.Members {
		clone.Members[uid] = member
	}
	return &clone
}

func setupRouter(t *testing.T) (*Router, *memRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemRepo()

	cfg := config.APIConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	}
	authSvc := auth.New(repo, logger, cfg)
	teamSvc := team.New(repo, nil, logger, domain.MaxTeamMembers, 0)
	rosterSvc := roster.New(repo, logger)
	compSvc := comp.New(repo, repo, catalog.Default(), nil, logger, 0)

	router := NewRouter(logger, authSvc, teamSvc, rosterSvc, compSvc, ws.NewHub(), NewMemoryRateLimiter(), 100, 100, time.Minute, nil)
	t.Cleanup(router.Close)
	return router, repo
}

func doJSON(t *testing.T, router *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func signupUser(t *testing.T, router *Router, email, name string) string {
	t.Helper()
	rr := doJSON(t, router, http.MethodPost, "/auth/signup", "", map[string]string{
		"email":       email,
		"password":    "hunter2hunter2",
		"displayName": name,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d body %s", email, rr.Code, rr.Body.String())
	}
	var payload struct {
		Tokens struct {
			AccessToken string
		}
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	return payload.Tokens.AccessToken
}

func TestTeamLifecycleOverHTTP(t *testing.T) {
	router, _ := setupRouter(t)

	capToken := signupUser(t, router, "cap@example.com", "Cap")
	playerToken := signupUser(t, router, "player@example.com", "Pyke")

	rr := doJSON(t, router, http.MethodPost, "/teams", capToken, map[string]string{"name": "Sentinels"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create team: status %d body %s", rr.Code, rr.Body.String())
	}
	var created domain.Team
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode team: %v", err)
	}
	if !strings.HasPrefix(created.InviteCode, "TEAM-") {
		t.Fatalf("invite code %q missing prefix", created.InviteCode)
	}

	rr = doJSON(t, router, http.MethodPost, "/teams/join", playerToken, map[string]string{"code": strings.ToLower(created.InviteCode)})
	if rr.Code != http.StatusOK {
		t.Fatalf("join: status %d body %s", rr.Code, rr.Body.String())
	}
	var joined domain.Team
	if err := json.NewDecoder(rr.Body).Decode(&joined); err != nil {
		t.Fatalf("decode joined team: %v", err)
	}
	if len(joined.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(joined.Members))
	}

	// Player may not disband.
	rr = doJSON(t, router, http.MethodPost, "/teams/disband", playerToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("player disband: status %d, want 403", rr.Code)
	}
	// Captain may not leave.
	rr = doJSON(t, router, http.MethodPost, "/teams/leave", capToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("captain leave: status %d, want 403", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPost, "/teams/disband", capToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("captain disband: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodGet, "/teams", playerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("my team: status %d", rr.Code)
	}
	var myTeam struct {
		Team *domain.Team `json:"team"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&myTeam); err != nil {
		t.Fatalf("decode my team: %v", err)
	}
	if myTeam.Team != nil {
		t.Fatalf("team not nil after disband: %+v", myTeam.Team)
	}
}

func TestJoinUnknownCodeReturns404(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupUser(t, router, "a@example.com", "A")

	rr := doJSON(t, router, http.MethodPost, "/teams/join", token, map[string]string{"code": "TEAM-ZZZZ"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rr.Code)
	}
}

func TestTeamRoutesRequireAuth(t *testing.T) {
	router, _ := setupRouter(t)
	for _, path := range []string{"/teams", "/teams/join", "/roster", "/comps"} {
		rr := doJSON(t, router, http.MethodPost, path, "", map[string]string{})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status %d, want 401", path, rr.Code)
		}
	}
}

func TestMemberRoleAndRemovalOverHTTP(t *testing.T) {
	router, _ := setupRouter(t)
	capToken := signupUser(t, router, "cap@example.com", "Cap")
	p1Token := signupUser(t, router, "p1@example.com", "P1")

	rr := doJSON(t, router, http.MethodPost, "/teams", capToken, map[string]string{"name": "Alpha"})
	var created domain.Team
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode team: %v", err)
	}
	if rr := doJSON(t, router, http.MethodPost, "/teams/join", p1Token, map[string]string{"code": created.InviteCode}); rr.Code != http.StatusOK {
		t.Fatalf("join: status %d", rr.Code)
	}

	var p1UID string
	rr = doJSON(t, router, http.MethodGet, "/teams", capToken, nil)
	var myTeam struct {
		Team *domain.Team `json:"team"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&myTeam); err != nil {
		t.Fatalf("decode my team: %v", err)
	}
	for uid, member := range myTeam.Team.Members {
		if member.Role == domain.RolePlayer {
			p1UID = uid
		}
	}
	if p1UID == "" {
		t.Fatal("player uid not found")
	}

	rr = doJSON(t, router, http.MethodPut, "/teams/members/"+p1UID+"/role", capToken, map[string]string{"role": "co-captain"})
	if rr.Code != http.StatusOK {
		t.Fatalf("promote: status %d body %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, router, http.MethodPut, "/teams/members/"+p1UID+"/role", capToken, map[string]string{"role": "captain"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("assign captain: status %d, want 400", rr.Code)
	}
	rr = doJSON(t, router, http.MethodDelete, "/teams/members/"+p1UID, capToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove member: status %d body %s", rr.Code, rr.Body.String())
	}
}

func TestRosterRoundTripOverHTTP(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupUser(t, router, "a@example.com", "A")

	// Fresh rosters come back with the five empty core slots.
	rr := doJSON(t, router, http.MethodGet, "/roster", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("load: status %d", rr.Code)
	}
	var fresh domain.Roster
	if err := json.NewDecoder(rr.Body).Decode(&fresh); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(fresh.Players) != domain.CorePlayers {
		t.Fatalf("fresh roster slots = %d, want %d", len(fresh.Players), domain.CorePlayers)
	}

	fresh.TeamName = "Sentinels"
	fresh.Players[0].Name = "TenZ"
	if rr := doJSON(t, router, http.MethodPut, "/roster", token, fresh); rr.Code != http.StatusOK {
		t.Fatalf("save: status %d body %s", rr.Code, rr.Body.String())
	}

	invalid := domain.NewRoster()
	if rr := doJSON(t, router, http.MethodPut, "/roster", token, invalid); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid save: status %d, want 400", rr.Code)
	}
}

func TestShareAndPublicLookupOverHTTP(t *testing.T) {
	router, _ := setupRouter(t)
	token := signupUser(t, router, "a@example.com", "Ava")

	rr := doJSON(t, router, http.MethodPost, "/comps", token, map[string]any{
		"name":   "A rush",
		"mapId":  "ascent",
		"agents": []string{"jett", "omen"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create comp: status %d body %s", rr.Code, rr.Body.String())
	}
	var created domain.Comp
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode comp: %v", err)
	}

	rr = doJSON(t, router, http.MethodPost, "/comps/"+created.ID+"/share", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("share: status %d body %s", rr.Code, rr.Body.String())
	}
	var shared struct {
		ShareCode string `json:"shareCode"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&shared); err != nil {
		t.Fatalf("decode share response: %v", err)
	}
	if !strings.HasPrefix(shared.ShareCode, "VLR-") {
		t.Fatalf("share code %q missing prefix", shared.ShareCode)
	}

	// Public lookup needs no token.
	rr = doJSON(t, router, http.MethodGet, "/shared/"+strings.ToLower(shared.ShareCode), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("lookup: status %d body %s", rr.Code, rr.Body.String())
	}
	var preview domain.SharedCompPreview
	if err := json.NewDecoder(rr.Body).Decode(&preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if preview.MapName != "Ascent" || preview.OwnerName != "Ava" {
		t.Fatalf("preview = %+v", preview)
	}

	rr = doJSON(t, router, http.MethodGet, "/shared/VLR-QQQQ", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown code: status %d, want 404", rr.Code)
	}
}

func TestJoinRateLimited(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemRepo()
	cfg := config.APIConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Hour}
	authSvc := auth.New(repo, logger, cfg)
	teamSvc := team.New(repo, nil, logger, domain.MaxTeamMembers, 0)
	rosterSvc := roster.New(repo, logger)
	compSvc := comp.New(repo, repo, catalog.Default(), nil, logger, 0)

	router := NewRouter(logger, authSvc, teamSvc, rosterSvc, compSvc, ws.NewHub(), NewMemoryRateLimiter(), 2, 100, time.Minute, nil)
	t.Cleanup(router.Close)

	token := signupUser(t, router, "a@example.com", "A")
	for i := 0; i < 2; i++ {
		rr := doJSON(t, router, http.MethodPost, "/teams/join", token, map[string]string{"code": fmt.Sprintf("TEAM-AAA%d", i)})
		if rr.Code != http.StatusNotFound {
			t.Fatalf("attempt %d: status %d, want 404", i, rr.Code)
		}
	}
	rr := doJSON(t, router, http.MethodPost, "/teams/join", token, map[string]string{"code": "TEAM-AAA9"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: status %d, want 429", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("rate limit header %q, want 2", rr.Header().Get("X-RateLimit-Limit"))
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	router, _ := setupRouter(t)
	router.dbHealth = func(context.Context) error { return nil }

	rr := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var payload struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("status %q, want ok", payload.Status)
	}
	if payload.Components["database"]["status"] != "up" {
		t.Fatalf("database component: %v", payload.Components["database"])
	}

	router.dbHealth = func(context.Context) error { return context.DeadlineExceeded }
	rr = doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status %d, want 503", rr.Code)
	}
}
