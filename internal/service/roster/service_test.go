package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/repository"
)

type stubRosterRepo struct {
	saved map[string]*domain.Roster
}

func newStubRosterRepo() *stubRosterRepo {
	return &stubRosterRepo{saved: make(map[string]*domain.Roster)}
}

func (r *stubRosterRepo) SaveRoster(_ context.Context, uid string, roster *domain.Roster) error {
	clone := *roster
	clone.Players = append([]domain.RosterSlot(nil), roster.Players...)
	r.saved[uid] = &clone
	return nil
}

func (r *stubRosterRepo) GetRoster(_ context.Context, uid string) (*domain.Roster, error) {
	roster, ok := r.saved[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return roster, nil
}

func newTestService(repo *stubRosterRepo) Service {
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func validRoster() *domain.Roster {
	r := domain.NewRoster()
	r.TeamName = "Sentinels"
	r.Players[0].Name = "TenZ"
	return r
}

func TestSaveAndLoad(t *testing.T) {
	repo := newStubRosterRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	r := validRoster()
	if err := svc.Save(ctx, "u1", r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if r.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on save")
	}

	loaded, err := svc.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.TeamName != "Sentinels" || loaded.Players[0].Name != "TenZ" {
		t.Errorf("loaded roster = %+v, want saved content back", loaded)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	repo := newStubRosterRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	unnamed := domain.NewRoster()
	unnamed.TeamName = "Sentinels"
	if err := svc.Save(ctx, "u1", unnamed); !errors.Is(err, domain.ErrNoNamedPlayers) {
		t.Errorf("no named players: err = %v, want ErrNoNamedPlayers", err)
	}

	noTeam := domain.NewRoster()
	noTeam.Players[0].Name = "TenZ"
	if err := svc.Save(ctx, "u1", noTeam); !errors.Is(err, domain.ErrNoTeamName) {
		t.Errorf("no team name: err = %v, want ErrNoTeamName", err)
	}
	if len(repo.saved) != 0 {
		t.Errorf("invalid rosters reached the store: %d entries", len(repo.saved))
	}
}

func TestLoadDefaultsToEmptyRoster(t *testing.T) {
	svc := newTestService(newStubRosterRepo())
	r, err := svc.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.Players) != domain.CorePlayers {
		t.Errorf("fresh roster has %d slots, want %d", len(r.Players), domain.CorePlayers)
	}
	if r.SubstituteCount() != 0 {
		t.Errorf("fresh roster has %d substitutes, want 0", r.SubstituteCount())
	}
}

func TestSubstituteLifecycle(t *testing.T) {
	r := validRoster()
	for i := 0; i < domain.MaxSubstitutes; i++ {
		if err := r.AddSubstitute(); err != nil {
			t.Fatalf("AddSubstitute %d: %v", i, err)
		}
	}
	if err := r.AddSubstitute(); !errors.Is(err, domain.ErrSubstituteLimit) {
		t.Errorf("6th substitute: err = %v, want ErrSubstituteLimit", err)
	}
	if err := r.RemoveSubstitute(2); !errors.Is(err, domain.ErrCoreSlot) {
		t.Errorf("removing core slot: err = %v, want ErrCoreSlot", err)
	}
	if err := r.RemoveSubstitute(len(r.Players)); !errors.Is(err, domain.ErrSlotIndex) {
		t.Errorf("out of range: err = %v, want ErrSlotIndex", err)
	}

	if err := r.SetName(domain.CorePlayers, "sub-one"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if err := r.SetName(domain.CorePlayers+1, "sub-two"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	// Removing the first substitute shifts the second one down.
	if err := r.RemoveSubstitute(domain.CorePlayers); err != nil {
		t.Fatalf("RemoveSubstitute: %v", err)
	}
	if got := r.Players[domain.CorePlayers].Name; got != "sub-two" {
		t.Errorf("slot after shift = %q, want sub-two", got)
	}
	if r.SubstituteCount() != domain.MaxSubstitutes-1 {
		t.Errorf("substitute count = %d, want %d", r.SubstituteCount(), domain.MaxSubstitutes-1)
	}
}

func TestSaveRosterWithSubstitutes(t *testing.T) {
	repo := newStubRosterRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	r := validRoster()
	if err := r.AddSubstitute(); err != nil {
		t.Fatalf("AddSubstitute: %v", err)
	}
	if err := r.SetAgentPool(0, []string{"jett", "raze"}); err != nil {
		t.Fatalf("SetAgentPool: %v", err)
	}
	if err := svc.Save(ctx, "u1", r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := svc.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Players) != domain.CorePlayers+1 {
		t.Errorf("loaded %d slots, want %d", len(loaded.Players), domain.CorePlayers+1)
	}
	if len(loaded.Players[0].AgentPool) != 2 {
		t.Errorf("agent pool = %v, want 2 entries", loaded.Players[0].AgentPool)
	}
}
