package roster

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/repository"
)

// Service persists each user's roster wholesale under their uid. Edits are
// client-side; only complete rosters cross this boundary, validated on the
// way in so a client cannot save past the precondition checks.
type Service struct {
	rosters repository.RosterRepository
	logger  *slog.Logger
}

// New constructs a Service.
func New(rosters repository.RosterRepository, logger *slog.Logger) Service {
	return Service{rosters: rosters, logger: logger}
}

// Save validates and stores the roster, overwriting any previous save.
func (s Service) Save(ctx context.Context, uid string, r *domain.Roster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	if err := s.rosters.SaveRoster(ctx, uid, r); err != nil {
		return err
	}
	s.logger.Info("roster saved", "uid", uid, "players", len(r.Players))
	return nil
}

// Load returns the user's saved roster, or a fresh five-slot roster when
// nothing has been saved yet.
func (s Service) Load(ctx context.Context, uid string) (*domain.Roster, error) {
	r, err := s.rosters.GetRoster(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewRoster(), nil
		}
		return nil, err
	}
	return r, nil
}
