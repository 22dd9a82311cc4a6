package comp

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/lolplq101/valcomps/internal/catalog"
	"github.com/lolplq101/valcomps/internal/code"
	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/repository"
)

// SharePrefix namespaces comp share codes, distinct from team invites.
const SharePrefix = "VLR"

var (
	ErrUnknownMap    = errors.New("comp: unknown map")
	ErrUnknownAgent  = errors.New("comp: unknown agent")
	ErrTooManyAgents = errors.New("comp: too many agents")
	ErrCompNotFound  = errors.New("comp: comp not found")
	ErrCodeNotFound  = errors.New("comp: no shared comp with that code")
	ErrCodeRequired  = errors.New("comp: share code is required")
)

// PreviewCache caches resolved share previews. Misses are reported as
// (nil, nil); any cache error is treated as a miss by the service.
type PreviewCache interface {
	Get(ctx context.Context, codeKey string) (*domain.SharedCompPreview, error)
	Set(ctx context.Context, codeKey string, preview *domain.SharedCompPreview) error
}

// Service owns saved comps and the one-way sharing flow: a comp is published
// under a share code exactly once and the public record never changes
// afterward, even if the owner keeps editing their copy.
type Service struct {
	comps        repository.CompRepository
	shared       repository.SharedCompRepository
	catalog      *catalog.Catalog
	cache        PreviewCache
	logger       *slog.Logger
	codeAttempts int
}

// New constructs a Service. cache may be nil.
func New(comps repository.CompRepository, shared repository.SharedCompRepository, cat *catalog.Catalog, cache PreviewCache, logger *slog.Logger, codeAttempts int) Service {
	return Service{comps: comps, shared: shared, catalog: cat, cache: cache, logger: logger, codeAttempts: codeAttempts}
}

// Create validates and saves a comp for the owner. Agent slots may be empty
// but named agents and the map must exist in the catalog.
func (s Service) Create(ctx context.Context, ownerUID, name, mapID string, agents []string, notes string) (*domain.Comp, error) {
	if _, ok := s.catalog.Map(mapID); !ok {
		return nil, ErrUnknownMap
	}
	if len(agents) > domain.CompAgents {
		return nil, ErrTooManyAgents
	}
	slots := make([]string, domain.CompAgents)
	for i, id := range agents {
		if id == "" {
			continue
		}
		if _, ok := s.catalog.Agent(id); !ok {
			return nil, ErrUnknownAgent
		}
		slots[i] = id
	}

	comp := &domain.Comp{
		ID:        uuid.NewString(),
		OwnerUID:  ownerUID,
		Name:      strings.TrimSpace(name),
		MapID:     mapID,
		Agents:    slots,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.comps.CreateComp(ctx, comp); err != nil {
		return nil, err
	}
	s.logger.Info("comp created", "owner_uid", ownerUID, "comp_id", comp.ID, "map_id", mapID)
	return comp, nil
}

// List returns the owner's saved comps.
func (s Service) List(ctx context.Context, ownerUID string) ([]domain.Comp, error) {
	return s.comps.ListCompsByOwner(ctx, ownerUID)
}

// Share publishes the comp under a fresh share code and returns it. Sharing
// an already-shared comp returns the existing code without a second publish.
// If publishing succeeds but linking the code back onto the comp fails, the
// public record stays live and the code is still returned; the orphan is
// logged rather than rolled back.
func (s Service) Share(ctx context.Context, ownerUID, ownerName, compID string) (string, error) {
	comp, err := s.comps.GetComp(ctx, ownerUID, compID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrCompNotFound
		}
		return "", err
	}
	if comp.ShareCode != "" {
		return comp.ShareCode, nil
	}

	shareCode, err := code.GenerateUnique(ctx, SharePrefix, code.DefaultLength, s.codeAttempts, s.shared.ShareCodeTaken)
	if err != nil {
		return "", err
	}
	record := &domain.SharedComp{
		Code:      shareCode,
		Name:      comp.Name,
		MapID:     comp.MapID,
		Agents:    append([]string(nil), comp.Agents...),
		Notes:     comp.Notes,
		OwnerUID:  ownerUID,
		OwnerName: ownerName,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.shared.PublishSharedComp(ctx, record); err != nil {
		return "", err
	}
	if err := s.comps.SetShareCode(ctx, ownerUID, compID, shareCode); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// A concurrent Share linked first; its record wins.
			if relinked, lookupErr := s.comps.GetComp(ctx, ownerUID, compID); lookupErr == nil && relinked.ShareCode != "" {
				return relinked.ShareCode, nil
			}
		}
		s.logger.Warn("shared comp published but backlink failed", "owner_uid", ownerUID, "comp_id", compID, "code", shareCode, "error", err)
		return shareCode, nil
	}
	s.logger.Info("comp shared", "owner_uid", ownerUID, "comp_id", compID, "code", shareCode)
	return shareCode, nil
}

// LoadShared resolves a share code to its display preview. Lookup is
// case-insensitive; results are cached since shared records never change.
func (s Service) LoadShared(ctx context.Context, shareCode string) (*domain.SharedCompPreview, error) {
	shareCode = code.Normalize(shareCode)
	if shareCode == "" {
		return nil, ErrCodeRequired
	}
	if s.cache != nil {
		if preview, err := s.cache.Get(ctx, shareCode); err == nil && preview != nil {
			return preview, nil
		}
	}

	record, err := s.shared.GetSharedComp(ctx, shareCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	preview := s.resolve(record)
	if s.cache != nil {
		if err := s.cache.Set(ctx, shareCode, preview); err != nil {
			s.logger.Warn("failed to cache shared comp preview", "code", shareCode, "error", err)
		}
	}
	return preview, nil
}

func (s Service) resolve(record *domain.SharedComp) *domain.SharedCompPreview {
	preview := &domain.SharedCompPreview{
		Code:      record.Code,
		Name:      record.Name,
		MapID:     record.MapID,
		Agents:    make([]domain.PreviewAgent, 0, len(record.Agents)),
		Notes:     record.Notes,
		OwnerName: record.OwnerName,
		CreatedAt: record.CreatedAt,
	}
	if m, ok := s.catalog.Map(record.MapID); ok {
		preview.MapName = m.Name
	}
	for _, id := range record.Agents {
		if id == "" {
			preview.Agents = append(preview.Agents, domain.PreviewAgent{})
			continue
		}
		pa := domain.PreviewAgent{ID: id, Name: id}
		if a, ok := s.catalog.Agent(id); ok {
			pa.Name = a.Name
			pa.Icon = a.Icon
		}
		preview.Agents = append(preview.Agents, pa)
	}
	return preview
}
