package comp

import (
	"github.com/lolplq101/valcomps/internal/catalog"
	"github.com/lolplq101/valcomps/internal/domain"
)

// Builder is a single session's comp editing state: a map plus five agent
// slots. Each session owns its own Builder; nothing here is shared.
type Builder struct {
	catalog *catalog.Catalog

	MapID  string
	Name   string
	Agents [domain.CompAgents]string
	Notes  string

	staged *domain.SharedCompPreview
}

// NewBuilder returns an empty builder.
func NewBuilder(cat *catalog.Catalog) *Builder {
	return &Builder{catalog: cat}
}

// Stage parks a loaded preview next to the builder without touching the
// current edit, so the user can inspect it before importing.
func (b *Builder) Stage(preview *domain.SharedCompPreview) {
	b.staged = preview
}

// Staged returns the parked preview, if any.
func (b *Builder) Staged() *domain.SharedCompPreview {
	return b.staged
}

// LoadPreview imports the staged preview into the active edit, replacing map,
// name, agents and notes, and clears the staging slot. It is a silent no-op
// when nothing is staged or the staged map is not in the catalog.
func (b *Builder) LoadPreview() {
	if b.staged == nil {
		return
	}
	if _, ok := b.catalog.Map(b.staged.MapID); !ok {
		return
	}
	b.MapID = b.staged.MapID
	b.Name = b.staged.Name
	b.Notes = b.staged.Notes
	b.Agents = [domain.CompAgents]string{}
	for i, agent := range b.staged.Agents {
		if i >= domain.CompAgents {
			break
		}
		b.Agents[i] = agent.ID
	}
	b.staged = nil
}

// SetAgent assigns an agent slot; out-of-range or unknown agents are ignored.
func (b *Builder) SetAgent(slot int, agentID string) {
	if slot < 0 || slot >= domain.CompAgents {
		return
	}
	if agentID != "" {
		if _, ok := b.catalog.Agent(agentID); !ok {
			return
		}
	}
	b.Agents[slot] = agentID
}
