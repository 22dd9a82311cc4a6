package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	// CorePlayers is the fixed starting-roster size; those slots are never removable.
	CorePlayers = 5
	// MaxSubstitutes bounds the appendable slots beyond the core five.
	MaxSubstitutes = 5
)

var (
	ErrSubstituteLimit = errors.New("roster: substitute limit reached")
	ErrCoreSlot        = errors.New("roster: core slots cannot be removed")
	ErrSlotIndex       = errors.New("roster: slot index out of range")
	ErrNoTeamName      = errors.New("roster: team name is required")
	ErrNoNamedPlayers  = errors.New("roster: at least one player name is required")
)

// RosterSlot is one position on the roster: a player name and the agents they flex.
type RosterSlot struct {
	Name      string   `json:"name"`
	AgentPool []string `json:"agentPool"`
}

// Roster is the local editing state for a team's player list. It is owned by a
// single session; persistence is a wholesale save/load of the whole value.
type Roster struct {
	TeamName  string       `json:"teamName"`
	Players   []RosterSlot `json:"players"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// NewRoster returns a roster with the five empty core slots.
func NewRoster() *Roster {
	return &Roster{Players: make([]RosterSlot, CorePlayers)}
}

// AddSubstitute appends an empty substitute slot, refusing past the cap.
func (r *Roster) AddSubstitute() error {
	if len(r.Players)-CorePlayers >= MaxSubstitutes {
		return ErrSubstituteLimit
	}
	r.Players = append(r.Players, RosterSlot{})
	return nil
}

// RemoveSubstitute deletes the slot at index, shifting later slots down.
// Indices below CorePlayers are protected. Callers holding indices past the
// removed slot must re-derive them after this returns.
func (r *Roster) RemoveSubstitute(index int) error {
	if index < CorePlayers {
		return ErrCoreSlot
	}
	if index >= len(r.Players) {
		return ErrSlotIndex
	}
	r.Players = append(r.Players[:index], r.Players[index+1:]...)
	return nil
}

// SetName assigns the player name at index.
func (r *Roster) SetName(index int, name string) error {
	if index < 0 || index >= len(r.Players) {
		return ErrSlotIndex
	}
	r.Players[index].Name = name
	return nil
}

// SetAgentPool replaces the slot's agent pool verbatim. Pool size is unbounded.
func (r *Roster) SetAgentPool(index int, agents []string) error {
	if index < 0 || index >= len(r.Players) {
		return ErrSlotIndex
	}
	r.Players[index].AgentPool = append([]string(nil), agents...)
	return nil
}

// Validate enforces the save preconditions: a team name and at least one
// named player. Structural invariants (slot counts) are checked as well so a
// deserialized roster cannot smuggle a short or oversized player list.
func (r *Roster) Validate() error {
	if strings.TrimSpace(r.TeamName) == "" {
		return ErrNoTeamName
	}
	if len(r.Players) < CorePlayers || len(r.Players) > CorePlayers+MaxSubstitutes {
		return ErrSlotIndex
	}
	for _, p := range r.Players {
		if strings.TrimSpace(p.Name) != "" {
			return nil
		}
	}
	return ErrNoNamedPlayers
}

// SubstituteCount returns the number of occupied substitute slots.
func (r *Roster) SubstituteCount() int {
	return len(r.Players) - CorePlayers
}
