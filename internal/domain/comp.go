package domain

import "time"

// CompAgents is the number of agent slots in a composition; entries may be empty.
const CompAgents = 5

// Comp is a user's saved agent composition for a map.
type Comp struct {
	ID        string
	OwnerUID  string
	Name      string
	MapID     string
	Agents    []string
	Notes     string
	ShareCode string
	CreatedAt time.Time
}

// SharedComp is the public, write-once projection of a comp published under a
// share code. It has no update path and no expiry.
type SharedComp struct {
	Code      string
	Name      string
	MapID     string
	Agents    []string
	Notes     string
	OwnerUID  string
	OwnerName string
	CreatedAt time.Time
}

// SharedCompPreview is the resolved, read-only view returned to clients: map
// and agent identifiers are replaced with display data.
type SharedCompPreview struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	MapID     string         `json:"mapId"`
	MapName   string         `json:"mapName"`
	Agents    []PreviewAgent `json:"agents"`
	Notes     string         `json:"notes"`
	OwnerName string         `json:"ownerName"`
	CreatedAt time.Time      `json:"createdAt"`
}

// PreviewAgent resolves an agent identifier for display.
type PreviewAgent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}
