package team

import (
	"encoding/json"
	"time"
)

// Event types pushed to a team's connected sessions so panels can re-render
// without polling.
const (
	EventMemberJoined  = "member_joined"
	EventMemberLeft    = "member_left"
	EventMemberRemoved = "member_removed"
	EventRoleChanged   = "role_changed"
	EventCodeRefreshed = "invite_code_refreshed"
	EventTeamDisbanded = "team_disbanded"
)

type event struct {
	Type        string    `json:"type"`
	UID         string    `json:"uid,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        string    `json:"role,omitempty"`
	At          time.Time `json:"at"`
}

func (s Service) publish(teamID string, ev event) {
	if s.events == nil {
		return
	}
	ev.At = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("failed to encode team event", "type", ev.Type, "error", err)
		return
	}
	s.events.Broadcast(teamID, payload)
}
