package models

import "time"

// Presence statuses
const (
	PresenceOffline = "offline"
	PresenceOnline  = "online"
	PresencePlaying = "playing"
)

// PresenceState is the ephemeral per-(couple, user) activity signal. It is
// never persisted durably — it lives on the presence bus and in each
// instance's in-memory view, and is never consulted for game correctness.
type PresenceState struct {
	CoupleID      string    `json:"couple_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"` // offline, online, playing
	CurrentScreen string    `json:"current_screen,omitempty"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// Stale reports whether the state is older than the missed-heartbeat timeout.
// Staleness is detected by the subscriber, not the publisher.
func (p *PresenceState) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.LastSeenAt) > timeout
}
