package model

import "time"

// ClosureRecord persists a pending scheduled close so it can be
// re-scheduled after a restart.
type ClosureRecord struct {
	SessionID UserID    `json:"session_id"`
	FireAt    time.Time `json:"fire_at"`
	CloserID  UserID    `json:"closer_id"`
	Silent    bool      `json:"silent"`
	Message   string    `json:"message,omitempty"`
}
