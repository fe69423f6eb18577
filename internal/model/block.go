package model

import "time"

// BlockEntry prevents a user from opening or using a session. An entry
// without an expiry is permanent. Internal entries are placed by automated
// checks and survive ordinary re-blocks until the underlying condition
// clears.
type BlockEntry struct {
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Internal  bool       `json:"internal,omitempty"`
}

// Expired reports whether the entry carries an expiry that has passed.
// Permanent entries never expire.
func (e BlockEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
