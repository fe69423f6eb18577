package dto

import (
	"time"

	"mailroom.app/engine/internal/model"
)

type BlockRequest struct {
	Reason string `json:"reason,omitempty"`
	// Until accepts a Go duration string or relative natural language;
	// empty blocks permanently.
	Until string `json:"until,omitempty"`
}

type BlockEntryResponse struct {
	UserID    string     `json:"user_id"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Internal  bool       `json:"internal"`
}

func FromBlockEntry(user model.UserID, e model.BlockEntry) BlockEntryResponse {
	return BlockEntryResponse{
		UserID:    string(user),
		Reason:    e.Reason,
		ExpiresAt: e.ExpiresAt,
		Internal:  e.Internal,
	}
}

type UnblockResponse struct {
	UserID      string `json:"user_id"`
	WasInternal bool   `json:"was_internal"`
	Reason      string `json:"reason,omitempty"`
}
