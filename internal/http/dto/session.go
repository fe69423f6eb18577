package dto

import (
	"time"

	"mailroom.app/engine/internal/model"
)

type OpenSessionRequest struct {
	RecipientID   string `json:"recipient_id" binding:"required"`
	RecipientName string `json:"recipient_name,omitempty"`
	CreatorID     string `json:"creator_id" binding:"required"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Recipient string    `json:"recipient_id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func FromSession(s model.Session) SessionResponse {
	return SessionResponse{
		ID:        string(s.ID),
		ChannelID: string(s.ChannelID),
		Recipient: string(s.Recipient),
		State:     string(s.State),
		CreatedAt: s.CreatedAt,
	}
}

type CloseSessionRequest struct {
	CloserID string `json:"closer_id" binding:"required"`
	// Delay accepts a Go duration string or relative natural language
	// ("in 2 hours"). Empty means close now.
	Delay   string `json:"delay,omitempty"`
	Silent  bool   `json:"silent,omitempty"`
	Message string `json:"message,omitempty"`
}

type CancelCloseRequest struct {
	CancellerID string `json:"canceller_id" binding:"required"`
}

type ReplyRequest struct {
	AuthorID   string `json:"author_id" binding:"required"`
	AuthorName string `json:"author_name,omitempty"`
	LogicalID  string `json:"logical_id" binding:"required"`
	Body       string `json:"body" binding:"required"`
	Anonymous  bool   `json:"anonymous,omitempty"`
}

type NoteRequest struct {
	AuthorID  string `json:"author_id" binding:"required"`
	LogicalID string `json:"logical_id" binding:"required"`
	Body      string `json:"body" binding:"required"`
}

type EditMessageRequest struct {
	LogicalID string `json:"logical_id,omitempty"`
	Body      string `json:"body" binding:"required"`
}

type DeleteMessageRequest struct {
	LogicalID string `json:"logical_id,omitempty"`
}

type LogLinkResponse struct {
	URL string `json:"url"`
}
