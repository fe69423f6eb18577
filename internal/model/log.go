package model

import "time"

// LogRecord is the persisted trail of one session, keyed by the channel
// that carried it. Key is a short token used to build shareable log links.
type LogRecord struct {
	Key          string       `json:"key"`
	ChannelID    ChannelID    `json:"channel_id"`
	Recipient    UserID       `json:"recipient_id"`
	Creator      UserID       `json:"creator_id"`
	Open         bool         `json:"open"`
	CreatedAt    time.Time    `json:"created_at"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	CloserID     *UserID      `json:"closer_id,omitempty"`
	CloseMessage *string      `json:"close_message,omitempty"`
	Messages     []LogMessage `json:"messages,omitempty"`
}

// LogMessage is one relayed message inside a LogRecord.
type LogMessage struct {
	LogicalID string     `json:"logical_id"`
	AuthorID  UserID     `json:"author_id"`
	Role      AuthorRole `json:"role"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}
