package model

import "time"

// UserID identifies an external user on the transport side.
type UserID string

// ChannelID is an opaque handle to a transport channel. Staff-facing
// channels and recipient direct channels share the same handle type.
type ChannelID string

// MessageID is an opaque handle to a concrete posted message.
type MessageID string

type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionClosing SessionState = "closing"
	SessionClosed  SessionState = "closed"
)

// Session is a snapshot of one relay binding between a recipient and a
// staff-facing channel. The live, lockable session object lives in the
// thread package; this is the shape that crosses API and store boundaries.
type Session struct {
	ID        UserID       `json:"id"` // stable, equals the recipient id
	ChannelID ChannelID    `json:"channel_id"`
	Recipient UserID       `json:"recipient_id"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}
