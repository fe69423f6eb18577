// Package events defines the structured domain events the engine emits
// and the contract of the presentation layer consuming them. The engine
// never builds display markup itself.
package events

import (
	"time"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/transport"
)

type Kind string

const (
	KindSessionOpened    Kind = "session_opened"
	KindSessionGreeting  Kind = "session_greeting"
	KindCloseScheduled   Kind = "close_scheduled"
	KindCloseCancelled   Kind = "close_cancelled"
	KindSessionClosed    Kind = "session_closed"
	KindStaffReply       Kind = "staff_reply"
	KindRecipientMessage Kind = "recipient_message"
	KindNote             Kind = "note"
)

// Event is one domain occurrence handed to the presentation layer.
// Fields are populated per kind; zero values mean not applicable.
type Event struct {
	Kind       Kind
	SessionID  model.UserID
	ChannelID  model.ChannelID
	Author     model.UserID
	AuthorName string
	LogicalID  string
	Role       model.AuthorRole
	Anonymous  bool
	Body       string

	// Close-related fields.
	Delay      time.Duration
	DelayHuman string
	Silent     bool
	Scheduled  bool
	LogURL     string
	LogKey     string

	// Mentions carried on recipient messages after notification fan-out.
	Mentions []string

	OccurredAt time.Time
}

// Presenter turns a domain event into the renderable blob the transport
// posts. Implementations live outside the engine.
type Presenter interface {
	Render(e Event) transport.Rendered
}
