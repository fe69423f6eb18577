package transport

import (
	"context"
	"errors"
	"time"

	"mailroom.app/engine/internal/model"
)

// ErrNotFound is returned when the channel or message no longer exists on
// the transport side.
var ErrNotFound = errors.New("transport: not found")

// ErrTransient is returned for network-level failures that may succeed on
// a later attempt. The engine surfaces these; it never retries silently.
var ErrTransient = errors.New("transport: transient failure")

// Rendered is the content blob produced by the presentation layer. The
// engine treats Body as opaque; OriginTag and Role are the recognizable
// marker the linked-message index scans for.
type Rendered struct {
	Body      string           `json:"body"`
	OriginTag string           `json:"origin_tag,omitempty"`
	Role      model.AuthorRole `json:"role,omitempty"`
	Color     string           `json:"color,omitempty"`
	Footer    string           `json:"footer,omitempty"`
	Mentions  []string         `json:"mentions,omitempty"`
}

// HistoryMessage is one entry of a channel history snapshot, newest first.
type HistoryMessage struct {
	Ref      model.MessageID `json:"ref"`
	AuthorID model.UserID    `json:"author_id"`
	Rendered Rendered        `json:"rendered"`
	PostedAt time.Time       `json:"posted_at"`
}

// Transport is the abstract channel/message contract the engine relies
// on. Implementations talk to the real gateway; every call is a network
// operation that can fail with ErrNotFound or ErrTransient.
type Transport interface {
	// CreateChannel provisions a staff-facing channel under the managed
	// category and returns its handle.
	CreateChannel(ctx context.Context, name, category string) (model.ChannelID, error)

	// DirectChannel resolves the direct channel for a recipient, creating
	// it if the transport requires that.
	DirectChannel(ctx context.Context, recipient model.UserID) (model.ChannelID, error)

	PostMessage(ctx context.Context, ch model.ChannelID, msg Rendered) (model.MessageID, error)
	EditMessage(ctx context.Context, ch model.ChannelID, id model.MessageID, msg Rendered) error
	DeleteMessage(ctx context.Context, ch model.ChannelID, id model.MessageID) error

	// ScanHistory returns up to limit messages from the channel, newest
	// first, as a snapshot taken at call time.
	ScanHistory(ctx context.Context, ch model.ChannelID, limit int) ([]HistoryMessage, error)

	// Identity is the author id the transport posts under. The
	// linked-message index only considers messages from this identity.
	Identity() model.UserID
}
