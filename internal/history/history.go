// Package history resolves previously relayed messages by scanning a
// bounded window of channel history. The engine keeps no per-message
// state in memory; the transport's history is the source of truth, and
// the origin tag embedded at post time is the recognizable marker.
package history

import (
	"context"
	"errors"
	"fmt"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/transport"
)

// ErrNotFound is returned when no relayed message matches within the
// scan window. Older matches beyond the window are not found on purpose.
var ErrNotFound = errors.New("history: no matching message in scan window")

// DefaultScanLimit bounds the scan when no limit is configured.
const DefaultScanLimit = 100

// Scanner is the slice of the transport the index needs.
type Scanner interface {
	ScanHistory(ctx context.Context, ch model.ChannelID, limit int) ([]transport.HistoryMessage, error)
	Identity() model.UserID
}

// Index resolves relayed messages in a channel. It is stateless; every
// lookup is a fresh bounded scan, newest first.
type Index struct {
	scanner Scanner
	limit   func() int
}

// New builds an index over the given scanner. limit is consulted per
// lookup so a config change applies without restart; nil means the
// default.
func New(scanner Scanner, limit func() int) *Index {
	if limit == nil {
		limit = func() int { return DefaultScanLimit }
	}
	return &Index{scanner: scanner, limit: limit}
}

// Find returns the relayed message carrying the given logical id, or
// ErrNotFound when it is absent from the scan window.
func (i *Index) Find(ctx context.Context, ch model.ChannelID, logicalID string) (transport.HistoryMessage, error) {
	return i.scan(ctx, ch, func(m transport.HistoryMessage) bool {
		return m.Rendered.OriginTag == logicalID
	})
}

// LatestStaff returns the newest relayed staff message in the channel.
// Used when an edit or delete names no explicit target.
func (i *Index) LatestStaff(ctx context.Context, ch model.ChannelID) (transport.HistoryMessage, error) {
	return i.scan(ctx, ch, func(m transport.HistoryMessage) bool {
		return m.Rendered.OriginTag != "" && m.Rendered.Role.IsStaff()
	})
}

func (i *Index) scan(ctx context.Context, ch model.ChannelID, match func(transport.HistoryMessage) bool) (transport.HistoryMessage, error) {
	limit := i.limit()
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	messages, err := i.scanner.ScanHistory(ctx, ch, limit)
	if err != nil {
		return transport.HistoryMessage{}, fmt.Errorf("scanning channel history: %w", err)
	}

	identity := i.scanner.Identity()
	for _, m := range messages {
		if m.AuthorID != identity {
			continue
		}
		if match(m) {
			return m, nil
		}
	}
	return transport.HistoryMessage{}, ErrNotFound
}
