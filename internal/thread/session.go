package thread

import (
	"context"
	"sync"
	"time"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/scheduler"
)

// Session is the live relay binding for one recipient. All state
// transitions happen under the session's own mutex; the manager never
// holds two session locks at once.
type Session struct {
	mu sync.Mutex

	recipient     model.UserID
	recipientName string
	channel       model.ChannelID
	state         model.SessionState
	createdAt     time.Time

	closeAction scheduler.ActionID
	closure     *model.ClosureRecord

	// ready is closed once the staff channel exists. Relays that arrive
	// while channel creation is still in flight wait on it.
	ready chan struct{}
}

func newSession(recipient model.UserID, name string, now time.Time) *Session {
	return &Session{
		recipient:     recipient,
		recipientName: name,
		state:         model.SessionActive,
		createdAt:     now,
		ready:         make(chan struct{}),
	}
}

// restoredSession rebuilds a session whose channel already exists.
func restoredSession(recipient model.UserID, name string, channel model.ChannelID, createdAt time.Time) *Session {
	s := newSession(recipient, name, createdAt)
	s.channel = channel
	close(s.ready)
	return s
}

// WaitUntilReady blocks until the staff channel exists or ctx ends.
func (s *Session) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the session as the shape that crosses API boundaries.
func (s *Session) Snapshot() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Session{
		ID:        s.recipient,
		ChannelID: s.channel,
		Recipient: s.recipient,
		State:     s.state,
		CreatedAt: s.createdAt,
	}
}

// Channel returns the staff channel handle. Only valid after the ready
// gate opens.
func (s *Session) Channel() model.ChannelID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// State returns the current lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// sessionRecord is the persisted shape of an open session, stored in the
// settings internal namespace for recovery after restarts.
type sessionRecord struct {
	Channel   model.ChannelID `json:"channel_id"`
	Name      string          `json:"name,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
