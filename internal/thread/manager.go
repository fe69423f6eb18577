// Package thread owns session lifecycle: opening, relaying, scheduled
// closes, and recovery after restarts. One live Session exists per
// recipient; everything else consults it through the Manager.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mailroom.app/engine/common/logger"
	"mailroom.app/engine/common/timefmt"
	"mailroom.app/engine/internal/events"
	"mailroom.app/engine/internal/history"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/scheduler"
	"mailroom.app/engine/internal/settings"
	"mailroom.app/engine/internal/transport"
)

var (
	// ErrDuplicateSession is returned when an open targets a recipient
	// with a live session.
	ErrDuplicateSession = errors.New("thread: session already open")

	// ErrSessionNotFound is returned when no live session exists for the
	// recipient.
	ErrSessionNotFound = errors.New("thread: no open session")

	// ErrNotScheduled is returned when a cancel targets a session without
	// a pending close.
	ErrNotScheduled = errors.New("thread: no close scheduled")

	// ErrNoEditableMessage is returned when edit/delete resolution finds
	// no matching relayed message in the scan window.
	ErrNoEditableMessage = errors.New("thread: no editable message found")
)

// LogStore is the slice of the persistence API the manager needs.
type LogStore interface {
	CreateLogEntry(ctx context.Context, rec model.LogRecord) (string, error)
	AppendLogMessage(ctx context.Context, ch model.ChannelID, msg model.LogMessage) error
	CloseLog(ctx context.Context, ch model.ChannelID, closer model.UserID, message *string) (model.LogRecord, error)
	GetLogLink(ctx context.Context, ch model.ChannelID) (string, error)
}

// StateStore persists recovery state through the settings internal
// namespace.
type StateStore interface {
	LoadJSON(key string, v any) error
	StoreJSON(ctx context.Context, key string, v any) error
}

// Notifier is the mention fan-out surface for recipient messages.
type Notifier interface {
	Mentions(ctx context.Context, session model.UserID) []string
	ClearSession(ctx context.Context, session model.UserID) error
}

// Resolver finds relayed messages in channel history.
type Resolver interface {
	Find(ctx context.Context, ch model.ChannelID, logicalID string) (transport.HistoryMessage, error)
	LatestStaff(ctx context.Context, ch model.ChannelID) (transport.HistoryMessage, error)
}

// ConfigReader is the read-only settings slice the manager consults.
type ConfigReader interface {
	Get(key string) string
	GetOr(key, fallback string) string
}

// Manager holds every live session and drives their lifecycle.
type Manager struct {
	transport transport.Transport
	presenter events.Presenter
	scheduler *scheduler.Scheduler
	notify    Notifier
	index     Resolver
	logs      LogStore
	state     StateStore
	config    ConfigReader
	category  string

	mu       sync.RWMutex
	sessions map[model.UserID]*Session

	now func() time.Time
}

type Deps struct {
	Transport transport.Transport
	Presenter events.Presenter
	Scheduler *scheduler.Scheduler
	Notify    Notifier
	Index     Resolver
	Logs      LogStore
	State     StateStore
	Config    ConfigReader
	Category  string
}

func NewManager(d Deps) *Manager {
	return &Manager{
		transport: d.Transport,
		presenter: d.Presenter,
		scheduler: d.Scheduler,
		notify:    d.Notify,
		index:     d.Index,
		logs:      d.Logs,
		state:     d.State,
		config:    d.Config,
		category:  d.Category,
		sessions:  make(map[model.UserID]*Session),
		now:       time.Now,
	}
}

// Get returns the live session for recipient.
func (m *Manager) Get(recipient model.UserID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[recipient]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, recipient)
	}
	return s, nil
}

// List returns snapshots of every live session.
func (m *Manager) List() []model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Open creates a session for recipient: reserves the slot, provisions
// the staff channel, creates the log entry, then greets both sides.
// Concurrent relays for the same recipient block on the ready gate until
// the channel exists.
func (m *Manager) Open(ctx context.Context, recipient model.UserID, recipientName string, creator model.UserID) (*Session, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RecipientID: logger.Ptr(string(recipient)),
		Component:   "mailroom.thread",
	})

	s := newSession(recipient, recipientName, m.now())

	m.mu.Lock()
	if existing, ok := m.sessions[recipient]; ok && existing.State() != model.SessionClosed {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, recipient)
	}
	m.sessions[recipient] = s
	m.mu.Unlock()

	channel, err := m.transport.CreateChannel(ctx, channelName(recipient, recipientName), m.category)
	if err != nil {
		m.drop(recipient)
		return nil, fmt.Errorf("creating session channel: %w", err)
	}

	if _, err := m.logs.CreateLogEntry(ctx, model.LogRecord{
		ChannelID: channel,
		Recipient: recipient,
		Creator:   creator,
		Open:      true,
		CreatedAt: s.createdAt,
	}); err != nil {
		m.drop(recipient)
		return nil, fmt.Errorf("creating session log: %w", err)
	}

	s.mu.Lock()
	s.channel = channel
	s.mu.Unlock()
	close(s.ready)

	if err := m.persistSessions(ctx); err != nil {
		slog.WarnContext(ctx, "failed to persist session mapping", "error", err)
	}

	now := m.now()
	m.post(ctx, channel, events.Event{
		Kind:       events.KindSessionOpened,
		SessionID:  recipient,
		ChannelID:  channel,
		Author:     creator,
		AuthorName: recipientName,
		Mentions:   mentionList(m.config.Get("mention")),
		OccurredAt: now,
	})

	if direct, derr := m.transport.DirectChannel(ctx, recipient); derr == nil {
		m.post(ctx, direct, events.Event{
			Kind:       events.KindSessionGreeting,
			SessionID:  recipient,
			Author:     creator,
			Body:       m.config.Get("thread_creation_response"),
			OccurredAt: now,
		})
	} else {
		slog.WarnContext(ctx, "failed to resolve direct channel for greeting", "error", derr)
	}

	slog.InfoContext(ctx, "session opened", "channel_id", string(channel))
	return s, nil
}

// Close ends the session. A zero delay closes immediately; a positive
// delay moves the session to CLOSING, persists the pending closure for
// restart recovery, and announces the scheduled close unless silent.
// Scheduling over an already pending close replaces it.
func (m *Manager) Close(ctx context.Context, recipient, closer model.UserID, delay time.Duration, silent bool, message string) error {
	s, err := m.Get(recipient)
	if err != nil {
		return err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RecipientID: logger.Ptr(string(recipient)),
		Component:   "mailroom.thread",
	})

	if delay <= 0 {
		return m.finalize(ctx, s, closer, silent, message)
	}

	record := model.ClosureRecord{
		SessionID: recipient,
		FireAt:    m.now().Add(delay),
		CloserID:  closer,
		Silent:    silent,
		Message:   message,
	}

	s.mu.Lock()
	if s.closeAction != 0 {
		m.scheduler.Cancel(s.closeAction)
	}
	s.state = model.SessionClosing
	s.closure = &record
	s.closeAction = m.scheduler.ScheduleAt(record.FireAt, func(fireCtx context.Context) error {
		return m.fireScheduledClose(fireCtx, recipient)
	})
	channel := s.channel
	s.mu.Unlock()

	if err := m.persistClosures(ctx); err != nil {
		return fmt.Errorf("persisting pending closure: %w", err)
	}

	if !silent {
		m.post(ctx, channel, events.Event{
			Kind:       events.KindCloseScheduled,
			SessionID:  recipient,
			ChannelID:  channel,
			Author:     closer,
			Delay:      delay,
			DelayHuman: timefmt.Human(delay),
			Scheduled:  true,
			OccurredAt: m.now(),
		})
	}

	slog.InfoContext(ctx, "close scheduled", "fire_at", record.FireAt, "silent", silent)
	return nil
}

// CancelClose aborts a pending scheduled close and returns the session
// to ACTIVE.
func (m *Manager) CancelClose(ctx context.Context, recipient, canceller model.UserID) error {
	s, err := m.Get(recipient)
	if err != nil {
		return err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RecipientID: logger.Ptr(string(recipient)),
		Component:   "mailroom.thread",
	})

	s.mu.Lock()
	if s.state != model.SessionClosing {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotScheduled, recipient)
	}
	m.scheduler.Cancel(s.closeAction)
	s.closeAction = 0
	s.closure = nil
	s.state = model.SessionActive
	channel := s.channel
	s.mu.Unlock()

	if err := m.persistClosures(ctx); err != nil {
		slog.WarnContext(ctx, "failed to persist closure cancellation", "error", err)
	}

	m.post(ctx, channel, events.Event{
		Kind:       events.KindCloseCancelled,
		SessionID:  recipient,
		ChannelID:  channel,
		Author:     canceller,
		OccurredAt: m.now(),
	})

	slog.InfoContext(ctx, "scheduled close cancelled")
	return nil
}

// RelayInput is one message to push through a session.
type RelayInput struct {
	Author     model.UserID
	AuthorName string
	Role       model.AuthorRole
	LogicalID  string
	Body       string
}

// Relay pushes a message through the session. Recipient messages go to
// the staff channel with notification fan-out; staff replies go to both
// the recipient's direct channel and the staff channel. Any relay on a
// CLOSING session cancels the pending close first.
func (m *Manager) Relay(ctx context.Context, recipient model.UserID, in RelayInput) error {
	s, err := m.Get(recipient)
	if err != nil {
		return err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RecipientID: logger.Ptr(string(recipient)),
		MessageID:   logger.Ptr(in.LogicalID),
		Component:   "mailroom.thread",
	})

	if err := s.WaitUntilReady(ctx); err != nil {
		return fmt.Errorf("waiting for session channel: %w", err)
	}

	if s.State() == model.SessionClosing {
		if err := m.CancelClose(ctx, recipient, in.Author); err != nil && !errors.Is(err, ErrNotScheduled) {
			return fmt.Errorf("cancelling pending close on relay: %w", err)
		}
	}

	channel := s.Channel()
	now := m.now()

	var kind events.Kind
	var mentions []string
	if in.Role == model.RoleRecipient {
		kind = events.KindRecipientMessage
		mentions = m.notify.Mentions(ctx, recipient)
	} else {
		kind = events.KindStaffReply
	}

	event := events.Event{
		Kind:       kind,
		SessionID:  recipient,
		ChannelID:  channel,
		Author:     in.Author,
		AuthorName: in.AuthorName,
		LogicalID:  in.LogicalID,
		Role:       in.Role,
		Anonymous:  in.Role == model.RoleAnonymousStaff,
		Body:       in.Body,
		Mentions:   mentions,
		OccurredAt: now,
	}

	if _, err := m.transport.PostMessage(ctx, channel, m.presenter.Render(event)); err != nil {
		return fmt.Errorf("relaying to session channel: %w", err)
	}

	if in.Role.IsStaff() {
		direct, err := m.transport.DirectChannel(ctx, recipient)
		if err != nil {
			return fmt.Errorf("resolving recipient channel: %w", err)
		}
		if _, err := m.transport.PostMessage(ctx, direct, m.presenter.Render(event)); err != nil {
			return fmt.Errorf("relaying to recipient: %w", err)
		}
	}

	if err := m.logs.AppendLogMessage(ctx, channel, model.LogMessage{
		LogicalID: in.LogicalID,
		AuthorID:  in.Author,
		Role:      in.Role,
		Body:      in.Body,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("appending to session log: %w", err)
	}

	return nil
}

// Note posts a staff-only system note into the session channel. The
// recipient never sees it.
func (m *Manager) Note(ctx context.Context, recipient, author model.UserID, logicalID, body string) error {
	s, err := m.Get(recipient)
	if err != nil {
		return err
	}
	if err := s.WaitUntilReady(ctx); err != nil {
		return fmt.Errorf("waiting for session channel: %w", err)
	}

	channel := s.Channel()
	now := m.now()

	event := events.Event{
		Kind:       events.KindNote,
		SessionID:  recipient,
		ChannelID:  channel,
		Author:     author,
		LogicalID:  logicalID,
		Role:       model.RoleSystemNote,
		Body:       body,
		OccurredAt: now,
	}
	if _, err := m.transport.PostMessage(ctx, channel, m.presenter.Render(event)); err != nil {
		return fmt.Errorf("posting note: %w", err)
	}

	if err := m.logs.AppendLogMessage(ctx, channel, model.LogMessage{
		LogicalID: logicalID,
		AuthorID:  author,
		Role:      model.RoleSystemNote,
		Body:      body,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("appending note to session log: %w", err)
	}
	return nil
}

// ResolveEditable finds the relayed message an edit or delete targets:
// the exact logical id when given, otherwise the newest staff reply.
func (m *Manager) ResolveEditable(ctx context.Context, recipient model.UserID, logicalID string) (transport.HistoryMessage, error) {
	s, err := m.Get(recipient)
	if err != nil {
		return transport.HistoryMessage{}, err
	}

	var msg transport.HistoryMessage
	if logicalID != "" {
		msg, err = m.index.Find(ctx, s.Channel(), logicalID)
	} else {
		msg, err = m.index.LatestStaff(ctx, s.Channel())
	}
	if errors.Is(err, history.ErrNotFound) {
		return transport.HistoryMessage{}, fmt.Errorf("%w: %s", ErrNoEditableMessage, recipient)
	}
	if err != nil {
		return transport.HistoryMessage{}, err
	}
	return msg, nil
}

// EditMessage rewrites a relayed staff message in both channels. The
// recipient-side copy may already be gone; that is not an error.
func (m *Manager) EditMessage(ctx context.Context, recipient model.UserID, logicalID, newBody string) error {
	s, err := m.Get(recipient)
	if err != nil {
		return err
	}

	staffMsg, err := m.ResolveEditable(ctx, recipient, logicalID)
	if err != nil {
		return err
	}

	updated := staffMsg.Rendered
	updated.Body = newBody

	if err := m.transport.EditMessage(ctx, s.Channel(), staffMsg.Ref, updated); err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoEditableMessage, recipient)
		}
		return fmt.Errorf("editing session channel message: %w", err)
	}

	if err := m.mirrorToRecipient(ctx, recipient, staffMsg.Rendered.OriginTag, func(ch model.ChannelID, ref model.MessageID) error {
		return m.transport.EditMessage(ctx, ch, ref, updated)
	}); err != nil {
		return fmt.Errorf("editing recipient copy: %w", err)
	}
	return nil
}

// DeleteMessage removes a relayed staff message from both channels.
// Deleting an already-deleted message resolves to ErrNoEditableMessage.
func (m *Manager) DeleteMessage(ctx context.Context, recipient model.UserID, logicalID string) error {
	s, err := m.Get(recipient)
	if err != nil {
		return err
	}

	staffMsg, err := m.ResolveEditable(ctx, recipient, logicalID)
	if err != nil {
		return err
	}

	if err := m.transport.DeleteMessage(ctx, s.Channel(), staffMsg.Ref); err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoEditableMessage, recipient)
		}
		return fmt.Errorf("deleting session channel message: %w", err)
	}

	if err := m.mirrorToRecipient(ctx, recipient, staffMsg.Rendered.OriginTag, func(ch model.ChannelID, ref model.MessageID) error {
		return m.transport.DeleteMessage(ctx, ch, ref)
	}); err != nil {
		return fmt.Errorf("deleting recipient copy: %w", err)
	}
	return nil
}

// mirrorToRecipient applies op to the recipient-channel copy carrying
// the same origin tag. A missing copy is tolerated.
func (m *Manager) mirrorToRecipient(ctx context.Context, recipient model.UserID, originTag string, op func(model.ChannelID, model.MessageID) error) error {
	direct, err := m.transport.DirectChannel(ctx, recipient)
	if err != nil {
		return err
	}
	copyMsg, err := m.index.Find(ctx, direct, originTag)
	if errors.Is(err, history.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := op(direct, copyMsg.Ref); err != nil && !errors.Is(err, transport.ErrNotFound) {
		return err
	}
	return nil
}

// LogLink returns the shareable log URL for the session.
func (m *Manager) LogLink(ctx context.Context, recipient model.UserID) (string, error) {
	s, err := m.Get(recipient)
	if err != nil {
		return "", err
	}
	return m.logs.GetLogLink(ctx, s.Channel())
}

// Recover rebuilds the open-session set from persisted state. Call once
// at startup, after the settings cache is ready.
func (m *Manager) Recover(ctx context.Context) error {
	records := make(map[model.UserID]sessionRecord)
	if err := m.state.LoadJSON(settings.KeySessions, &records); err != nil {
		return fmt.Errorf("loading session mapping: %w", err)
	}

	m.mu.Lock()
	for recipient, rec := range records {
		if _, ok := m.sessions[recipient]; ok {
			continue
		}
		m.sessions[recipient] = restoredSession(recipient, rec.Name, rec.Channel, rec.CreatedAt)
	}
	restored := len(records)
	m.mu.Unlock()

	if restored > 0 {
		slog.InfoContext(ctx, "sessions restored", "count", restored)
	}
	return nil
}

// RecoverClosures re-schedules persisted pending closes. Overdue ones
// fire immediately.
func (m *Manager) RecoverClosures(ctx context.Context) error {
	records := make(map[model.UserID]model.ClosureRecord)
	if err := m.state.LoadJSON(settings.KeyClosures, &records); err != nil {
		return fmt.Errorf("loading pending closures: %w", err)
	}

	for recipient, rec := range records {
		s, err := m.Get(recipient)
		if err != nil {
			slog.WarnContext(ctx, "dropping closure for unknown session", "recipient_id", string(recipient))
			continue
		}

		rec := rec
		s.mu.Lock()
		s.state = model.SessionClosing
		s.closure = &rec
		s.closeAction = m.scheduler.ScheduleAt(rec.FireAt, func(fireCtx context.Context) error {
			return m.fireScheduledClose(fireCtx, recipient)
		})
		s.mu.Unlock()

		slog.InfoContext(ctx, "pending closure restored", "recipient_id", string(recipient), "fire_at", rec.FireAt)
	}
	return nil
}

// fireScheduledClose is the scheduler payload for a pending close. On
// failure the session stays CLOSING and the error surfaces once through
// the scheduler's log.
func (m *Manager) fireScheduledClose(ctx context.Context, recipient model.UserID) error {
	s, err := m.Get(recipient)
	if err != nil {
		return err
	}

	s.mu.Lock()
	closure := s.closure
	s.closeAction = 0
	s.mu.Unlock()

	if closure == nil {
		return nil
	}
	return m.finalize(ctx, s, closure.CloserID, closure.Silent, closure.Message)
}

func (m *Manager) finalize(ctx context.Context, s *Session, closer model.UserID, silent bool, message string) error {
	s.mu.Lock()
	if s.state == model.SessionClosed {
		s.mu.Unlock()
		return nil
	}
	recipient := s.recipient
	channel := s.channel
	s.mu.Unlock()

	var closeMessage *string
	if message != "" {
		closeMessage = &message
	}
	record, err := m.logs.CloseLog(ctx, channel, closer, closeMessage)
	if err != nil {
		return fmt.Errorf("closing session log: %w", err)
	}

	logURL, err := m.logs.GetLogLink(ctx, channel)
	if err != nil {
		slog.WarnContext(ctx, "failed to build log link", "error", err)
	}

	s.mu.Lock()
	s.state = model.SessionClosed
	s.closure = nil
	s.mu.Unlock()
	m.drop(recipient)

	if err := m.persistSessions(ctx); err != nil {
		slog.WarnContext(ctx, "failed to persist session mapping", "error", err)
	}
	if err := m.persistClosures(ctx); err != nil {
		slog.WarnContext(ctx, "failed to persist closure removal", "error", err)
	}
	if err := m.notify.ClearSession(ctx, recipient); err != nil {
		slog.WarnContext(ctx, "failed to clear notifications", "error", err)
	}

	if !silent {
		if direct, derr := m.transport.DirectChannel(ctx, recipient); derr == nil {
			body := message
			if body == "" && closer == recipient {
				body = m.config.Get("thread_self_close_response")
			}
			if body == "" {
				body = m.config.Get("thread_close_response")
			}
			m.post(ctx, direct, events.Event{
				Kind:       events.KindSessionClosed,
				SessionID:  recipient,
				Author:     closer,
				Body:       body,
				LogURL:     logURL,
				LogKey:     record.Key,
				OccurredAt: m.now(),
			})
		} else {
			slog.WarnContext(ctx, "failed to resolve direct channel for close notice", "error", derr)
		}
	}

	slog.InfoContext(ctx, "session closed",
		"recipient_id", string(recipient),
		"log_key", record.Key,
		"silent", silent)
	return nil
}

// post renders and posts a domain event, logging failures without
// failing the surrounding operation. Notices are best-effort.
func (m *Manager) post(ctx context.Context, ch model.ChannelID, e events.Event) {
	if _, err := m.transport.PostMessage(ctx, ch, m.presenter.Render(e)); err != nil {
		slog.WarnContext(ctx, "failed to post notice",
			"kind", string(e.Kind),
			"channel_id", string(ch),
			"error", err)
	}
}

func (m *Manager) drop(recipient model.UserID) {
	m.mu.Lock()
	delete(m.sessions, recipient)
	m.mu.Unlock()
}

// persistSessions writes the open-session mapping for recovery.
func (m *Manager) persistSessions(ctx context.Context) error {
	m.mu.RLock()
	records := make(map[model.UserID]sessionRecord, len(m.sessions))
	for recipient, s := range m.sessions {
		s.mu.Lock()
		if s.state != model.SessionClosed && s.channel != "" {
			records[recipient] = sessionRecord{
				Channel:   s.channel,
				Name:      s.recipientName,
				CreatedAt: s.createdAt,
			}
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	return m.state.StoreJSON(ctx, settings.KeySessions, records)
}

// persistClosures writes the pending-closure set for recovery.
func (m *Manager) persistClosures(ctx context.Context) error {
	m.mu.RLock()
	records := make(map[model.UserID]model.ClosureRecord, len(m.sessions))
	for recipient, s := range m.sessions {
		s.mu.Lock()
		if s.closure != nil {
			records[recipient] = *s.closure
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	return m.state.StoreJSON(ctx, settings.KeyClosures, records)
}

func channelName(recipient model.UserID, name string) string {
	if name == "" {
		return "session-" + string(recipient)
	}
	return name + "-" + string(recipient)
}

func mentionList(mention string) []string {
	if mention == "" {
		return nil
	}
	return []string{mention}
}
