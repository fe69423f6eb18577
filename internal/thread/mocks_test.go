package thread_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"mailroom.app/engine/internal/events"
	"mailroom.app/engine/internal/history"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/transport"
)

type postedMessage struct {
	Channel  model.ChannelID
	Rendered transport.Rendered
}

type mockTransport struct {
	mu sync.Mutex

	createChannelFn func(ctx context.Context, name, category string) (model.ChannelID, error)
	directChannelFn func(ctx context.Context, recipient model.UserID) (model.ChannelID, error)
	postMessageFn   func(ctx context.Context, ch model.ChannelID, msg transport.Rendered) (model.MessageID, error)
	editMessageFn   func(ctx context.Context, ch model.ChannelID, id model.MessageID, msg transport.Rendered) error
	deleteMessageFn func(ctx context.Context, ch model.ChannelID, id model.MessageID) error
	scanHistoryFn   func(ctx context.Context, ch model.ChannelID, limit int) ([]transport.HistoryMessage, error)

	posted []postedMessage
	seq    int
}

func (m *mockTransport) CreateChannel(ctx context.Context, name, category string) (model.ChannelID, error) {
	if m.createChannelFn != nil {
		return m.createChannelFn(ctx, name, category)
	}
	return model.ChannelID("ch-" + name), nil
}

func (m *mockTransport) DirectChannel(ctx context.Context, recipient model.UserID) (model.ChannelID, error) {
	if m.directChannelFn != nil {
		return m.directChannelFn(ctx, recipient)
	}
	return model.ChannelID("dm-" + string(recipient)), nil
}

func (m *mockTransport) PostMessage(ctx context.Context, ch model.ChannelID, msg transport.Rendered) (model.MessageID, error) {
	if m.postMessageFn != nil {
		return m.postMessageFn(ctx, ch, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.posted = append(m.posted, postedMessage{Channel: ch, Rendered: msg})
	return model.MessageID(fmt.Sprintf("msg-%d", m.seq)), nil
}

func (m *mockTransport) EditMessage(ctx context.Context, ch model.ChannelID, id model.MessageID, msg transport.Rendered) error {
	if m.editMessageFn != nil {
		return m.editMessageFn(ctx, ch, id, msg)
	}
	return nil
}

func (m *mockTransport) DeleteMessage(ctx context.Context, ch model.ChannelID, id model.MessageID) error {
	if m.deleteMessageFn != nil {
		return m.deleteMessageFn(ctx, ch, id)
	}
	return nil
}

func (m *mockTransport) ScanHistory(ctx context.Context, ch model.ChannelID, limit int) ([]transport.HistoryMessage, error) {
	if m.scanHistoryFn != nil {
		return m.scanHistoryFn(ctx, ch, limit)
	}
	return nil, nil
}

func (m *mockTransport) Identity() model.UserID {
	return model.UserID("engine")
}

func (m *mockTransport) postedTo(ch model.ChannelID) []postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []postedMessage
	for _, p := range m.posted {
		if p.Channel == ch {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockTransport) allPosted() []postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]postedMessage, len(m.posted))
	copy(out, m.posted)
	return out
}

// passthroughPresenter stamps the event kind and origin tag into the
// rendered blob so tests can assert on what was posted.
type passthroughPresenter struct{}

func (passthroughPresenter) Render(e events.Event) transport.Rendered {
	return transport.Rendered{
		Body:      string(e.Kind) + ":" + e.Body,
		OriginTag: e.LogicalID,
		Role:      e.Role,
		Mentions:  e.Mentions,
		Footer:    e.DelayHuman,
	}
}

type memoryState struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryState() *memoryState {
	return &memoryState{data: map[string]string{}}
}

func (m *memoryState) LoadJSON(key string, v any) error {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		raw = "{}"
	}
	return json.Unmarshal([]byte(raw), v)
}

func (m *memoryState) StoreJSON(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = string(raw)
	m.mu.Unlock()
	return nil
}

type mockLogStore struct {
	mu sync.Mutex

	createLogEntryFn   func(ctx context.Context, rec model.LogRecord) (string, error)
	appendLogMessageFn func(ctx context.Context, ch model.ChannelID, msg model.LogMessage) error
	closeLogFn         func(ctx context.Context, ch model.ChannelID, closer model.UserID, message *string) (model.LogRecord, error)
	getLogLinkFn       func(ctx context.Context, ch model.ChannelID) (string, error)

	appended []model.LogMessage
}

func (m *mockLogStore) CreateLogEntry(ctx context.Context, rec model.LogRecord) (string, error) {
	if m.createLogEntryFn != nil {
		return m.createLogEntryFn(ctx, rec)
	}
	return "logkey", nil
}

func (m *mockLogStore) AppendLogMessage(ctx context.Context, ch model.ChannelID, msg model.LogMessage) error {
	if m.appendLogMessageFn != nil {
		return m.appendLogMessageFn(ctx, ch, msg)
	}
	m.mu.Lock()
	m.appended = append(m.appended, msg)
	m.mu.Unlock()
	return nil
}

func (m *mockLogStore) CloseLog(ctx context.Context, ch model.ChannelID, closer model.UserID, message *string) (model.LogRecord, error) {
	if m.closeLogFn != nil {
		return m.closeLogFn(ctx, ch, closer, message)
	}
	return model.LogRecord{Key: "logkey", ChannelID: ch, CloserID: &closer}, nil
}

func (m *mockLogStore) GetLogLink(ctx context.Context, ch model.ChannelID) (string, error) {
	if m.getLogLinkFn != nil {
		return m.getLogLinkFn(ctx, ch)
	}
	return "https://logs.example/logkey", nil
}

func (m *mockLogStore) appendedMessages() []model.LogMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.LogMessage, len(m.appended))
	copy(out, m.appended)
	return out
}

type mockNotifier struct {
	mentionsFn     func(ctx context.Context, session model.UserID) []string
	clearSessionFn func(ctx context.Context, session model.UserID) error

	cleared []model.UserID
}

func (m *mockNotifier) Mentions(ctx context.Context, session model.UserID) []string {
	if m.mentionsFn != nil {
		return m.mentionsFn(ctx, session)
	}
	return nil
}

func (m *mockNotifier) ClearSession(ctx context.Context, session model.UserID) error {
	if m.clearSessionFn != nil {
		return m.clearSessionFn(ctx, session)
	}
	m.cleared = append(m.cleared, session)
	return nil
}

type mockResolver struct {
	findFn        func(ctx context.Context, ch model.ChannelID, logicalID string) (transport.HistoryMessage, error)
	latestStaffFn func(ctx context.Context, ch model.ChannelID) (transport.HistoryMessage, error)
}

func (m *mockResolver) Find(ctx context.Context, ch model.ChannelID, logicalID string) (transport.HistoryMessage, error) {
	if m.findFn != nil {
		return m.findFn(ctx, ch, logicalID)
	}
	return transport.HistoryMessage{}, history.ErrNotFound
}

func (m *mockResolver) LatestStaff(ctx context.Context, ch model.ChannelID) (transport.HistoryMessage, error) {
	if m.latestStaffFn != nil {
		return m.latestStaffFn(ctx, ch)
	}
	return transport.HistoryMessage{}, history.ErrNotFound
}

type mockConfig struct {
	values map[string]string
}

func (m *mockConfig) Get(key string) string {
	return m.values[key]
}

func (m *mockConfig) GetOr(key, fallback string) string {
	if v := m.values[key]; v != "" {
		return v
	}
	return fallback
}
