package handler_test

import (
	"context"
	"time"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/store"
	"mailroom.app/engine/internal/thread"
)

type mockSessions struct {
	listFn          func() []model.Session
	getFn           func(recipient model.UserID) (*thread.Session, error)
	openFn          func(ctx context.Context, recipient model.UserID, recipientName string, creator model.UserID) (*thread.Session, error)
	closeFn         func(ctx context.Context, recipient, closer model.UserID, delay time.Duration, silent bool, message string) error
	cancelCloseFn   func(ctx context.Context, recipient, canceller model.UserID) error
	relayFn         func(ctx context.Context, recipient model.UserID, in thread.RelayInput) error
	noteFn          func(ctx context.Context, recipient, author model.UserID, logicalID, body string) error
	editMessageFn   func(ctx context.Context, recipient model.UserID, logicalID, newBody string) error
	deleteMessageFn func(ctx context.Context, recipient model.UserID, logicalID string) error
	logLinkFn       func(ctx context.Context, recipient model.UserID) (string, error)
}

func (m *mockSessions) List() []model.Session {
	if m.listFn != nil {
		return m.listFn()
	}
	return nil
}

func (m *mockSessions) Get(recipient model.UserID) (*thread.Session, error) {
	if m.getFn != nil {
		return m.getFn(recipient)
	}
	return nil, thread.ErrSessionNotFound
}

func (m *mockSessions) Open(ctx context.Context, recipient model.UserID, recipientName string, creator model.UserID) (*thread.Session, error) {
	if m.openFn != nil {
		return m.openFn(ctx, recipient, recipientName, creator)
	}
	return nil, nil
}

func (m *mockSessions) Close(ctx context.Context, recipient, closer model.UserID, delay time.Duration, silent bool, message string) error {
	if m.closeFn != nil {
		return m.closeFn(ctx, recipient, closer, delay, silent, message)
	}
	return nil
}

func (m *mockSessions) CancelClose(ctx context.Context, recipient, canceller model.UserID) error {
	if m.cancelCloseFn != nil {
		return m.cancelCloseFn(ctx, recipient, canceller)
	}
	return nil
}

func (m *mockSessions) Relay(ctx context.Context, recipient model.UserID, in thread.RelayInput) error {
	if m.relayFn != nil {
		return m.relayFn(ctx, recipient, in)
	}
	return nil
}

func (m *mockSessions) Note(ctx context.Context, recipient, author model.UserID, logicalID, body string) error {
	if m.noteFn != nil {
		return m.noteFn(ctx, recipient, author, logicalID, body)
	}
	return nil
}

func (m *mockSessions) EditMessage(ctx context.Context, recipient model.UserID, logicalID, newBody string) error {
	if m.editMessageFn != nil {
		return m.editMessageFn(ctx, recipient, logicalID, newBody)
	}
	return nil
}

func (m *mockSessions) DeleteMessage(ctx context.Context, recipient model.UserID, logicalID string) error {
	if m.deleteMessageFn != nil {
		return m.deleteMessageFn(ctx, recipient, logicalID)
	}
	return nil
}

func (m *mockSessions) LogLink(ctx context.Context, recipient model.UserID) (string, error) {
	if m.logLinkFn != nil {
		return m.logLinkFn(ctx, recipient)
	}
	return "", nil
}

type mockBlocks struct {
	listFn      func() map[model.UserID]model.BlockEntry
	isBlockedFn func(ctx context.Context, user model.UserID) (model.BlockEntry, bool)
	blockFn     func(ctx context.Context, user model.UserID, reason string, expiresAt *time.Time) error
	unblockFn   func(ctx context.Context, user model.UserID) (model.BlockEntry, error)
}

func (m *mockBlocks) List() map[model.UserID]model.BlockEntry {
	if m.listFn != nil {
		return m.listFn()
	}
	return nil
}

func (m *mockBlocks) IsBlocked(ctx context.Context, user model.UserID) (model.BlockEntry, bool) {
	if m.isBlockedFn != nil {
		return m.isBlockedFn(ctx, user)
	}
	return model.BlockEntry{}, false
}

func (m *mockBlocks) Block(ctx context.Context, user model.UserID, reason string, expiresAt *time.Time) error {
	if m.blockFn != nil {
		return m.blockFn(ctx, user, reason, expiresAt)
	}
	return nil
}

func (m *mockBlocks) Unblock(ctx context.Context, user model.UserID) (model.BlockEntry, error) {
	if m.unblockFn != nil {
		return m.unblockFn(ctx, user)
	}
	return model.BlockEntry{}, nil
}

type mockConfig struct {
	userVisibleFn func() map[string]string
	setFn         func(ctx context.Context, key, value string) (string, error)
	refreshFn     func(ctx context.Context) error
}

func (m *mockConfig) UserVisible() map[string]string {
	if m.userVisibleFn != nil {
		return m.userVisibleFn()
	}
	return map[string]string{}
}

func (m *mockConfig) Set(ctx context.Context, key, value string) (string, error) {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return value, nil
}

func (m *mockConfig) Refresh(ctx context.Context) error {
	if m.refreshFn != nil {
		return m.refreshFn(ctx)
	}
	return nil
}

type mockLogs struct {
	getUserLogsFn func(ctx context.Context, recipient model.UserID) ([]model.LogRecord, error)
	findLogsFn    func(ctx context.Context, f store.LogFilter) ([]model.LogRecord, error)
}

func (m *mockLogs) GetUserLogs(ctx context.Context, recipient model.UserID) ([]model.LogRecord, error) {
	if m.getUserLogsFn != nil {
		return m.getUserLogsFn(ctx, recipient)
	}
	return nil, nil
}

func (m *mockLogs) FindLogs(ctx context.Context, f store.LogFilter) ([]model.LogRecord, error) {
	if m.findLogsFn != nil {
		return m.findLogsFn(ctx, f)
	}
	return nil, nil
}
