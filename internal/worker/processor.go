package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailroom.app/engine/internal/blocklist"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/queue"
	"mailroom.app/engine/internal/thread"
)

// SessionManager is the slice of the thread manager the processor needs.
type SessionManager interface {
	Get(recipient model.UserID) (*thread.Session, error)
	Open(ctx context.Context, recipient model.UserID, recipientName string, creator model.UserID) (*thread.Session, error)
	Relay(ctx context.Context, recipient model.UserID, in thread.RelayInput) error
}

// Blocklist is the gate consulted before any inbound message is relayed.
type Blocklist interface {
	IsBlocked(ctx context.Context, user model.UserID) (model.BlockEntry, bool)
	BlockInternal(ctx context.Context, user model.UserID, reason string, expiresAt *time.Time) (bool, error)
}

// AgeChecker reports the configured minimum account age, zero when the
// check is off.
type AgeChecker interface {
	GetDuration(key string) (time.Duration, bool)
}

// InboundProcessor turns a queued recipient message into a session
// relay: account-age check, blocklist gate, find-or-open, relay.
type InboundProcessor struct {
	sessions SessionManager
	blocks   Blocklist
	config   AgeChecker

	now func() time.Time
}

func NewInboundProcessor(sessions SessionManager, blocks Blocklist, config AgeChecker) *InboundProcessor {
	return &InboundProcessor{
		sessions: sessions,
		blocks:   blocks,
		config:   config,
		now:      time.Now,
	}
}

// Process handles one inbound message. A blocked sender is dropped
// silently; everything else either relays or surfaces an error for the
// worker's retry machinery.
func (p *InboundProcessor) Process(ctx context.Context, msg queue.Message) error {
	if placed, err := p.checkAccountAge(ctx, msg); err != nil {
		return err
	} else if placed {
		return nil
	}

	if entry, blocked := p.blocks.IsBlocked(ctx, msg.RecipientID); blocked {
		slog.InfoContext(ctx, "dropping message from blocked sender",
			"recipient_id", string(msg.RecipientID),
			"internal", entry.Internal)
		return nil
	}

	if _, err := p.sessions.Get(msg.RecipientID); err != nil {
		if !errors.Is(err, thread.ErrSessionNotFound) {
			return err
		}
		if _, err := p.sessions.Open(ctx, msg.RecipientID, msg.RecipientName, msg.RecipientID); err != nil {
			// A concurrent open for the same recipient lost the race;
			// the session exists now and the relay below will use it.
			if !errors.Is(err, thread.ErrDuplicateSession) {
				return fmt.Errorf("opening session: %w", err)
			}
		}
	}

	if err := p.sessions.Relay(ctx, msg.RecipientID, thread.RelayInput{
		Author:     msg.RecipientID,
		AuthorName: msg.RecipientName,
		Role:       model.RoleRecipient,
		LogicalID:  msg.LogicalID,
		Body:       msg.Body,
	}); err != nil {
		return fmt.Errorf("relaying inbound message: %w", err)
	}

	return nil
}

// checkAccountAge places a temporary automated block on accounts younger
// than the configured minimum and reports whether it did.
func (p *InboundProcessor) checkAccountAge(ctx context.Context, msg queue.Message) (bool, error) {
	minAge, ok := p.config.GetDuration("account_age")
	if !ok || minAge <= 0 || msg.AccountCreatedAt == nil {
		return false, nil
	}

	age := p.now().Sub(*msg.AccountCreatedAt)
	if age >= minAge {
		return false, nil
	}

	expiry := msg.AccountCreatedAt.Add(minAge)
	placed, err := p.blocks.BlockInternal(ctx, msg.RecipientID, "account not old enough", &expiry)
	if err != nil {
		return false, fmt.Errorf("placing account-age block: %w", err)
	}
	if placed {
		slog.InfoContext(ctx, "blocked underage account",
			"recipient_id", string(msg.RecipientID),
			"expires_at", expiry)
	}
	return true, nil
}

var _ Blocklist = (*blocklist.Registry)(nil)
