// Package blocklist tracks which users may not open or use sessions.
// Entries live in memory and persist through the settings cache, so the
// registry survives restarts without its own table.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/settings"
)

var (
	// ErrNotBlocked is returned when an unblock targets a user with no
	// active entry.
	ErrNotBlocked = errors.New("blocklist: user is not blocked")

	// ErrAlreadyBlocked is returned when a manual block targets a user
	// already under a manual entry.
	ErrAlreadyBlocked = errors.New("blocklist: user is already blocked")

	// ErrReservedReason is returned when an operator-supplied reason
	// collides with the markers automated entries use.
	ErrReservedReason = errors.New("blocklist: reason uses a reserved marker")
)

// InternalReasonPrefix marks entries placed by automated checks. Manual
// reasons may not start with it.
const InternalReasonPrefix = "System Message: "

// Legacy expiry markers embedded timestamps between percent signs;
// reasons that look like that would be misread by older tooling.
var placeholderPattern = regexp.MustCompile(`%.+%`)

// StateStore is the persistence surface the registry needs.
type StateStore interface {
	LoadJSON(key string, v any) error
	StoreJSON(ctx context.Context, key string, v any) error
}

// Registry is the active blocklist. All methods are safe for concurrent
// use.
type Registry struct {
	state StateStore

	mu      sync.Mutex
	entries map[model.UserID]model.BlockEntry

	now func() time.Time
}

func New(state StateStore) *Registry {
	return &Registry{
		state:   state,
		entries: make(map[model.UserID]model.BlockEntry),
		now:     time.Now,
	}
}

// Load hydrates the registry from persisted state. Call once after the
// settings cache is ready.
func (r *Registry) Load() error {
	entries := make(map[model.UserID]model.BlockEntry)
	if err := r.state.LoadJSON(settings.KeyBlocked, &entries); err != nil {
		return fmt.Errorf("loading blocklist: %w", err)
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

// IsBlocked reports whether user currently has an active entry. Expired
// entries are pruned on sight and the prune persisted.
func (r *Registry) IsBlocked(ctx context.Context, user model.UserID) (model.BlockEntry, bool) {
	r.mu.Lock()
	entry, ok := r.entries[user]
	if ok && entry.Expired(r.now()) {
		delete(r.entries, user)
		ok = false
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if !ok && entry.ExpiresAt != nil {
		// Entry was just pruned; persist best-effort.
		if err := r.state.StoreJSON(ctx, settings.KeyBlocked, snapshot); err != nil {
			slog.WarnContext(ctx, "failed to persist blocklist prune", "user_id", string(user), "error", err)
		}
		slog.InfoContext(ctx, "block expired", "user_id", string(user))
		return model.BlockEntry{}, false
	}
	if !ok {
		return model.BlockEntry{}, false
	}
	return entry, true
}

// Block places a manual entry for user. A nil expiry blocks permanently.
// An existing manual entry is an error; an existing automated entry is
// overridden.
func (r *Registry) Block(ctx context.Context, user model.UserID, reason string, expiresAt *time.Time) error {
	// Prefix check runs on the raw value: trimming first would let a
	// reason equal to the marker itself slip past HasPrefix.
	if strings.HasPrefix(reason, InternalReasonPrefix) {
		return fmt.Errorf("%w: reason may not start with %q", ErrReservedReason, InternalReasonPrefix)
	}
	reason = strings.TrimSpace(reason)
	if strings.HasPrefix(reason, strings.TrimSpace(InternalReasonPrefix)) {
		return fmt.Errorf("%w: reason may not start with %q", ErrReservedReason, InternalReasonPrefix)
	}
	if placeholderPattern.MatchString(reason) {
		return fmt.Errorf("%w: reason may not contain %%...%% markers", ErrReservedReason)
	}

	entry := model.BlockEntry{Reason: reason, ExpiresAt: expiresAt}

	r.mu.Lock()
	if existing, ok := r.entries[user]; ok && !existing.Internal && !existing.Expired(r.now()) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyBlocked, user)
	}
	r.entries[user] = entry
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.state.StoreJSON(ctx, settings.KeyBlocked, snapshot); err != nil {
		return fmt.Errorf("persisting block: %w", err)
	}

	slog.InfoContext(ctx, "user blocked", "user_id", string(user), "permanent", expiresAt == nil)
	return nil
}

// BlockInternal places an automated entry for user. It never overrides a
// manual entry and reports whether it took effect.
func (r *Registry) BlockInternal(ctx context.Context, user model.UserID, reason string, expiresAt *time.Time) (bool, error) {
	entry := model.BlockEntry{
		Reason:    InternalReasonPrefix + reason,
		ExpiresAt: expiresAt,
		Internal:  true,
	}

	r.mu.Lock()
	if existing, ok := r.entries[user]; ok && !existing.Internal && !existing.Expired(r.now()) {
		r.mu.Unlock()
		return false, nil
	}
	r.entries[user] = entry
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.state.StoreJSON(ctx, settings.KeyBlocked, snapshot); err != nil {
		return false, fmt.Errorf("persisting internal block: %w", err)
	}

	slog.InfoContext(ctx, "user blocked by automated check", "user_id", string(user), "reason", reason)
	return true, nil
}

// Unblock removes the entry for user and returns it, so callers can tell
// a lifted manual block from a lifted automated one.
func (r *Registry) Unblock(ctx context.Context, user model.UserID) (model.BlockEntry, error) {
	r.mu.Lock()
	entry, ok := r.entries[user]
	if !ok || entry.Expired(r.now()) {
		delete(r.entries, user)
		r.mu.Unlock()
		return model.BlockEntry{}, fmt.Errorf("%w: %s", ErrNotBlocked, user)
	}
	delete(r.entries, user)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.state.StoreJSON(ctx, settings.KeyBlocked, snapshot); err != nil {
		return model.BlockEntry{}, fmt.Errorf("persisting unblock: %w", err)
	}

	slog.InfoContext(ctx, "user unblocked", "user_id", string(user), "was_internal", entry.Internal)
	return entry, nil
}

// List returns a copy of all active entries, pruning expired ones from
// the returned view only.
func (r *Registry) List() map[model.UserID]model.BlockEntry {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[model.UserID]model.BlockEntry, len(r.entries))
	for user, entry := range r.entries {
		if entry.Expired(now) {
			continue
		}
		out[user] = entry
	}
	return out
}

// snapshotLocked copies the entry map for persistence. Caller holds mu.
func (r *Registry) snapshotLocked() map[model.UserID]model.BlockEntry {
	out := make(map[model.UserID]model.BlockEntry, len(r.entries))
	for user, entry := range r.entries {
		out[user] = entry
	}
	return out
}
