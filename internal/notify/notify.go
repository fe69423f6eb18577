// Package notify tracks who gets pinged when a recipient's next message
// arrives. One-shot entries fire once and clear; subscriptions persist
// until removed or the session closes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/settings"
)

var (
	// ErrAlreadyPresent is returned when a target is already registered
	// for the session in the requested registry.
	ErrAlreadyPresent = errors.New("notify: target already registered")

	// ErrNotSubscribed is returned when an unsubscribe targets a session
	// the target is not subscribed to.
	ErrNotSubscribed = errors.New("notify: target is not subscribed")
)

// StateStore is the persistence surface the registry needs.
type StateStore interface {
	LoadJSON(key string, v any) error
	StoreJSON(ctx context.Context, key string, v any) error
}

// Registry holds both notification sets keyed by session. Targets are
// mention strings, so roles and users work alike.
type Registry struct {
	state StateStore

	mu            sync.Mutex
	oneShot       map[model.UserID][]string
	subscriptions map[model.UserID][]string
}

func New(state StateStore) *Registry {
	return &Registry{
		state:         state,
		oneShot:       make(map[model.UserID][]string),
		subscriptions: make(map[model.UserID][]string),
	}
}

// Load hydrates both sets from persisted state.
func (r *Registry) Load() error {
	oneShot := make(map[model.UserID][]string)
	if err := r.state.LoadJSON(settings.KeyNotificationSquad, &oneShot); err != nil {
		return fmt.Errorf("loading one-shot notifications: %w", err)
	}
	subscriptions := make(map[model.UserID][]string)
	if err := r.state.LoadJSON(settings.KeySubscriptions, &subscriptions); err != nil {
		return fmt.Errorf("loading subscriptions: %w", err)
	}

	r.mu.Lock()
	r.oneShot = oneShot
	r.subscriptions = subscriptions
	r.mu.Unlock()
	return nil
}

// AddOneShot registers target for a single notification on session's
// next recipient message.
func (r *Registry) AddOneShot(ctx context.Context, session model.UserID, target string) error {
	r.mu.Lock()
	if contains(r.oneShot[session], target) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyPresent, target)
	}
	r.oneShot[session] = append(r.oneShot[session], target)
	snapshot := copyMap(r.oneShot)
	r.mu.Unlock()

	if err := r.state.StoreJSON(ctx, settings.KeyNotificationSquad, snapshot); err != nil {
		return fmt.Errorf("persisting one-shot notification: %w", err)
	}
	return nil
}

// AddSubscription registers target for every recipient message on
// session until removed.
func (r *Registry) AddSubscription(ctx context.Context, session model.UserID, target string) error {
	r.mu.Lock()
	if contains(r.subscriptions[session], target) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyPresent, target)
	}
	r.subscriptions[session] = append(r.subscriptions[session], target)
	snapshot := copyMap(r.subscriptions)
	r.mu.Unlock()

	if err := r.state.StoreJSON(ctx, settings.KeySubscriptions, snapshot); err != nil {
		return fmt.Errorf("persisting subscription: %w", err)
	}
	return nil
}

// RemoveSubscription drops target's subscription on session.
func (r *Registry) RemoveSubscription(ctx context.Context, session model.UserID, target string) error {
	r.mu.Lock()
	targets := r.subscriptions[session]
	idx := index(targets, target)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, target)
	}
	targets = append(targets[:idx], targets[idx+1:]...)
	if len(targets) == 0 {
		delete(r.subscriptions, session)
	} else {
		r.subscriptions[session] = targets
	}
	snapshot := copyMap(r.subscriptions)
	r.mu.Unlock()

	if err := r.state.StoreJSON(ctx, settings.KeySubscriptions, snapshot); err != nil {
		return fmt.Errorf("persisting unsubscribe: %w", err)
	}
	return nil
}

// DrainOneShot atomically returns and clears the pending one-shot set
// for session. A second call without a new AddOneShot returns nothing.
func (r *Registry) DrainOneShot(ctx context.Context, session model.UserID) []string {
	r.mu.Lock()
	pending := r.oneShot[session]
	if len(pending) == 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.oneShot, session)
	snapshot := copyMap(r.oneShot)
	r.mu.Unlock()

	if err := r.state.StoreJSON(ctx, settings.KeyNotificationSquad, snapshot); err != nil {
		slog.WarnContext(ctx, "failed to persist one-shot drain", "session_id", string(session), "error", err)
	}
	return pending
}

// Mentions returns everything that should be pinged for session's next
// recipient message: subscriptions plus any pending one-shot entries.
// One-shot entries are consumed through DrainOneShot; calling twice
// without a new AddOneShot in between returns only the subscriptions.
func (r *Registry) Mentions(ctx context.Context, session model.UserID) []string {
	pending := r.DrainOneShot(ctx, session)

	r.mu.Lock()
	out := make([]string, 0, len(r.subscriptions[session])+len(pending))
	out = append(out, r.subscriptions[session]...)
	r.mu.Unlock()

	for _, t := range pending {
		if !contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Subscribers returns the current subscription list for session.
func (r *Registry) Subscribers(session model.UserID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.subscriptions[session]))
	copy(out, r.subscriptions[session])
	return out
}

// ClearSession drops all state tied to session. Called on close.
func (r *Registry) ClearSession(ctx context.Context, session model.UserID) error {
	r.mu.Lock()
	_, hadOneShot := r.oneShot[session]
	_, hadSubs := r.subscriptions[session]
	delete(r.oneShot, session)
	delete(r.subscriptions, session)
	oneShotSnapshot := copyMap(r.oneShot)
	subsSnapshot := copyMap(r.subscriptions)
	r.mu.Unlock()

	if hadOneShot {
		if err := r.state.StoreJSON(ctx, settings.KeyNotificationSquad, oneShotSnapshot); err != nil {
			return fmt.Errorf("clearing one-shot notifications: %w", err)
		}
	}
	if hadSubs {
		if err := r.state.StoreJSON(ctx, settings.KeySubscriptions, subsSnapshot); err != nil {
			return fmt.Errorf("clearing subscriptions: %w", err)
		}
	}
	return nil
}

func contains(list []string, target string) bool {
	return index(list, target) >= 0
}

func index(list []string, target string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}

func copyMap(in map[model.UserID][]string) map[model.UserID][]string {
	out := make(map[model.UserID][]string, len(in))
	for k, v := range in {
		vv := make([]string, len(v))
		copy(vv, v)
		out[k] = vv
	}
	return out
}
