// Package settings is the process-wide cache of mutable configuration,
// backed by the remote config store. Keys are partitioned into three
// disjoint namespaces: user-editable, internal-managed (registry state),
// and protected. Writes through the user-facing path only ever touch the
// first.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mailroom.app/engine/common/timefmt"
)

var (
	// ErrInvalidConfig is returned for values that fail validation for
	// their key category (bad color, unparseable duration).
	ErrInvalidConfig = errors.New("settings: invalid value")

	// ErrUnknownKey is returned for keys outside every namespace.
	ErrUnknownKey = errors.New("settings: unknown key")

	// ErrNotEditable is returned when a user-path write targets an
	// internal or protected key.
	ErrNotEditable = errors.New("settings: key is not user-editable")
)

// Internal-namespace keys carrying registry state.
const (
	KeyBlocked           = "blocked"
	KeyNotificationSquad = "notification_squad"
	KeySubscriptions     = "subscriptions"
	KeyClosures          = "closures"
	KeySessions          = "sessions"
)

var userKeys = map[string]bool{
	"mention":                    true,
	"main_color":                 true,
	"mod_color":                  true,
	"recipient_color":            true,
	"mod_tag":                    true,
	"anon_username":              true,
	"anon_tag":                   true,
	"account_age":                true,
	"history_scan_limit":         true,
	"thread_creation_response":   true,
	"thread_creation_title":      true,
	"thread_close_response":      true,
	"thread_self_close_response": true,
	"thread_close_title":         true,
	"thread_close_footer":        true,
}

var internalKeys = map[string]bool{
	KeyBlocked:           true,
	KeyNotificationSquad: true,
	KeySubscriptions:     true,
	KeyClosures:          true,
	KeySessions:          true,
}

var protectedKeys = map[string]bool{
	"log_url":       true,
	"database_url":  true,
	"gateway_token": true,
	"admin_api_key": true,
	"log_level":     true,
}

var colorKeys = map[string]bool{
	"main_color":      true,
	"mod_color":       true,
	"recipient_color": true,
}

var durationKeys = map[string]bool{
	"account_age": true,
}

var defaults = map[string]string{
	"mention":                    "@here",
	"main_color":                 "#3498db",
	"mod_color":                  "#2ecc71",
	"recipient_color":            "#e74c3c",
	"anon_tag":                   "Response",
	"history_scan_limit":         "100",
	"thread_creation_response":   "The staff team will get back to you as soon as possible.",
	"thread_creation_title":      "Thread Created",
	"thread_close_title":         "Thread Closed",
	"thread_self_close_response": "You have closed this thread.",
	"thread_close_footer":        "Replying will create a new thread",
}

// ConfigStore is the slice of the persistence API the cache needs.
type ConfigStore interface {
	GetConfig(ctx context.Context) (map[string]string, error)
	UpdateConfig(ctx context.Context, data map[string]string) error
}

// Cache holds typed settings in memory. Reads never block on refresh
// except during the pre-ready window before the first successful pull.
type Cache struct {
	store ConfigStore

	mu   sync.RWMutex
	data map[string]string

	readyOnce sync.Once
	ready     chan struct{}
}

func New(store ConfigStore) *Cache {
	data := make(map[string]string, len(internalKeys))
	for key := range internalKeys {
		data[key] = "{}"
	}
	return &Cache{
		store: store,
		data:  data,
		ready: make(chan struct{}),
	}
}

// Refresh pulls from the backing store and merges into the cache under
// the update lock. On failure the previous values stay intact and the
// error surfaces to the caller; the ready gate only opens on success.
func (c *Cache) Refresh(ctx context.Context) error {
	remote, err := c.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("refreshing settings: %w", err)
	}

	c.mu.Lock()
	for k, v := range remote {
		if userKeys[k] || internalKeys[k] || protectedKeys[k] {
			c.data[k] = v
		}
	}
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })
	return nil
}

// WaitUntilReady blocks until the first successful refresh or ctx ends.
func (c *Cache) WaitUntilReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the first refresh has completed.
func (c *Cache) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Get returns the cached value for key, falling back to the built-in
// default and then to the empty string.
func (c *Cache) Get(key string) string {
	c.mu.RLock()
	v, ok := c.data[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	return defaults[key]
}

// GetOr returns the cached value or the given fallback when unset.
func (c *Cache) GetOr(key, fallback string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return fallback
}

// GetDuration returns a duration-category setting, false when unset or
// unparseable.
func (c *Cache) GetDuration(key string) (time.Duration, bool) {
	v := c.Get(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GetInt returns an integer setting or the fallback.
func (c *Cache) GetInt(key string, fallback int) int {
	v := c.Get(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

// Set writes through the user-facing path: the key must be in the
// user-editable namespace, and the value is validated and normalized for
// its category before being cached and persisted. Returns the display
// form of the stored value.
func (c *Cache) Set(ctx context.Context, key, value string) (string, error) {
	switch {
	case userKeys[key]:
	case internalKeys[key] || protectedKeys[key]:
		return "", fmt.Errorf("%w: %q", ErrNotEditable, key)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	clean, display, err := cleanValue(key, value)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	previous, hadPrevious := c.data[key]
	c.data[key] = clean
	c.mu.Unlock()

	if err := c.store.UpdateConfig(ctx, map[string]string{key: clean}); err != nil {
		// Keep cache and store consistent: roll the cache back.
		c.mu.Lock()
		if hadPrevious {
			c.data[key] = previous
		} else {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return "", fmt.Errorf("persisting setting %q: %w", key, err)
	}

	slog.InfoContext(ctx, "setting updated", "key", key, "value", display)
	return display, nil
}

// UserVisible returns a copy of the user-editable keys and their current
// values, defaults included.
func (c *Cache) UserVisible() map[string]string {
	out := make(map[string]string, len(userKeys))
	for key := range userKeys {
		out[key] = c.Get(key)
	}
	return out
}

// LoadJSON decodes the internal-namespace key into v.
func (c *Cache) LoadJSON(key string, v any) error {
	raw := c.Get(key)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding internal key %q: %w", key, err)
	}
	return nil
}

// StoreJSON encodes v into the internal-namespace key, caching and
// persisting it. Registries use this as their persistence path.
func (c *Cache) StoreJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding internal key %q: %w", key, err)
	}

	c.mu.Lock()
	c.data[key] = string(raw)
	c.mu.Unlock()

	if err := c.store.UpdateConfig(ctx, map[string]string{key: string(raw)}); err != nil {
		return fmt.Errorf("persisting internal key %q: %w", key, err)
	}
	return nil
}

func cleanValue(key, value string) (clean, display string, err error) {
	switch {
	case colorKeys[key]:
		clean, err = normalizeColor(value)
		if err != nil {
			return "", "", err
		}
		if clean != value {
			return clean, fmt.Sprintf("%s (%s)", value, clean), nil
		}
		return clean, clean, nil

	case durationKeys[key]:
		clean, display, err = timefmt.Normalize(value, time.Now())
		if err != nil {
			return "", "", fmt.Errorf("%w: %q is neither a duration string nor a recognizable relative time", ErrInvalidConfig, value)
		}
		return clean, display, nil

	default:
		return value, value, nil
	}
}
