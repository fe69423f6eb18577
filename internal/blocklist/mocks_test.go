package blocklist_test

import (
	"context"
	"encoding/json"
)

// memoryState keeps persisted registry JSON in memory, mirroring what
// the settings cache does with internal keys.
type memoryState struct {
	data    map[string]string
	storeFn func(ctx context.Context, key string, v any) error
}

func newMemoryState() *memoryState {
	return &memoryState{data: map[string]string{}}
}

func (m *memoryState) LoadJSON(key string, v any) error {
	raw, ok := m.data[key]
	if !ok {
		raw = "{}"
	}
	return json.Unmarshal([]byte(raw), v)
}

func (m *memoryState) StoreJSON(ctx context.Context, key string, v any) error {
	if m.storeFn != nil {
		return m.storeFn(ctx, key, v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = string(raw)
	return nil
}
