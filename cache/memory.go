package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Ensure Memory implements the store interfaces
var _ Cache = (*Memory)(nil)
var _ Sweeper = (*Memory)(nil)

// Memory is an in-process Cache. Entries are stored as JSON so readers and
// writers never share mutable values, matching the behavior of the
// out-of-process backends.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an in-memory cache. A ttl of zero disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string, v any) error {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || m.expired(entry) {
		return ErrNotFound
	}
	if err := json.Unmarshal(entry.payload, v); err != nil {
		return fmt.Errorf("decoding cache entry %q: %w", key, err)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry %q: %w", key, err)
	}

	entry := memoryEntry{payload: payload}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Drop(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Sweep removes expired entries and reports how many were purged.
func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for key, entry := range m.entries {
		if m.expired(entry) {
			delete(m.entries, key)
			purged++
		}
	}
	return purged, nil
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt)
}
