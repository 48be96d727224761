// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Store keeps timestamped JSON values. A registry.Accessor is a Store.
type Store interface {
	// Read returns the write time of the value, or a zero time if there is none
	Read(ctx context.Context, key string, value interface{}) (time.Time, error)
	Write(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	timestamp time.Time
}

// MemoryStore is a Store in memory
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates a memory store. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: map[string]memoryEntry{}, now: now}
}

// Read implements Store
func (m *MemoryStore) Read(_ context.Context, key string, value interface{}) (time.Time, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return time.Time{}, nil
	}
	if err := json.Unmarshal(entry.value, value); err != nil {
		return time.Time{}, err
	}
	return entry.timestamp, nil
}

// Write implements Store
func (m *MemoryStore) Write(_ context.Context, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: body, timestamp: m.now().UTC()}
	m.mu.Unlock()
	return nil
}

// Delete implements Store
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
