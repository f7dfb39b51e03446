// Package kvstore provides the key-value backends behind the persistent
// store adapter. Every backend stores opaque JSON documents under the
// collection keys and lists keys by prefix.
package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is a process-local store. Used for tests and the "memory" driver.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte

	failMu     sync.RWMutex
	failWrites map[string]error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items:      make(map[string][]byte),
		failWrites: make(map[string]error),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.failMu.RLock()
	err := m.failWrites[key]
	m.failMu.RUnlock()
	if err != nil {
		return err
	}

	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	m.items[key] = buf
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// FailWrites makes subsequent writes to key fail with err. A nil err
// clears the failure. It simulates a full or unavailable backend.
func (m *Memory) FailWrites(key string, err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	if err == nil {
		delete(m.failWrites, key)
		return
	}
	m.failWrites[key] = err
}

// SetRaw stores bytes without validation. Used to seed corrupt values.
func (m *Memory) SetRaw(key string, value []byte) {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
}
