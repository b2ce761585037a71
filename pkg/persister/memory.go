// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package persister

import (
	"sort"
	"strings"
	"sync"
)

// MemoryPersister is the in-memory Persister used by tests and by the
// `memory` backend setting. Contents do not survive a restart.
type MemoryPersister struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory persister.
func NewMemory() *MemoryPersister {
	return &MemoryPersister{data: make(map[string][]byte)}
}

// Get implements Persister#Get.
func (m *MemoryPersister) Get(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[Join(path)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// GetMany implements Persister#GetMany.
func (m *MemoryPersister) GetMany(paths []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(paths))
	for _, path := range paths {
		if value, ok := m.data[Join(path)]; ok {
			out := make([]byte, len(value))
			copy(out, value)
			result[path] = out
		}
	}
	return result, nil
}

// Set implements Persister#Set.
func (m *MemoryPersister) Set(path string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(path, value)
	return nil
}

// SetMany implements Persister#SetMany. The write is atomic: the lock is
// held across the whole batch.
func (m *MemoryPersister) SetMany(values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path, value := range values {
		m.set(path, value)
	}
	return nil
}

func (m *MemoryPersister) set(path string, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[Join(path)] = stored
}

// GetChildren implements Persister#GetChildren. Children are derived from
// the stored keys, so a node exists as soon as anything lives beneath it.
func (m *MemoryPersister) GetChildren(path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := Join(path)
	seen := make(map[string]struct{})
	for key := range m.data {
		if prefix != "" {
			if !strings.HasPrefix(key, prefix+PathSeparator) {
				continue
			}
			key = key[len(prefix)+1:]
		}
		if key == "" {
			continue
		}
		child := strings.SplitN(key, PathSeparator, 2)[0]
		seen[child] = struct{}{}
	}

	children := make([]string, 0, len(seen))
	for child := range seen {
		children = append(children, child)
	}
	sort.Strings(children)
	return children, nil
}

// Delete implements Persister#Delete.
func (m *MemoryPersister) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := Join(path)
	deleted := false
	for key := range m.data {
		if key == prefix || (prefix != "" && strings.HasPrefix(key, prefix+PathSeparator)) {
			delete(m.data, key)
			deleted = true
		}
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Close implements Persister#Close.
func (m *MemoryPersister) Close() error {
	return nil
}
