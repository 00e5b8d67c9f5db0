// Package store defines the key-value artifact store consumed by the build
// execution layer, and the key scheme derived from fingerprints.
package store

import (
	"context"
	"sync"
)

// Entry is one key-value pair for BatchSet.
type Entry struct {
	Key   string
	Value []byte
}

// Stats describes store usage.
type Stats struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// ArtifactStore is a persistent key-value cache for build artifacts.
type ArtifactStore interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// BatchSet writes all entries atomically where the backend allows it.
	BatchSet(ctx context.Context, entries []Entry) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// InputKey is the cache key of one source file at one content hash.
func InputKey(path, contentHash string) string {
	return "input:" + path + ":" + contentHash
}

// FingerprintKey is the cache key for a fingerprint of the given kind, such
// as "graph" or "plan".
func FingerprintKey(kind, fingerprint string) string {
	return kind + ":" + fingerprint
}

// Memory is an in-process ArtifactStore.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	hits   int64
	misses int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements ArtifactStore.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		m.misses++
		return nil, false, nil
	}
	m.hits++
	return append([]byte(nil), v...), true, nil
}

// Set implements ArtifactStore.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// BatchSet implements ArtifactStore.
func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.data[e.Key] = append([]byte(nil), e.Value...)
	}
	return nil
}

// Stats implements ArtifactStore.
func (m *Memory) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Entries: int64(len(m.data)), Hits: m.hits, Misses: m.misses}
	for _, v := range m.data {
		s.Bytes += int64(len(v))
	}
	return s, nil
}

// Close implements ArtifactStore.
func (m *Memory) Close() error { return nil }
