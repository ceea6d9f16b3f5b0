// Package notes is the explicit key-value port for the persistent local
// store: the saved session id and per-game private notes. Values are
// partitioned by session id and only the UI-facing note API writes here;
// the synchronization core never touches it.
package notes

import (
	"sync"
)

// Store is the key-value port injected into the engine.
type Store interface {
	Get(sessionID, key string) (string, bool)
	Set(sessionID, key, value string) error
	Delete(sessionID, key string) error
	// Keys lists the keys stored under one session.
	Keys(sessionID string) []string
}

// MemoryStore is the default in-process implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (s *MemoryStore) Get(sessionID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.data[sessionID]
	if !ok {
		return "", false
	}
	value, ok := bucket[key]
	return value, ok
}

func (s *MemoryStore) Set(sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[sessionID]
	if !ok {
		bucket = make(map[string]string)
		s.data[sessionID] = bucket
	}
	bucket[key] = value
	return nil
}

func (s *MemoryStore) Delete(sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.data[sessionID]; ok {
		delete(bucket, key)
	}
	return nil
}

func (s *MemoryStore) Keys(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.data[sessionID]
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	return keys
}
