package notes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists notes as one JSON file, for headless clients that
// outlive a single process. Writes rewrite the whole file; note volumes are
// tiny (a handful of strings per session).
type FileStore struct {
	path string

	mu   sync.Mutex
	data map[string]map[string]string
}

// NewFileStore loads (or creates) the store at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: make(map[string]map[string]string),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notes file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse notes file: %w", err)
	}
	return s, nil
}

func (s *FileStore) Get(sessionID, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[sessionID]
	if !ok {
		return "", false
	}
	value, ok := bucket[key]
	return value, ok
}

func (s *FileStore) Set(sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[sessionID]
	if !ok {
		bucket = make(map[string]string)
		s.data[sessionID] = bucket
	}
	bucket[key] = value
	return s.flushLocked()
}

func (s *FileStore) Delete(sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.data[sessionID]; ok {
		delete(bucket, key)
	}
	return s.flushLocked()
}

func (s *FileStore) Keys(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.data[sessionID]
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	return keys
}

func (s *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create notes directory: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write notes file: %w", err)
	}
	return nil
}
