package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Store persists small JSON documents, one file per logical key, in a data
// directory. Writes go to a temporary file and are renamed over the target,
// so a concurrent reader never observes a partially written document.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *logrus.Logger
}

// New creates a store rooted at dir, creating the directory if needed
func New(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Store{
		dir:    dir,
		logger: logger,
	}, nil
}

// Load decodes the document stored under key into v. A missing or corrupt
// file leaves v untouched, so the caller's zero value acts as the default:
// local persistence is a best-effort cache, not a source of truth.
func (s *Store) Load(key string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warnf("Failed to read %s, using defaults: %v", key, err)
		return
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warnf("Corrupt document %s, using defaults: %v", key, err)
	}
}

// Save writes the document for key atomically
func (s *Store) Save(key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	target := s.path(key)
	tmpFile := target + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, target)
}

// path returns the file backing a logical key
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
