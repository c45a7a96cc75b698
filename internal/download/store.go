package download

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store holds the full-text artifacts for one pipeline run. Its directory is
// created per run and removed at cleanup, so failed runs never accumulate
// files.
type Store struct {
	dir string
}

// NewTempStore creates a store backed by a fresh temporary directory.
func NewTempStore() (*Store, error) {
	dir, err := os.MkdirTemp("", "arxiv-artifacts-")
	if err != nil {
		return nil, fmt.Errorf("download: create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// NewStoreAt creates a store rooted at dir, creating it if needed. Used by
// tests and by configurations that pin the download directory.
func NewStoreAt(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("download: create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the artifact path for an article id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".pdf")
}

// Has reports whether an artifact for the id is already present.
func (s *Store) Has(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Cleanup removes the whole artifact directory. Safe to call more than once.
func (s *Store) Cleanup() error {
	return os.RemoveAll(s.dir)
}
