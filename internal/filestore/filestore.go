// Package filestore persists uploaded statement documents on local disk.
// Jobs reference the stored path; workers read the bytes back when they
// process the job.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes uploads under a base directory.
type Store struct {
	dir string
}

// New creates a file store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create upload directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Save writes data under a fresh uuid-based name, keeping the original
// extension, and returns the stored path.
func (s *Store) Save(originalName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("could not store upload %s: %w", originalName, err)
	}
	return path, nil
}

// Read returns the bytes of a previously stored upload.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read stored upload %s: %w", path, err)
	}
	return data, nil
}
