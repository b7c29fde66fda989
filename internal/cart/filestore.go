package cart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the cart as a JSON file on disk. Writes go through a
// temp file plus rename so a crash never leaves a half-written cart.
type FileStore struct {
	path string
}

// NewFileStore prepares the parent directory and returns the store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cart directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Read(_ context.Context) ([]byte, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotPersisted
		}
		return nil, fmt.Errorf("reading cart file: %w", err)
	}
	return payload, nil
}

func (s *FileStore) Write(_ context.Context, payload []byte) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("writing cart file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing cart file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cart file: %w", err)
	}
	return nil
}
