package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore stores blobs on the local filesystem under a root directory.
// Used by the CLI tools and tests; production deployments point at a gateway
// via HTTPStore.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed blob store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

func (s *FSStore) resolve(pointer string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(pointer))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob pointer: %s", pointer)
	}
	return filepath.Join(s.root, clean), nil
}

// Get implements the Store interface.
func (s *FSStore) Get(ctx context.Context, pointer string) ([]byte, error) {
	path, err := s.resolve(pointer)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", pointer, err)
	}
	return data, nil
}

// Put implements the Store interface. The contentType is not stored; the
// pointer's extension carries the type.
func (s *FSStore) Put(ctx context.Context, pointer string, data []byte, contentType string) error {
	path, err := s.resolve(pointer)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", pointer, err)
	}
	return nil
}
