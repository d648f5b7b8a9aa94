// Package store persists serialized detection models.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrNotFound is returned when no model is stored under a name.
var ErrNotFound = errors.New("model not found")

// ModelStore keeps model blobs by name.
type ModelStore interface {
	// Put stores data under name, replacing any previous blob.
	Put(ctx context.Context, name string, data []byte) error

	// Get returns the blob stored under name or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes the blob stored under name. Missing names are ignored.
	Delete(ctx context.Context, name string) error

	// Close releases resources.
	Close() error
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName rejects names that cannot be used as a file name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid model name %q", name)
	}
	return nil
}

// FileStore keeps one file per model in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".model")
}

// Put implements ModelStore. The file is replaced atomically.
func (s *FileStore) Put(_ context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("rename model: %w", err)
	}
	return nil
}

// Get implements ModelStore.
func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return data, nil
}

// Delete implements ModelStore.
func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}

// Close implements ModelStore.
func (s *FileStore) Close() error {
	return nil
}
