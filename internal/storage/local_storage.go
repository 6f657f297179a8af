package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// LocalStore persists objects under a directory root. It is the default
// backend for single-node deployments and development.
type LocalStore struct {
	root string
}

// NewLocalStore creates a filesystem store rooted at the given path
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, apperrors.NewValidationError("local storage path is required", nil)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, apperrors.NewStorageError("unable to create storage root", err)
	}
	return &LocalStore{root: root}, nil
}

// resolve maps a key onto the filesystem, rejecting keys that would escape
// the root
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", apperrors.NewValidationError(fmt.Sprintf("invalid storage key %q", key), nil)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes an object under the given key
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("unable to create object directory", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.NewStorageError("unable to write object", err)
	}
	return nil
}

// Get reads the object stored under the given key
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("object %s not found", key), err)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("unable to read object", err)
	}
	return data, nil
}

// Backend names the storage backend for logs and metrics
func (s *LocalStore) Backend() string {
	return "local"
}
