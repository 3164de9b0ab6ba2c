// Package images downloads, validates and stores dish photos.
package images

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AssetStore writes image files into the static assets directory.
type AssetStore struct {
	baseDir string
}

// NewAssetStore creates the base directory if needed and verifies it is
// writable.
func NewAssetStore(baseDir string) (*AssetStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("assets directory is required")
	}

	info, err := os.Stat(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat assets directory: %w", err)
		}
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create assets directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("assets path %q is not a directory", baseDir)
	}

	marker := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(marker, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("assets directory is not writable: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		return nil, fmt.Errorf("clean up marker file: %w", err)
	}

	return &AssetStore{baseDir: baseDir}, nil
}

// Write stores data under filename.
func (s *AssetStore) Write(filename string, data []byte) error {
	full, err := s.path(filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

// Open returns a reader over a stored file.
func (s *AssetStore) Open(filename string) (io.ReadCloser, error) {
	full, err := s.path(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	return f, nil
}

// Exists reports whether filename is already materialized.
func (s *AssetStore) Exists(filename string) bool {
	full, err := s.path(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// Remove deletes a stored file. Missing files are not an error.
func (s *AssetStore) Remove(filename string) error {
	full, err := s.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", filename, err)
	}
	return nil
}

// path joins filename onto the base directory, rejecting anything that
// would escape it.
func (s *AssetStore) path(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleanBase := filepath.Clean(s.baseDir)
	full := filepath.Clean(filepath.Join(s.baseDir, filename))
	if !strings.HasPrefix(full, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected in %q", filename)
	}
	return full, nil
}
