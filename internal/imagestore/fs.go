package imagestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore keeps images in a local directory served under a public base URL.
type FSStore struct {
	root    string
	baseURL string
}

func NewFS(root, publicBaseURL string) *FSStore {
	return &FSStore{root: root, baseURL: publicBaseURL}
}

func (s *FSStore) Name() string { return "fs" }

// Root returns the directory images are written to.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) Put(_ context.Context, key, _ string, r io.Reader) (Handle, error) {
	key, err := cleanKey(key)
	if err != nil {
		return Handle{}, err
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return Handle{}, fmt.Errorf("create directories: %w", err)
	}

	dest, err := os.Create(fullPath)
	if err != nil {
		return Handle{}, fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(dest, r); err != nil {
		dest.Close()
		os.Remove(fullPath)
		return Handle{}, fmt.Errorf("write file: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(fullPath)
		return Handle{}, fmt.Errorf("close file: %w", err)
	}

	slog.Debug("image stored", "backend", "fs", "path", fullPath)
	return Handle{Key: key, URL: joinURL(s.baseURL, key)}, nil
}

// CheckAccess creates the root directory if needed and verifies it is one.
func (s *FSStore) CheckAccess(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnavailable, s.root)
	}
	return nil
}
