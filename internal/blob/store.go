// Package blob stores small text objects between runs, such as the last
// version a monitor has seen.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when an object does not exist. Callers treat it
// as "no prior state".
var ErrNotFound = errors.New("blob: not found")

// Store reads and writes text objects grouped in containers (buckets).
type Store interface {
	UploadText(ctx context.Context, name, content, container string) error
	DownloadText(ctx context.Context, name, container string) (string, error)
}

// FileStore keeps objects as files under Root/<container>/<name>.
type FileStore struct {
	Root string
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) path(name, container string) (string, error) {
	for _, part := range []string{name, container} {
		if part == "" || strings.Contains(part, "..") || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("blob: invalid object path %q/%q", container, name)
		}
	}
	return filepath.Join(s.Root, container, name), nil
}

// UploadText writes content, replacing any existing object.
func (s *FileStore) UploadText(_ context.Context, name, content, container string) error {
	p, err := s.path(name, container)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return fmt.Errorf("blob: creating container %s: %w", container, err)
	}
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		return fmt.Errorf("blob: writing %s/%s: %w", container, name, err)
	}
	return nil
}

// DownloadText reads an object, returning ErrNotFound when it is absent.
func (s *FileStore) DownloadText(_ context.Context, name, container string) (string, error) {
	p, err := s.path(name, container)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s/%s: %w", container, name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("blob: reading %s/%s: %w", container, name, err)
	}
	return string(data), nil
}
