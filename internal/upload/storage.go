// Package upload moves media attachments into object storage and records
// them in the conversation. The invariant is exactly one media message per
// successful upload and none at all for a failed one: the message is
// appended only after the storage backend has accepted every byte.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrUploadFailed marks a transfer that did not complete. No message is
// recorded for it; the caller re-initiates explicitly.
var ErrUploadFailed = errors.New("upload failed")

// ObjectStorage is the media backend. Put streams the full object and
// returns the URL peers use to fetch it.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
}

// LocalStorage keeps media as plain files under a directory, for sessions
// without an object store configured. The returned URL is a file path.
type LocalStorage struct {
	dir string
}

// NewLocalStorage ensures dir exists and returns a backend rooted there.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

func (s *LocalStorage) Put(_ context.Context, key, _ string, r io.Reader, _ int64) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(key))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
