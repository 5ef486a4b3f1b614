// Package artifact stores design documents and work logs. The backing store
// has no native append or conditional-write primitive, so Append approximates
// atomic append with a bounded-retry read-modify-write cycle: two
// near-simultaneous appends can race, and the loser's retry re-reads a newer
// base and still appends correctly. Arbitrarily-delayed stragglers are not
// reconciled.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Append retry policy: 3 attempts, exponential backoff starting at 100ms.
const (
	appendAttempts        = 3
	appendInitialInterval = 100 * time.Millisecond
)

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = errors.New("invalid artifact key")

// Store is the artifact storage contract. Read returns empty content (not an
// error) for a missing key; absence is a normal state for logs that haven't
// been started yet.
type Store interface {
	Read(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, key, content string) error
	Append(ctx context.Context, key, content string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// FSStore implements Store on the local filesystem.
type FSStore struct {
	root string

	// writeFile is swapped by tests to inject transient failures into the
	// append retry path.
	writeFile func(path string, data []byte) error
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a filesystem-backed artifact store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	s := &FSStore{root: dir}
	s.writeFile = s.atomicWrite
	return s, nil
}

// path resolves a key under the store root, rejecting traversal.
func (s *FSStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.Clean(key)), nil
}

// atomicWrite writes via a temp file and rename so readers never observe a
// partial artifact.
func (s *FSStore) atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Read returns the artifact content, or empty content for a missing key.
func (s *FSStore) Read(ctx context.Context, key string) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read artifact %s: %w", key, err)
	}
	return string(data), nil
}

// Write replaces the artifact content.
func (s *FSStore) Write(ctx context.Context, key, content string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.writeFile(path, []byte(content)); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", key, err)
	}
	return nil
}

// Append appends content using a bounded-retry read-modify-write cycle. A
// concurrent append that lands between our read and write makes the write a
// retry: the next attempt re-reads the newer base, so the loser's content is
// still appended rather than lost.
func (s *FSStore) Append(ctx context.Context, key, content string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = appendInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, appendAttempts-1), ctx)

	err = backoff.Retry(func() error {
		base, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err // retryable
		}
		return s.writeFile(path, append(base, []byte(content)...))
	}, policy)
	if err != nil {
		return fmt.Errorf("failed to append to artifact %s: %w", key, err)
	}
	return nil
}

// Delete removes the artifact. Deleting a missing key is a no-op.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact %s: %w", key, err)
	}
	return nil
}

// Exists reports whether the artifact is present.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat artifact %s: %w", key, err)
	}
	return true, nil
}
