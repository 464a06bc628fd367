package dumpstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio"

	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

const lockRetryDelay = 25 * time.Millisecond

// FileStore keeps a dump in a local file. Writers take an exclusive lock on
// "<path>.lock" and replace the file atomically; readers take a shared lock.
type FileStore struct {
	path        string
	lockTimeout time.Duration
}

// NewFileStore returns a store for path. A zero lockTimeout waits only as
// long as ctx allows.
func NewFileStore(path string, lockTimeout time.Duration) *FileStore {
	return &FileStore{path: path, lockTimeout: lockTimeout}
}

func (s *FileStore) Location() string { return s.path }

func (s *FileStore) Close() error { return nil }

// Ping checks that the dump's directory exists.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDumpNotFound, s.path)
		}
		return nil, fmt.Errorf("reading dump %s: %w", s.path, err)
	}
	lock, err := s.lock(ctx, true)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDumpNotFound, s.path)
		}
		return nil, fmt.Errorf("reading dump %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}
	lock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing dump %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) lock(ctx context.Context, shared bool) (*flock.Flock, error) {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	fl := flock.New(s.path + ".lock")
	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = fl.TryRLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = fl.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("locking %s: held by another process", fl.Path())
	}
	return fl, nil
}
