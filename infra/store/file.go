package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/trips"
)

const lockRetryDelay = 10 * time.Millisecond

// FileStore keeps one JSON document per vehicle in a directory, named after
// the storage key. Writers take an advisory lock on a sibling ".lock" file so
// several processes can share the directory.
type FileStore struct {
	dir string
	mu  sync.RWMutex

	afterLoad func()
}

// NewFileStore ensures dir exists.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(vehicleID string) string {
	return filepath.Join(s.dir, trips.StorageKey(vehicleID))
}

func (s *FileStore) Load(_ context.Context, vehicleID string) ([]model.Trip, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(vehicleID)
}

func (s *FileStore) read(vehicleID string) ([]model.Trip, bool, error) {
	raw, err := os.ReadFile(s.path(vehicleID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", s.path(vehicleID), err)
	}
	list, err := env.Trips()
	return list, true, err
}

// Save writes to a temporary file and renames it over the previous document.
func (s *FileStore) Save(ctx context.Context, vehicleID string, list []model.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(ctx, vehicleID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(vehicleID, list)
}

// Mutate reads, applies fn and writes back while holding the vehicle's lock
// file, so concurrent writers in other processes are serialised too.
func (s *FileStore) Mutate(ctx context.Context, vehicleID string, fn trips.MutateFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	defer unlock()
	cur, found, err := s.read(vehicleID)
	if err != nil {
		return false, err
	}
	if s.afterLoad != nil {
		s.afterLoad()
	}
	next, changed, err := fn(cur, found)
	if err != nil || !changed {
		return false, err
	}
	if err := s.write(vehicleID, next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) lock(ctx context.Context, vehicleID string) (func(), error) {
	fl := flock.New(s.path(vehicleID) + ".lock")
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", fl.Path())
	}
	return func() { _ = fl.Unlock() }, nil
}

func (s *FileStore) write(vehicleID string, list []model.Trip) error {
	b, err := json.MarshalIndent(NewEnvelope(vehicleID, list), "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(vehicleID))
}

func (s *FileStore) Close() error { return nil }

var _ trips.Mutator = (*FileStore)(nil)
