package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"numbot/core/logger"
	"numbot/internal/domain"
)

// FileStore keeps the whole state in a single JSON document on disk.
// One mutex spans the full load→mutate→save cycle, so concurrent events
// from different users cannot lose updates.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// NewFileStore builds a store over the given JSON file path. A missing
// file is first-run bootstrap, not an error.
func NewFileStore(path string) *FileStore {
	log := logger.STORE
	if log == nil {
		log = slog.Default().With("component", "store")
	}
	return &FileStore{
		path: path,
		log:  log,
	}
}

// View runs fn over the current state. Changes made by fn are not saved.
func (f *FileStore) View(ctx context.Context, fn func(s *State) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := f.load()
	if err != nil {
		return err
	}
	return fn(state)
}

// Update runs fn under the store lock and atomically persists the result.
// When fn or the save fails, the on-disk state is left untouched.
func (f *FileStore) Update(ctx context.Context, fn func(s *State) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return f.save(state)
}

func (f *FileStore) load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		f.log.Error("state read failed",
			slog.String("event", "store.load"),
			slog.String("path", f.path),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStoreIO, f.path, err)
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		// Undecodable content cannot be repaired; treat as first run.
		f.log.Warn("state not decodable, using empty default",
			slog.String("event", "store.load"),
			slog.String("path", f.path),
			slog.String("err", err.Error()),
		)
		return NewState(), nil
	}
	if state.Users == nil {
		state.Users = make(map[int64]*domain.User)
	}
	if state.Numbers == nil {
		state.Numbers = make(map[string]domain.NumberRecord)
	}
	if err := Validate(state); err != nil {
		f.log.Error("state invariant violated",
			slog.String("event", "store.load"),
			slog.String("path", f.path),
			slog.String("err", err.Error()),
		)
		return nil, err
	}
	return state, nil
}

// save writes via tmp+rename so concurrent loaders never observe a
// partial document.
func (f *FileStore) save(state *State) error {
	if err := Validate(state); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode state: %v", domain.ErrStoreIO, err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("%w: temp file: %v", domain.ErrStoreIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write state: %v", domain.ErrStoreIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close state: %v", domain.ErrStoreIO, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		f.log.Error("state rename failed",
			slog.String("event", "store.save"),
			slog.String("path", f.path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%w: rename state: %v", domain.ErrStoreIO, err)
	}

	f.log.Debug("state saved",
		slog.String("event", "store.save"),
		slog.String("path", f.path),
		slog.Int("users_total", len(state.Users)),
		slog.Int("numbers_total", len(state.Numbers)),
		slog.Int("pending_count", len(state.PendingApprovals)),
	)
	return nil
}
