// Package store persists session snapshots to disk
package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/rs/zerolog"
)

// DefaultPersistInterval is the minimum time between two writes of Save
const DefaultPersistInterval = 2 * time.Second

// FileStore keeps the latest snapshot as a JSON file. Writes from Save are
// throttled; Flush forces out whatever is pending.
type FileStore struct {
	mu              sync.Mutex
	filePath        string
	current         session.Snapshot
	dirty           bool // current has not been written yet
	lastPersist     time.Time
	persistInterval time.Duration
	logger          zerolog.Logger
}

// NewFileStore creates a store backed by filePath
func NewFileStore(filePath string, persistInterval time.Duration, logger zerolog.Logger) *FileStore {
	if persistInterval <= 0 {
		persistInterval = DefaultPersistInterval
	}
	return &FileStore{
		filePath:        filePath,
		current:         session.DefaultSnapshot(),
		persistInterval: persistInterval,
		logger:          logger.With().Str("component", "store").Logger(),
	}
}

// Path returns the snapshot file location
func (s *FileStore) Path() string {
	return s.filePath
}

// Save records snap and writes it unless the last write was too recent
func (s *FileStore) Save(ctx context.Context, snap session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = snap
	s.dirty = true
	return s.throttledPersist()
}

// Flush writes the pending snapshot, if any
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persist()
}

// Load reads the snapshot file. A missing or unreadable file yields
// session.DefaultSnapshot.
func (s *FileStore) Load(ctx context.Context) session.Snapshot {
	snap, err := s.restore()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug().Str("path", s.filePath).Msg("No saved session, starting fresh")
		} else {
			s.logger.Warn().Err(&session.RestoreError{Path: s.filePath, Err: err}).Msg("Discarding saved session")
		}
		return session.DefaultSnapshot()
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	return snap
}

// throttledPersist writes only when persistInterval has elapsed since the
// last write. Must be called with lock held.
func (s *FileStore) throttledPersist() error {
	if time.Since(s.lastPersist) < s.persistInterval {
		return nil
	}
	return s.persist()
}

// persist writes current to disk. Must be called with lock held.
func (s *FileStore) persist() error {
	if s.filePath == "" {
		s.dirty = false
		return nil
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return err
	}

	s.dirty = false
	s.lastPersist = time.Now()
	return nil
}

func (s *FileStore) restore() (session.Snapshot, error) {
	if s.filePath == "" {
		return session.Snapshot{}, os.ErrNotExist
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return session.Snapshot{}, err
	}

	// Fields missing from older files keep their defaults
	snap := session.DefaultSnapshot()
	if err := json.Unmarshal(data, &snap); err != nil {
		return session.Snapshot{}, err
	}
	if snap.QueueTrackIDs == nil {
		snap.QueueTrackIDs = []string{}
	}
	return snap, nil
}
