package store

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T, interval time.Duration) *FileStore {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "session.json"), interval, zerolog.Nop())
}

func sampleSnapshot() session.Snapshot {
	return session.Snapshot{
		CurrentTrackID: "b",
		Position:       42 * time.Second,
		IsPlaying:      true,
		Volume:         0.7,
		Mode:           session.ModeRepeatAll,
		QueueTrackIDs:  []string{"a", "b", "c"},
		QueueIndex:     1,
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t, 10*time.Millisecond)
	ctx := context.Background()

	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store reads what the first one wrote
	other := NewFileStore(s.Path(), time.Hour, zerolog.Nop())
	got := other.Load(ctx)

	want := sampleSnapshot()
	if got.CurrentTrackID != want.CurrentTrackID || got.Position != want.Position ||
		got.Volume != want.Volume || got.Mode != want.Mode || got.QueueIndex != want.QueueIndex ||
		got.IsPlaying != want.IsPlaying {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !slices.Equal(got.QueueTrackIDs, want.QueueTrackIDs) {
		t.Errorf("QueueTrackIDs = %v, want %v", got.QueueTrackIDs, want.QueueTrackIDs)
	}
}

func TestSave_WritesModeAsText(t *testing.T) {
	s := newTestStore(t, 10*time.Millisecond)
	if err := s.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"mode": "repeat-all"`) {
		t.Errorf("file does not contain text mode:\n%s", data)
	}
	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s := newTestStore(t, time.Hour)

	got := s.Load(context.Background())
	if got.Volume != 1 || got.QueueIndex != -1 || got.Mode != session.ModeSequential {
		t.Errorf("Load() = %+v, want DefaultSnapshot", got)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{ nope"},
		{"unknown mode", `{"mode": "backwards"}`},
		{"wrong type", `{"queueTrackIds": 12}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, time.Hour)
			if err := os.WriteFile(s.Path(), []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}

			got := s.Load(context.Background())
			if got.Volume != 1 || got.QueueIndex != -1 || len(got.QueueTrackIDs) != 0 {
				t.Errorf("Load() = %+v, want DefaultSnapshot", got)
			}
		})
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	s := newTestStore(t, time.Hour)
	if err := os.WriteFile(s.Path(), []byte(`{"queueTrackIds": ["x"], "queueIndex": 0}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := s.Load(context.Background())
	if got.Volume != 1 {
		t.Errorf("Volume = %v, want default 1", got.Volume)
	}
	if !slices.Equal(got.QueueTrackIDs, []string{"x"}) || got.QueueIndex != 0 {
		t.Errorf("Load() = %+v", got)
	}
}

func TestThrottledPersist_SkipsWhenIntervalNotElapsed(t *testing.T) {
	s := newTestStore(t, 1*time.Hour) // very long interval
	ctx := context.Background()

	// First save writes since nothing was persisted yet
	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info1, err := os.Stat(s.filePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	snap := sampleSnapshot()
	snap.Position = time.Minute
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info2, err := os.Stat(s.filePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info2.ModTime() != info1.ModTime() || info2.Size() != info1.Size() {
		t.Error("Save wrote to disk when interval had not elapsed")
	}

	// dirty flag should be set
	s.mu.Lock()
	dirty := s.dirty
	s.mu.Unlock()
	if !dirty {
		t.Error("expected dirty flag to be true after throttled skip")
	}
}

func TestThrottledPersist_WritesWhenIntervalElapsed(t *testing.T) {
	s := newTestStore(t, 10*time.Millisecond) // very short interval
	ctx := context.Background()

	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Wait for interval to elapse
	time.Sleep(20 * time.Millisecond)

	snap := sampleSnapshot()
	snap.Position = 2 * time.Minute
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s.mu.Lock()
	dirty := s.dirty
	s.mu.Unlock()
	if dirty {
		t.Error("expected dirty flag to be false after write")
	}

	got := NewFileStore(s.Path(), time.Hour, zerolog.Nop()).Load(ctx)
	if got.Position != 2*time.Minute {
		t.Errorf("Position = %s, want 2m", got.Position)
	}
}

func TestFlush_WritesWhenDirty(t *testing.T) {
	s := newTestStore(t, 1*time.Hour)
	ctx := context.Background()

	if err := s.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, err := os.ReadFile(s.filePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// Throttled, stays in memory
	snap := sampleSnapshot()
	snap.QueueIndex = 2
	snap.CurrentTrackID = "c"
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	after, err := os.ReadFile(s.filePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) == string(after) {
		t.Error("Flush did not write updated snapshot to disk")
	}

	s.mu.Lock()
	dirty := s.dirty
	s.mu.Unlock()
	if dirty {
		t.Error("expected dirty flag to be false after Flush")
	}
}

func TestFlush_NoOpWhenClean(t *testing.T) {
	s := newTestStore(t, 1*time.Hour)

	if err := s.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info1, err := os.Stat(s.filePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	// Flush on clean state should be no-op
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	info2, err := os.Stat(s.filePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info2.ModTime() != info1.ModTime() {
		t.Error("Flush wrote to disk when state was clean")
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "session.json")
	s := NewFileStore(path, time.Millisecond, zerolog.Nop())

	if err := s.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stat: %v", err)
	}
}
