// Package testutil contains shared test doubles
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
)

// ErrNotFound is returned by MemoryCatalog for unknown ids
var ErrNotFound = errors.New("track not found")

// FakeEngine is a scriptable [music.Engine] that records every call
type FakeEngine struct {
	mu sync.Mutex

	calls     []string
	durations map[string]time.Duration
	loadErrs  map[string]error
	playErr   error
	seekErr   error
	gates     map[string]chan struct{}

	source  uint64
	path    string
	playing bool
	seek    time.Duration
	volume  float64

	events chan music.Event
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		durations: make(map[string]time.Duration),
		loadErrs:  make(map[string]error),
		gates:     make(map[string]chan struct{}),
		volume:    1,
		events:    make(chan music.Event, 64),
	}
}

// SetDuration sets what Load reports for path
func (f *FakeEngine) SetDuration(path string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations[path] = d
}

// FailLoad makes every Load of path return err
func (f *FakeEngine) FailLoad(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErrs[path] = err
}

// FailPlay makes Play return err until called again with nil
func (f *FakeEngine) FailPlay(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playErr = err
}

// FailSeek makes Seek return err until called again with nil
func (f *FakeEngine) FailSeek(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekErr = err
}

// Block makes Load of path wait until release is called or its context ends
func (f *FakeEngine) Block(path string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[path] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, path)
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeEngine) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *FakeEngine) Load(ctx context.Context, source uint64, path string) (time.Duration, error) {
	f.mu.Lock()
	f.record("load %s", path)
	gate := f.gates[path]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, &music.LoadError{Path: path, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.loadErrs[path]; err != nil {
		return 0, &music.LoadError{Path: path, Err: err}
	}
	f.source = source
	f.path = path
	f.playing = false
	f.seek = 0
	return f.durations[path], nil
}

func (f *FakeEngine) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("play")
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *FakeEngine) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("pause")
	f.playing = false
	return nil
}

func (f *FakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("stop")
	f.playing = false
	f.seek = 0
	return nil
}

func (f *FakeEngine) Seek(pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("seek %s", pos)
	if f.seekErr != nil {
		return f.seekErr
	}
	f.seek = pos
	return nil
}

func (f *FakeEngine) SetVolume(level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("volume %.2f", level)
	f.volume = level
	return nil
}

func (f *FakeEngine) Events() <-chan music.Event {
	return f.events
}

func (f *FakeEngine) Close() error {
	return nil
}

// Emit delivers ev to the session as if the engine raised it
func (f *FakeEngine) Emit(ev music.Event) {
	f.events <- ev
}

// End signals that the loaded source played to completion
func (f *FakeEngine) End() {
	f.Emit(music.Event{Kind: music.EventEnded, Source: f.Source()})
}

// Progress reports pos for the loaded source
func (f *FakeEngine) Progress(pos time.Duration) {
	f.Emit(music.Event{Kind: music.EventProgress, Source: f.Source(), Position: pos})
}

// Crash reports a mid-playback failure of the loaded source
func (f *FakeEngine) Crash(err error) {
	f.Emit(music.Event{Kind: music.EventError, Source: f.Source(), Err: &music.PlaybackError{Path: f.Loaded(), Err: err}})
}

// Calls returns a copy of the recorded calls in order
func (f *FakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many recorded calls start with prefix
func (f *FakeEngine) CountCalls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Source returns the source id of the last successful load
func (f *FakeEngine) Source() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source
}

// Loaded returns the path of the last successful load
func (f *FakeEngine) Loaded() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

func (f *FakeEngine) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// SeekPosition returns the last successful seek target
func (f *FakeEngine) SeekPosition() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seek
}

func (f *FakeEngine) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

// MemoryCatalog is an in-memory track index
type MemoryCatalog struct {
	mu     sync.Mutex
	tracks map[string]music.Track
}

func NewMemoryCatalog(tracks ...music.Track) *MemoryCatalog {
	c := &MemoryCatalog{tracks: make(map[string]music.Track)}
	for _, t := range tracks {
		c.tracks[t.ID] = t
	}
	return c
}

func (c *MemoryCatalog) Lookup(ctx context.Context, id string) (*music.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (c *MemoryCatalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, id)
}

// Track builds a track whose path is derived from id
func Track(id string, d time.Duration) music.Track {
	return music.Track{
		ID:       id,
		Path:     "/music/" + id + ".mp3",
		Title:    strings.ToUpper(id),
		Artist:   "Artist " + id,
		Album:    "Album",
		Duration: d,
	}
}
