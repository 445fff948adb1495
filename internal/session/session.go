// Package session implements the playback session: the track queue, the
// playback mode and the transport state machine driving a music.Engine.
//
// All model state is owned by the goroutine running Session.Run. Commands,
// load results and engine events are processed one at a time on that
// goroutine, and readers only ever see State value copies.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/rs/zerolog"
)

// Status is the transport state of the session
type Status int

const (
	StatusIdle    Status = iota // Nothing loaded
	StatusLoading               // A load is in flight
	StatusStopped               // Loaded, not playing
	StatusPlaying
	StatusPaused
	StatusError // Last load or playback failed, cleared by the next load
)

// String returns a human-readable representation of the Status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusStopped:
		return "stopped"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a point-in-time copy of the session
type State struct {
	Queue        []music.Track
	CurrentIndex int
	Mode         Mode
	Position     time.Duration
	Duration     time.Duration
	Volume       float64
	Status       Status
	IsPlaying    bool
	IsLoading    bool
	LastError    error
}

// CurrentTrack returns the track at CurrentIndex or nil when the queue is empty
func (s State) CurrentTrack() *music.Track {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return nil
	}
	return &s.Queue[s.CurrentIndex]
}

// Catalog resolves track ids to tracks
type Catalog interface {
	// Lookup returns the track for id, or an error when it is unknown
	Lookup(ctx context.Context, id string) (*music.Track, error)
}

// Gateway persists session snapshots
type Gateway interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load never fails; absent or corrupt data yields DefaultSnapshot
	Load(ctx context.Context) Snapshot
}

// Options tunes a Session
type Options struct {
	Rand             *rand.Rand    // Source for shuffle, nil uses the global generator
	LoadTimeout      time.Duration // Deadline for a single engine load (default 10s)
	RestartThreshold time.Duration // Previous restarts the track past this position (default 3s)
	MaxAutoSkips     int           // Consecutive failed advances before giving up (0 = queue length)
}

const (
	defaultLoadTimeout      = 10 * time.Second
	defaultRestartThreshold = 3 * time.Second
)

type command struct {
	fn   func() error
	done chan error
}

// pendingLoad tracks the in-flight load for the current generation
type pendingLoad struct {
	gen      uint64
	autoplay bool
	retry    bool // failure triggers an automatic advance
	quiet    bool // failure is logged, not surfaced in LastError
	seek     time.Duration
	hasSeek  bool
}

// Session owns the queue and transport state
type Session struct {
	engine  music.Engine
	catalog Catalog
	opts    Options
	logger  zerolog.Logger

	inbox   chan command
	results chan loadResult
	loader  *loader
	done    chan struct{}
	started atomic.Bool

	// Owned by the Run goroutine
	ctx       context.Context
	queue     queue
	mode      Mode
	position  time.Duration
	duration  time.Duration
	volume    float64
	status    Status
	lastError error
	gen       uint64
	pending   *pendingLoad
	skips     int

	subsMu  sync.Mutex
	subs    map[int]chan State
	nextSub int
	last    State
}

// New creates a Session over engine. Call Run to start processing commands.
func New(engine music.Engine, catalog Catalog, opts Options, logger zerolog.Logger) *Session {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	if opts.RestartThreshold <= 0 {
		opts.RestartThreshold = defaultRestartThreshold
	}

	s := &Session{
		engine:  engine,
		catalog: catalog,
		opts:    opts,
		logger:  logger.With().Str("component", "session").Logger(),
		inbox:   make(chan command),
		results: make(chan loadResult, 1),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		queue:   newQueue(),
		mode:    ModeSequential,
		volume:  1,
		status:  StatusIdle,
		subs:    make(map[int]chan State),
	}
	s.loader = newLoader(engine, opts.LoadTimeout, s.results, s.logger)
	s.last = s.state()
	return s
}

// Run processes commands and engine events until ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer close(s.done)

	s.ctx = ctx
	loaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.loader.run(loaderCtx)

	s.logger.Info().Msg("Session started")
	defer s.logger.Info().Msg("Session stopped")

	events := s.engine.Events()
	for {
		select {
		case <-ctx.Done():
			s.loader.abort()
			return nil
		case cmd := <-s.inbox:
			cmd.done <- cmd.fn()
		case res := <-s.results:
			s.handleResult(res)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		}
		s.publish()
	}
}

// Done is closed once Run has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// do runs fn on the session goroutine and waits for its result
func (s *Session) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}

	select {
	case s.inbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// State returns a copy of the current session state
func (s *Session) State(ctx context.Context) (State, error) {
	var st State
	err := s.do(ctx, func() error {
		st = s.state()
		return nil
	})
	return st, err
}

// Last returns the most recently published state without a round trip
// through the session goroutine
func (s *Session) Last() State {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return s.last
}

// Subscribe returns a channel receiving the latest state after every change.
// Slow readers only miss intermediate states. cancel releases the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	ch <- s.last
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Session) publish() {
	st := s.state()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.last = st
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (s *Session) state() State {
	return State{
		Queue:        slices.Clone(s.queue.tracks),
		CurrentIndex: s.queue.current,
		Mode:         s.mode,
		Position:     s.position,
		Duration:     s.duration,
		Volume:       s.volume,
		Status:       s.status,
		IsPlaying:    s.status == StatusPlaying,
		IsLoading:    s.status == StatusLoading,
		LastError:    s.lastError,
	}
}

func (s *Session) rng() *rand.Rand {
	return s.opts.Rand
}

func (s *Session) maxAutoSkips() int {
	if s.opts.MaxAutoSkips > 0 {
		return s.opts.MaxAutoSkips
	}
	return s.queue.len()
}
