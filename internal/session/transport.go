package session

import (
	"context"
	"errors"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
)

// Play starts or resumes the current track
func (s *Session) Play(ctx context.Context) error {
	return s.do(ctx, s.play)
}

// PlayTrack jumps to track if it is queued, otherwise replaces the queue with it
func (s *Session) PlayTrack(ctx context.Context, track music.Track) error {
	return s.do(ctx, func() error {
		if idx := s.queue.indexOf(track.ID); idx >= 0 {
			s.queue.current = idx
		} else {
			s.queue.set([]music.Track{track}, 0)
		}
		s.load(true, false)
		return nil
	})
}

// PlayAt jumps to the queue entry at index and plays it
func (s *Session) PlayAt(ctx context.Context, index int) error {
	return s.do(ctx, func() error {
		if index < 0 || index >= s.queue.len() {
			return &ValidationError{Op: "play", Err: ErrIndexOutOfRange}
		}
		s.queue.current = index
		s.load(true, false)
		return nil
	})
}

// Pause suspends playback
func (s *Session) Pause(ctx context.Context) error {
	return s.do(ctx, s.pause)
}

// TogglePlay pauses when playing and plays otherwise
func (s *Session) TogglePlay(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.status == StatusPlaying || (s.status == StatusLoading && s.pending.autoplay) {
			return s.pause()
		}
		return s.play()
	})
}

// Stop halts playback and rewinds to the start
func (s *Session) Stop(ctx context.Context) error {
	return s.do(ctx, func() error {
		switch s.status {
		case StatusStopped, StatusPlaying, StatusPaused:
			if err := s.engine.Stop(); err != nil {
				s.playbackFailed(err)
				s.position = 0
				return nil
			}
			s.status = StatusStopped
		case StatusLoading:
			s.pending.autoplay = false
			s.pending.hasSeek = false
		}
		s.position = 0
		return nil
	})
}

// Next advances according to the playback mode
func (s *Session) Next(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.queue.len() == 0 {
			return &ValidationError{Op: "next", Err: ErrEmptyQueue}
		}
		s.skips = 0
		s.advance(true)
		return nil
	})
}

// Previous restarts the current track once past the restart threshold, or
// when there is nothing before it, and otherwise moves back one track
func (s *Session) Previous(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.queue.len() == 0 {
			return &ValidationError{Op: "previous", Err: ErrEmptyQueue}
		}

		if s.position > s.opts.RestartThreshold {
			s.restart()
			return nil
		}

		prev, ok := PreviousIndex(s.queue.current, s.queue.len(), s.mode, s.rng())
		if !ok {
			s.restart()
			return nil
		}

		s.queue.current = prev
		s.load(true, false)
		return nil
	})
}

// Seek moves to pos, clamped into [0, duration]
func (s *Session) Seek(ctx context.Context, pos time.Duration) error {
	return s.do(ctx, func() error {
		s.seek(pos)
		return nil
	})
}

// SetVolume sets the output level, clamped into [0,1]
func (s *Session) SetVolume(ctx context.Context, level float64) error {
	return s.do(ctx, func() error {
		s.applyVolume(level)
		return nil
	})
}

// SetMode changes the playback mode
func (s *Session) SetMode(ctx context.Context, mode Mode) error {
	return s.do(ctx, func() error {
		if !mode.Valid() {
			return &ValidationError{Op: "set mode", Err: ErrInvalidMode}
		}
		s.mode = mode
		return nil
	})
}

// SetQueue replaces the queue and plays the track at start
func (s *Session) SetQueue(ctx context.Context, tracks []music.Track, start int) error {
	return s.do(ctx, func() error {
		if len(tracks) == 0 {
			s.clearQueue()
			return nil
		}
		s.queue.set(tracks, start)
		s.load(true, false)
		return nil
	})
}

// AddToQueue appends track. A track added to an empty queue becomes current
// without starting playback.
func (s *Session) AddToQueue(ctx context.Context, track music.Track) error {
	return s.do(ctx, func() error {
		becameCurrent, err := s.queue.add(track)
		if err != nil {
			return err
		}
		if becameCurrent {
			s.cue()
		}
		return nil
	})
}

// InsertNext queues track right after the current one
func (s *Session) InsertNext(ctx context.Context, track music.Track) error {
	return s.do(ctx, func() error {
		if s.queue.insertNext(track) {
			s.cue()
		}
		return nil
	})
}

// RemoveAt drops the queue entry at index. Removing the playing track
// continues with the track that takes its place.
func (s *Session) RemoveAt(ctx context.Context, index int) error {
	return s.do(ctx, func() error {
		active := s.status == StatusPlaying || (s.status == StatusLoading && s.pending.autoplay)

		removedCurrent, err := s.queue.removeAt(index)
		if err != nil {
			return err
		}
		if !removedCurrent {
			return nil
		}

		if s.queue.len() == 0 {
			s.clearQueue()
			return nil
		}

		if active {
			s.load(true, false)
			return nil
		}
		s.cue()
		return nil
	})
}

// Reorder moves the queue entry at from to position to
func (s *Session) Reorder(ctx context.Context, from, to int) error {
	return s.do(ctx, func() error {
		return s.queue.reorder(from, to)
	})
}

// ClearQueue stops playback and empties the queue
func (s *Session) ClearQueue(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.clearQueue()
		return nil
	})
}

func (s *Session) play() error {
	if s.queue.currentTrack() == nil {
		return &ValidationError{Op: "play", Err: ErrEmptyQueue}
	}

	switch s.status {
	case StatusPlaying:
	case StatusLoading:
		s.pending.autoplay = true
	case StatusStopped, StatusPaused:
		s.startPlayback(false)
	default:
		s.load(true, false)
	}
	return nil
}

func (s *Session) pause() error {
	switch s.status {
	case StatusPlaying:
		if err := s.engine.Pause(); err != nil {
			s.playbackFailed(err)
			return nil
		}
		s.status = StatusPaused
	case StatusLoading:
		s.pending.autoplay = false
	}
	return nil
}

func (s *Session) seek(pos time.Duration) {
	pos = s.clampPosition(pos)

	switch {
	case s.isLoaded():
		s.position = pos
		if err := s.engine.Seek(pos); err != nil {
			s.logger.Warn().Err(err).Dur("position", pos).Msg("Seek failed")
			s.lastError = asPlaybackError(err, s.currentPath())
		}
	case s.status == StatusLoading:
		s.position = pos
		s.pending.seek = pos
		s.pending.hasSeek = true
	}
}

// restart rewinds the current track without changing the transport state
func (s *Session) restart() {
	s.seek(0)
	s.position = 0
}

func (s *Session) applyVolume(level float64) {
	level = max(0, min(1, level))
	if err := s.engine.SetVolume(level); err != nil {
		s.logger.Warn().Err(err).Float64("volume", level).Msg("Failed to set volume")
	}
	s.volume = level
}

// advance is shared by Next and the ended event. A failure of the track it
// lands on triggers another advance.
func (s *Session) advance(retry bool) {
	next, ok := NextIndex(s.queue.current, s.queue.len(), s.mode, s.rng())
	if !ok {
		s.stopAtEnd()
		return
	}
	s.queue.current = next
	s.load(true, retry)
}

func (s *Session) stopAtEnd() {
	switch s.status {
	case StatusPlaying, StatusPaused, StatusStopped:
		if err := s.engine.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop engine")
		}
		s.status = StatusStopped
	case StatusLoading:
		s.pending.autoplay = false
	}
	s.position = 0
	s.logger.Debug().Msg("Reached end of queue")
}

// load starts loading the current track under a new generation
func (s *Session) load(autoplay, retry bool) {
	t := s.queue.currentTrack()
	if t == nil {
		s.unload()
		return
	}

	if s.isLoaded() {
		if err := s.engine.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop engine before load")
		}
	}
	if !retry {
		s.skips = 0
	}

	s.gen++
	s.pending = &pendingLoad{gen: s.gen, autoplay: autoplay, retry: retry}
	s.status = StatusLoading
	s.position = 0
	s.duration = t.Duration
	s.lastError = nil

	s.logger.Debug().
		Uint64("gen", s.gen).
		Str("track", t.ID).
		Bool("autoplay", autoplay).
		Msg("Loading track")
	s.loader.submit(s.gen, t.Path)
}

// cue makes the current track the one to load on the next Play
func (s *Session) cue() {
	s.unload()
	if t := s.queue.currentTrack(); t != nil {
		s.duration = t.Duration
	}
}

// unload drops whatever the engine holds and returns to Idle
func (s *Session) unload() {
	if s.isLoaded() {
		if err := s.engine.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop engine")
		}
	}
	if s.pending != nil {
		s.pending = nil
		s.loader.abort()
	}
	// Anything still in flight from the engine is now stale
	s.gen++
	s.status = StatusIdle
	s.position = 0
	s.duration = 0
	s.lastError = nil
}

func (s *Session) clearQueue() {
	s.unload()
	s.queue.clear()
}

func (s *Session) handleResult(res loadResult) {
	if s.pending == nil || res.gen != s.pending.gen {
		s.logger.Debug().Uint64("gen", res.gen).Uint64("current", s.gen).Msg("Ignoring stale load result")
		return
	}
	p := s.pending
	s.pending = nil

	if res.err != nil {
		err := asLoadError(res.err, res.path)
		if p.quiet {
			s.logger.Warn().Err(err).Msg("Preload failed")
			s.status = StatusIdle
			s.position = 0
			return
		}
		s.fail(err, p.retry)
		return
	}

	if res.duration > 0 {
		s.duration = res.duration
	}
	s.status = StatusStopped

	if p.hasSeek {
		pos := s.clampPosition(p.seek)
		if err := s.engine.Seek(pos); err != nil {
			s.logger.Warn().Err(err).Dur("position", pos).Msg("Deferred seek failed")
			pos = 0
		}
		s.position = pos
	}

	if p.autoplay {
		s.startPlayback(p.retry)
	}
}

func (s *Session) startPlayback(retry bool) {
	if err := s.engine.Play(s.ctx); err != nil {
		s.fail(asPlaybackError(err, s.currentPath()), retry)
		return
	}
	s.status = StatusPlaying
	s.skips = 0
}

// fail records err and, for automatic advances, skips past the bad track
// until MaxAutoSkips consecutive failures
func (s *Session) fail(err error, retry bool) {
	s.lastError = err
	s.status = StatusError
	s.position = 0
	s.logger.Warn().Err(err).Msg("Track failed")

	if !retry || s.mode == ModeRepeatOne {
		return
	}

	s.skips++
	if s.skips >= s.maxAutoSkips() {
		s.logger.Warn().Int("skips", s.skips).Msg("Giving up after consecutive failures")
		s.skips = 0
		return
	}
	s.advance(true)
}

// playbackFailed handles an engine command error on the loaded track
func (s *Session) playbackFailed(err error) {
	s.lastError = asPlaybackError(err, s.currentPath())
	s.status = StatusError
	s.logger.Warn().Err(err).Msg("Engine command failed")
}

func (s *Session) handleEvent(ev music.Event) {
	if ev.Source != s.gen {
		return
	}

	switch ev.Kind {
	case music.EventLoaded:
		if ev.Duration > 0 {
			s.duration = ev.Duration
		}
	case music.EventProgress:
		// Observe only, never drives the engine
		if s.status == StatusPlaying || s.status == StatusPaused {
			s.position = s.clampPosition(ev.Position)
		}
	case music.EventEnded:
		if s.status != StatusPlaying {
			return
		}
		s.logger.Debug().Uint64("gen", ev.Source).Msg("Track ended")
		s.advance(true)
	case music.EventError:
		if !s.isLoaded() {
			return
		}
		s.playbackFailed(ev.Err)
	}
}

func (s *Session) isLoaded() bool {
	switch s.status {
	case StatusStopped, StatusPlaying, StatusPaused:
		return true
	default:
		return false
	}
}

func (s *Session) clampPosition(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if s.duration > 0 && pos > s.duration {
		return s.duration
	}
	return pos
}

func (s *Session) currentPath() string {
	if t := s.queue.currentTrack(); t != nil {
		return t.Path
	}
	return ""
}

func asLoadError(err error, path string) error {
	var le *music.LoadError
	if errors.As(err, &le) {
		return err
	}
	return &music.LoadError{Path: path, Err: err}
}

func asPlaybackError(err error, path string) error {
	var pe *music.PlaybackError
	if errors.As(err, &pe) {
		return err
	}
	return &music.PlaybackError{Path: path, Err: err}
}
