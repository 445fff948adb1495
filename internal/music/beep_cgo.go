//go:build (linux && cgo) || windows || darwin

package music

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"
)

// AudioAvailable reports whether this build can drive a real output device
const AudioAvailable = true

// BeepConfig holds the output settings of the beep engine
type BeepConfig struct {
	SampleRate       int           // Output sample rate of the speaker
	ProgressInterval time.Duration // How often EventProgress is emitted while playing
}

// Output device hooks, swapped for a beep.Mixer in tests
var (
	speakerPlay   = speaker.Play
	speakerClear  = speaker.Clear
	speakerClose  = speaker.Close
	speakerLock   = speaker.Lock
	speakerUnlock = speaker.Unlock
)

// beepEngine plays local files through the system speaker using gopxl/beep
type beepEngine struct {
	mu sync.Mutex

	sampleRate beep.SampleRate
	interval   time.Duration

	path     string
	source   uint64
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64

	// attached is true while the source's sequence is queued on the speaker.
	// The speaker drops a sequence once it drains, so Play re-attaches it.
	attached   bool
	attachment uint64

	stopProgress context.CancelFunc

	events chan Event
	closed chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewBeepEngine initializes the speaker and returns an Engine backed by it
func NewBeepEngine(cfg BeepConfig, logger zerolog.Logger) (Engine, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	sr := beep.SampleRate(cfg.SampleRate)

	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	return newBeepEngine(sr, cfg.ProgressInterval, logger), nil
}

func newBeepEngine(sr beep.SampleRate, interval time.Duration, logger zerolog.Logger) *beepEngine {
	return &beepEngine{
		sampleRate: sr,
		interval:   interval,
		level:      1,
		events:     make(chan Event, 64),
		closed:     make(chan struct{}),
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

// decode opens path with the decoder matching its extension
func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	switch (Track{Path: path}).Format() {
	case "mp3":
		return mp3.Decode(f)
	case "wav":
		return wav.Decode(f)
	case "flac":
		return flac.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, ErrUnsupportedFormat
	}
}

func (e *beepEngine) Load(ctx context.Context, source uint64, path string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, &LoadError{Path: path, Err: err}
	}

	streamer, format, err := decode(path)
	if err != nil {
		return 0, &LoadError{Path: path, Err: err}
	}

	// A newer request may have cancelled us while decoding
	if err := ctx.Err(); err != nil {
		streamer.Close()
		return 0, &LoadError{Path: path, Err: err}
	}

	e.mu.Lock()
	e.unloadLocked()

	e.path = path
	e.source = source
	e.streamer = streamer
	e.format = format

	e.ctrl = &beep.Ctrl{Streamer: e.sourceLocked(), Paused: true}
	e.volume = &effects.Volume{Streamer: e.ctrl, Base: 2}
	e.applyVolumeLocked()
	e.attachLocked()

	duration := format.SampleRate.D(streamer.Len())
	e.mu.Unlock()

	e.logger.Debug().Str("path", path).Dur("duration", duration).Msg("Loaded")
	e.emit(Event{Kind: EventLoaded, Source: source, Duration: duration})
	return duration, nil
}

func (e *beepEngine) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl == nil {
		return &PlaybackError{Path: e.path, Err: fmt.Errorf("nothing loaded")}
	}
	if err := ctx.Err(); err != nil {
		return &PlaybackError{Path: e.path, Err: err}
	}

	speakerLock()
	if !e.attached {
		if e.streamer.Position() >= e.streamer.Len() {
			if err := e.streamer.Seek(0); err != nil {
				speakerUnlock()
				return &PlaybackError{Path: e.path, Err: err}
			}
		}
		e.ctrl.Streamer = e.sourceLocked()
	}
	e.ctrl.Paused = false
	speakerUnlock()

	e.attachLocked()
	e.startProgressLocked()
	return nil
}

func (e *beepEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl == nil {
		return nil
	}
	speakerLock()
	e.ctrl.Paused = true
	speakerUnlock()

	e.stopProgressLocked()
	return nil
}

func (e *beepEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl == nil {
		return nil
	}
	speakerLock()
	e.ctrl.Paused = true
	err := e.streamer.Seek(0)
	e.ctrl.Streamer = e.sourceLocked()
	speakerUnlock()

	e.stopProgressLocked()
	if err != nil {
		return &PlaybackError{Path: e.path, Err: err}
	}
	return nil
}

func (e *beepEngine) Seek(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return nil
	}

	speakerLock()
	defer speakerUnlock()

	n := e.format.SampleRate.N(pos)
	if last := e.streamer.Len() - 1; n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}
	if err := e.streamer.Seek(n); err != nil {
		return &PlaybackError{Path: e.path, Err: err}
	}
	e.ctrl.Streamer = e.sourceLocked()
	return nil
}

func (e *beepEngine) SetVolume(level float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = math.Max(0, math.Min(1, level))
	e.applyVolumeLocked()
	return nil
}

func (e *beepEngine) Events() <-chan Event {
	return e.events
}

func (e *beepEngine) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.unloadLocked()
		e.mu.Unlock()

		close(e.closed)
		speakerClear()
		speakerClose()
	})
	return nil
}

// applyVolumeLocked maps the linear level onto beep's exponential volume.
// Must be called with e.mu held.
func (e *beepEngine) applyVolumeLocked() {
	if e.volume == nil {
		return
	}
	speakerLock()
	defer speakerUnlock()

	if e.level <= 0 {
		e.volume.Silent = true
		return
	}
	e.volume.Silent = false
	e.volume.Volume = math.Log2(e.level)
}

// sourceLocked wraps the decoder in a resampler when its rate differs from
// the speaker's. A resampler buffers ahead and stays drained once it hits
// the end, so a new one is built whenever the decoder is repositioned.
// Must be called with e.mu held.
func (e *beepEngine) sourceLocked() beep.Streamer {
	if e.format.SampleRate == e.sampleRate {
		return e.streamer
	}
	return beep.Resample(4, e.format.SampleRate, e.sampleRate, e.streamer)
}

// attachLocked queues the current source on the speaker unless it is
// already queued. Must be called with e.mu held.
func (e *beepEngine) attachLocked() {
	if e.attached {
		return
	}
	e.attached = true
	e.attachment++

	source, attachment := e.source, e.attachment
	speakerPlay(beep.Seq(e.volume, beep.Callback(func() {
		// Run outside the speaker lock held by the callback
		go e.finished(source, attachment)
	})))
}

// unloadLocked drops the current source. Must be called with e.mu held.
func (e *beepEngine) unloadLocked() {
	e.stopProgressLocked()
	speakerClear()
	e.attached = false
	if e.streamer != nil {
		e.streamer.Close()
	}
	e.streamer = nil
	e.ctrl = nil
	e.volume = nil
	e.source = 0
}

func (e *beepEngine) startProgressLocked() {
	e.stopProgressLocked()

	ctx, cancel := context.WithCancel(context.Background())
	e.stopProgress = cancel

	source := e.source
	poller := newProgressPoller(source, e.interval, func() (time.Duration, bool) {
		return e.position(source)
	}, e.emit, e.logger)
	go poller.Run(ctx)
}

func (e *beepEngine) stopProgressLocked() {
	if e.stopProgress != nil {
		e.stopProgress()
		e.stopProgress = nil
	}
}

// position returns the playback position of source, or ok=false if it was replaced
func (e *beepEngine) position(source uint64) (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil || e.source != source {
		return 0, false
	}
	speakerLock()
	pos := e.streamer.Position()
	speakerUnlock()
	return e.format.SampleRate.D(pos), true
}

// finished is called once the sequence for source has drained. The source
// stays loaded, paused at its end, so a later Play re-attaches it.
func (e *beepEngine) finished(source, attachment uint64) {
	e.mu.Lock()
	if e.source != source || e.attachment != attachment || e.streamer == nil {
		e.mu.Unlock()
		return
	}
	e.attached = false
	speakerLock()
	e.ctrl.Paused = true
	speakerUnlock()
	e.stopProgressLocked()
	err := e.streamer.Err()
	path := e.path
	e.mu.Unlock()

	if err != nil {
		e.emit(Event{Kind: EventError, Source: source, Err: &PlaybackError{Path: path, Err: err}})
		return
	}
	e.emit(Event{Kind: EventEnded, Source: source})
}

// emit delivers an event. Progress samples are dropped when the consumer is
// behind; everything else waits until delivered or the engine is closed.
func (e *beepEngine) emit(ev Event) {
	if ev.Kind == EventProgress {
		select {
		case e.events <- ev:
		default:
		}
		return
	}
	select {
	case e.events <- ev:
	case <-e.closed:
	}
}
