package music

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAudioUnavailable is returned when the binary was built without audio output support
var ErrAudioUnavailable = errors.New("audio output not available in this build")

// ErrUnsupportedFormat is returned when a file extension has no decoder
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// EventKind identifies an asynchronous engine notification
type EventKind int

const (
	EventLoaded   EventKind = iota // Source finished loading, Duration is set
	EventProgress                  // Periodic position update while playing
	EventEnded                     // Source played to the end
	EventError                     // Source failed mid-playback, Err is set
)

// String returns a human-readable representation of the EventKind
func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by an Engine.
// Source is the id passed to the Load call that produced the audio, so
// consumers can drop events that belong to a superseded load.
type Event struct {
	Kind     EventKind
	Source   uint64
	Duration time.Duration
	Position time.Duration
	Err      error
}

// Engine is the audio playback primitive driven by the playback session
type Engine interface {
	// Load opens path and prepares it for playback without starting it.
	// The returned duration is zero when it cannot be determined.
	Load(ctx context.Context, source uint64, path string) (time.Duration, error)

	// Play starts or resumes the loaded source
	Play(ctx context.Context) error

	// Pause suspends playback, keeping the position
	Pause() error

	// Stop halts playback and rewinds to the start
	Stop() error

	// Seek moves the playback position of the loaded source
	Seek(pos time.Duration) error

	// SetVolume sets the output level in [0,1]
	SetVolume(level float64) error

	// Events returns the notification channel
	Events() <-chan Event

	// Close releases the output device
	Close() error
}

// LoadError reports that the engine could not open or decode a resource
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PlaybackError reports that the engine failed while playing a loaded resource
type PlaybackError struct {
	Path string
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback error for %s: %v", e.Path, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
