//go:build !((linux && cgo) || windows || darwin)

package music

import (
	"time"

	"github.com/rs/zerolog"
)

// AudioAvailable reports whether this build can drive a real output device.
// Linux output needs cgo for the ALSA bindings.
const AudioAvailable = false

// BeepConfig holds the output settings of the beep engine
type BeepConfig struct {
	SampleRate       int
	ProgressInterval time.Duration
}

// NewBeepEngine always fails when audio output is compiled out
func NewBeepEngine(cfg BeepConfig, logger zerolog.Logger) (Engine, error) {
	return nil, ErrAudioUnavailable
}
