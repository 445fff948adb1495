package music

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// progressPoller samples the playback position at a fixed interval and
// publishes it as EventProgress
type progressPoller struct {
	source   uint64
	interval time.Duration
	position func() (time.Duration, bool) // ok=false once the source is gone
	emit     func(Event)
	logger   zerolog.Logger
}

func newProgressPoller(source uint64, interval time.Duration, position func() (time.Duration, bool), emit func(Event), logger zerolog.Logger) *progressPoller {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &progressPoller{
		source:   source,
		interval: interval,
		position: position,
		emit:     emit,
		logger:   logger,
	}
}

// Run emits progress until the context is cancelled or the source disappears
func (p *progressPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.poll() {
				p.logger.Debug().Uint64("source", p.source).Msg("Progress poller stopped, source gone")
				return
			}
		}
	}
}

// poll publishes a single position sample
func (p *progressPoller) poll() bool {
	pos, ok := p.position()
	if !ok {
		return false
	}
	p.emit(Event{Kind: EventProgress, Source: p.source, Position: pos})
	return true
}
