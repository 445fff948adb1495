package daemon

import (
	"context"
	"slices"
	"time"

	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/rs/zerolog"
)

// stateSource is the part of the session the autosaver observes
type stateSource interface {
	Subscribe() (<-chan session.State, func())
}

// snapshotStore persists snapshots, throttling Save and forcing out pending
// writes on Flush
type snapshotStore interface {
	Save(ctx context.Context, snap session.Snapshot) error
	Flush() error
}

// Autosaver writes the session to the store whenever it changes, flushes on
// a fixed interval and saves a final time on shutdown
type Autosaver struct {
	source   stateSource
	store    snapshotStore
	interval time.Duration
	logger   zerolog.Logger
}

// NewAutosaver creates an Autosaver flushing every interval
func NewAutosaver(source stateSource, store snapshotStore, interval time.Duration, logger zerolog.Logger) *Autosaver {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Autosaver{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger.With().Str("component", "autosave").Logger(),
	}
}

// Run saves until ctx is cancelled, then writes the last observed state
func (a *Autosaver) Run(ctx context.Context) {
	a.logger.Info().Dur("interval", a.interval).Msg("Starting autosave")

	updates, cancel := a.source.Subscribe()
	defer cancel()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var last session.Snapshot
	seen := false

	observe := func(st session.State) {
		snap := session.SnapshotOf(st)
		if seen && snapshotsEqual(snap, last) {
			return
		}
		last, seen = snap, true
		if err := a.store.Save(ctx, snap); err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Msg("Failed to save session")
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Pick up a state published right before shutdown
			select {
			case st := <-updates:
				observe(st)
			default:
			}
			if seen {
				a.final(last)
			}
			return
		case st := <-updates:
			observe(st)
		case <-ticker.C:
			if err := a.store.Flush(); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to flush session")
			}
		}
	}
}

// final saves snap regardless of throttling
func (a *Autosaver) final(snap session.Snapshot) {
	a.logger.Info().Msg("Saving session before shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.store.Save(ctx, snap); err != nil {
		a.logger.Error().Err(err).Msg("Failed to save session on shutdown")
		return
	}
	if err := a.store.Flush(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to flush session on shutdown")
	}
}

func snapshotsEqual(a, b session.Snapshot) bool {
	return a.CurrentTrackID == b.CurrentTrackID &&
		a.Position == b.Position &&
		a.IsPlaying == b.IsPlaying &&
		a.Volume == b.Volume &&
		a.Mode == b.Mode &&
		a.QueueIndex == b.QueueIndex &&
		slices.Equal(a.QueueTrackIDs, b.QueueTrackIDs)
}
