package session

import (
	"context"
	"slices"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/samber/lo"
)

// Snapshot is the persisted form of a session. Tracks are stored by id and
// resolved through the Catalog on restore.
type Snapshot struct {
	CurrentTrackID string        `json:"currentTrackId,omitempty"`
	Position       time.Duration `json:"position"`
	IsPlaying      bool          `json:"isPlaying"`
	Volume         float64       `json:"volume"`
	Mode           Mode          `json:"mode"`
	QueueTrackIDs  []string      `json:"queueTrackIds"`
	QueueIndex     int           `json:"queueIndex"`
}

// DefaultSnapshot is what an empty session looks like
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Volume:        1,
		Mode:          ModeSequential,
		QueueTrackIDs: []string{},
		QueueIndex:    -1,
	}
}

// SnapshotOf converts a State into its persisted form
func SnapshotOf(st State) Snapshot {
	snap := Snapshot{
		Position:  st.Position,
		IsPlaying: st.IsPlaying,
		Volume:    st.Volume,
		Mode:      st.Mode,
		QueueTrackIDs: lo.Map(st.Queue, func(t music.Track, _ int) string {
			return t.ID
		}),
		QueueIndex: st.CurrentIndex,
	}
	if t := st.CurrentTrack(); t != nil {
		snap.CurrentTrackID = t.ID
	}
	return snap
}

// Snapshot returns the persisted form of the current state
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	st, err := s.State(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotOf(st), nil
}

// Restore rehydrates the session from snap. Ids the catalog no longer knows
// are dropped. The session always comes back paused, with the current track
// preloaded at the saved position.
func (s *Session) Restore(ctx context.Context, snap Snapshot) error {
	tracks := s.resolve(ctx, snap.QueueTrackIDs)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info().
		Int("saved", len(snap.QueueTrackIDs)).
		Int("resolved", len(tracks)).
		Msg("Restoring session")

	return s.do(ctx, func() error {
		s.restore(snap, tracks)
		return nil
	})
}

func (s *Session) resolve(ctx context.Context, ids []string) []music.Track {
	if s.catalog == nil {
		return nil
	}
	return lo.FilterMap(ids, func(id string, _ int) (music.Track, bool) {
		t, err := s.catalog.Lookup(ctx, id)
		if err != nil || t == nil {
			s.logger.Debug().Str("track", id).Err(err).Msg("Dropping unresolvable track")
			return music.Track{}, false
		}
		return *t, true
	})
}

func (s *Session) restore(snap Snapshot, tracks []music.Track) {
	s.clearQueue()

	if snap.Mode.Valid() {
		s.mode = snap.Mode
	} else {
		s.mode = ModeSequential
	}
	s.applyVolume(snap.Volume)

	position := snap.Position
	current := slices.IndexFunc(tracks, func(t music.Track) bool {
		return snap.CurrentTrackID != "" && t.ID == snap.CurrentTrackID
	})
	if current < 0 {
		// The saved track is gone. Leaving no current track here would put a
		// non-empty queue at index -1, so fall back to the saved slot from the
		// start, the same as removing the current track does.
		current = snap.QueueIndex
		position = 0
	}
	s.queue.set(tracks, current)

	if s.queue.currentTrack() == nil {
		return
	}

	s.load(false, false)
	s.pending.quiet = true
	if position > 0 {
		s.pending.seek = position
		s.pending.hasSeek = true
		s.position = s.clampPosition(position)
	}
}
