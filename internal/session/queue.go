package session

import (
	"slices"

	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/samber/lo"
)

// queue is the ordered track list plus the current pointer.
// current is -1 iff tracks is empty.
type queue struct {
	tracks  []music.Track
	current int
}

func newQueue() queue {
	return queue{current: -1}
}

func (q *queue) len() int {
	return len(q.tracks)
}

func (q *queue) currentTrack() *music.Track {
	if q.current < 0 || q.current >= len(q.tracks) {
		return nil
	}
	return &q.tracks[q.current]
}

func (q *queue) indexOf(id string) int {
	_, idx, ok := lo.FindIndexOf(q.tracks, func(t music.Track) bool {
		return t.ID == id
	})
	if !ok {
		return -1
	}
	return idx
}

func (q *queue) ids() []string {
	return lo.Map(q.tracks, func(t music.Track, _ int) string {
		return t.ID
	})
}

// set replaces the queue wholesale, clamping start into range
func (q *queue) set(tracks []music.Track, start int) {
	q.tracks = slices.Clone(tracks)
	if len(q.tracks) == 0 {
		q.current = -1
		return
	}
	q.current = lo.Clamp(start, 0, len(q.tracks)-1)
}

// add appends t unless its id is already queued. becameCurrent is true when
// the queue was empty before.
func (q *queue) add(t music.Track) (becameCurrent bool, err error) {
	if q.indexOf(t.ID) >= 0 {
		return false, &ValidationError{Op: "add to queue", Err: ErrDuplicateTrack}
	}

	q.tracks = append(q.tracks, t)
	if q.current < 0 {
		q.current = 0
		return true, nil
	}
	return false, nil
}

// insertNext places t right after the current track, moving it there if it
// is already queued elsewhere
func (q *queue) insertNext(t music.Track) (becameCurrent bool) {
	if q.current < 0 {
		q.tracks = []music.Track{t}
		q.current = 0
		return true
	}

	if existing := q.indexOf(t.ID); existing >= 0 {
		if existing == q.current {
			return false
		}
		q.tracks = slices.Delete(q.tracks, existing, existing+1)
		if existing < q.current {
			q.current--
		}
	}

	q.tracks = slices.Insert(q.tracks, q.current+1, t)
	return false
}

// removeAt drops the track at i. removedCurrent is true when the current
// pointer moved to a different track (or the queue emptied).
func (q *queue) removeAt(i int) (removedCurrent bool, err error) {
	if i < 0 || i >= len(q.tracks) {
		return false, &ValidationError{Op: "remove from queue", Err: ErrIndexOutOfRange}
	}

	q.tracks = slices.Delete(q.tracks, i, i+1)

	switch {
	case len(q.tracks) == 0:
		q.current = -1
		return true, nil
	case i == q.current:
		// The following element slid into i; past the end the new last
		// element takes over
		if q.current >= len(q.tracks) {
			q.current = len(q.tracks) - 1
		}
		return true, nil
	case i < q.current:
		q.current--
	}
	return false, nil
}

// reorder moves the track at from to position to, keeping current on the
// same logical track
func (q *queue) reorder(from, to int) error {
	n := len(q.tracks)
	if from < 0 || from >= n || to < 0 || to >= n {
		return &ValidationError{Op: "reorder queue", Err: ErrIndexOutOfRange}
	}
	if from == to {
		return nil
	}

	t := q.tracks[from]
	q.tracks = slices.Delete(q.tracks, from, from+1)
	q.tracks = slices.Insert(q.tracks, to, t)

	switch {
	case from == q.current:
		q.current = to
	case from < q.current && to >= q.current:
		q.current--
	case from > q.current && to <= q.current:
		q.current++
	}
	return nil
}

func (q *queue) clear() {
	q.tracks = nil
	q.current = -1
}
