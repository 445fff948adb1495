package session

import (
	"errors"
	"slices"
	"testing"

	"github.com/jfmyers9/tapedeck/internal/music"
)

func tracks(ids ...string) []music.Track {
	out := make([]music.Track, len(ids))
	for i, id := range ids {
		out[i] = music.Track{ID: id, Path: "/music/" + id + ".mp3"}
	}
	return out
}

func queueOf(current int, ids ...string) queue {
	q := newQueue()
	q.set(tracks(ids...), current)
	return q
}

func assertQueue(t *testing.T, q queue, wantCurrent int, wantIDs ...string) {
	t.Helper()
	if got := q.ids(); !slices.Equal(got, wantIDs) {
		t.Errorf("ids = %v, want %v", got, wantIDs)
	}
	if q.current != wantCurrent {
		t.Errorf("current = %d, want %d", q.current, wantCurrent)
	}
}

func TestQueue_Set(t *testing.T) {
	tests := []struct {
		name  string
		ids   []string
		start int
		want  int
	}{
		{"in range", []string{"a", "b", "c"}, 1, 1},
		{"clamped high", []string{"a", "b", "c"}, 9, 2},
		{"clamped low", []string{"a", "b"}, -4, 0},
		{"empty", nil, 3, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue()
			q.set(tracks(tt.ids...), tt.start)
			if q.current != tt.want {
				t.Errorf("current = %d, want %d", q.current, tt.want)
			}
		})
	}
}

func TestQueue_SetCopiesInput(t *testing.T) {
	in := tracks("a", "b")
	q := newQueue()
	q.set(in, 0)
	in[0].ID = "mutated"

	if q.tracks[0].ID != "a" {
		t.Error("queue shares its backing array with the caller")
	}
}

func TestQueue_Add(t *testing.T) {
	q := newQueue()

	became, err := q.add(tracks("a")[0])
	if err != nil || !became {
		t.Fatalf("add to empty = %v, %v, want true, nil", became, err)
	}
	assertQueue(t, q, 0, "a")

	became, err = q.add(tracks("b")[0])
	if err != nil || became {
		t.Fatalf("add = %v, %v, want false, nil", became, err)
	}
	assertQueue(t, q, 0, "a", "b")
}

func TestQueue_AddDuplicate(t *testing.T) {
	q := queueOf(0, "a", "b")

	_, err := q.add(tracks("b")[0])
	if !errors.Is(err, ErrDuplicateTrack) {
		t.Fatalf("err = %v, want ErrDuplicateTrack", err)
	}
	assertQueue(t, q, 0, "a", "b")
}

func TestQueue_InsertNext(t *testing.T) {
	tests := []struct {
		name        string
		ids         []string
		current     int
		insert      string
		wantIDs     []string
		wantCurrent int
	}{
		{"new after current", []string{"a", "b", "c"}, 0, "x", []string{"a", "x", "b", "c"}, 0},
		{"new at end", []string{"a", "b"}, 1, "x", []string{"a", "b", "x"}, 1},
		{"existing after current", []string{"a", "b", "c", "d"}, 0, "d", []string{"a", "d", "b", "c"}, 0},
		{"existing before current", []string{"a", "b", "c", "d"}, 2, "a", []string{"b", "c", "a", "d"}, 1},
		{"already next", []string{"a", "b", "c"}, 0, "b", []string{"a", "b", "c"}, 0},
		{"already current", []string{"a", "b", "c"}, 1, "b", []string{"a", "b", "c"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queueOf(tt.current, tt.ids...)
			if became := q.insertNext(tracks(tt.insert)[0]); became {
				t.Error("insertNext into non-empty queue reported becameCurrent")
			}
			assertQueue(t, q, tt.wantCurrent, tt.wantIDs...)
		})
	}
}

func TestQueue_InsertNextEmpty(t *testing.T) {
	q := newQueue()
	if !q.insertNext(tracks("a")[0]) {
		t.Error("insertNext into empty queue did not report becameCurrent")
	}
	assertQueue(t, q, 0, "a")
}

func TestQueue_RemoveAt(t *testing.T) {
	tests := []struct {
		name        string
		ids         []string
		current     int
		remove      int
		wantIDs     []string
		wantCurrent int
		wantMoved   bool
	}{
		{"before current", []string{"a", "b", "c"}, 2, 0, []string{"b", "c"}, 1, false},
		{"after current", []string{"a", "b", "c"}, 0, 2, []string{"a", "b"}, 0, false},
		{"current with follower", []string{"a", "b", "c"}, 1, 1, []string{"a", "c"}, 1, true},
		{"current is last", []string{"a", "b", "c"}, 2, 2, []string{"a", "b"}, 1, true},
		{"only element", []string{"a"}, 0, 0, []string{}, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queueOf(tt.current, tt.ids...)
			moved, err := q.removeAt(tt.remove)
			if err != nil {
				t.Fatalf("removeAt: %v", err)
			}
			if moved != tt.wantMoved {
				t.Errorf("removedCurrent = %v, want %v", moved, tt.wantMoved)
			}
			assertQueue(t, q, tt.wantCurrent, tt.wantIDs...)
			if tt.wantCurrent >= 0 && q.currentTrack() == nil {
				t.Error("currentTrack() = nil for non-empty queue")
			}
		})
	}
}

func TestQueue_RemoveAtOutOfRange(t *testing.T) {
	q := queueOf(1, "a", "b")

	for _, i := range []int{-1, 2, 10} {
		_, err := q.removeAt(i)
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("removeAt(%d) err = %v, want ErrIndexOutOfRange", i, err)
		}
	}
	assertQueue(t, q, 1, "a", "b")
}

func TestQueue_Reorder(t *testing.T) {
	tests := []struct {
		name        string
		current     int
		from, to    int
		wantIDs     []string
		wantCurrent int
	}{
		{"move current forward", 1, 1, 3, []string{"a", "c", "d", "b", "e"}, 3},
		{"move current backward", 3, 3, 0, []string{"d", "a", "b", "c", "e"}, 0},
		{"cross forward", 2, 0, 4, []string{"b", "c", "d", "e", "a"}, 1},
		{"cross backward", 2, 4, 1, []string{"a", "e", "b", "c", "d"}, 3},
		{"land on current forward", 2, 0, 2, []string{"b", "c", "a", "d", "e"}, 1},
		{"land on current backward", 2, 4, 2, []string{"a", "b", "e", "c", "d"}, 3},
		{"behind current", 4, 0, 2, []string{"b", "c", "a", "d", "e"}, 4},
		{"ahead of current", 0, 2, 4, []string{"a", "b", "d", "e", "c"}, 0},
		{"same position", 1, 2, 2, []string{"a", "b", "c", "d", "e"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queueOf(tt.current, "a", "b", "c", "d", "e")
			currentID := q.currentTrack().ID

			if err := q.reorder(tt.from, tt.to); err != nil {
				t.Fatalf("reorder: %v", err)
			}
			assertQueue(t, q, tt.wantCurrent, tt.wantIDs...)

			if q.currentTrack().ID != currentID {
				t.Errorf("current track = %s, want %s", q.currentTrack().ID, currentID)
			}
		})
	}
}

func TestQueue_ReorderPreservesMultiset(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for from := range ids {
		for to := range ids {
			q := queueOf(3, ids...)
			if err := q.reorder(from, to); err != nil {
				t.Fatalf("reorder(%d, %d): %v", from, to, err)
			}

			got := q.ids()
			if len(got) != len(ids) {
				t.Fatalf("reorder(%d, %d) length = %d", from, to, len(got))
			}
			sorted := slices.Clone(got)
			slices.Sort(sorted)
			if !slices.Equal(sorted, ids) {
				t.Fatalf("reorder(%d, %d) changed ids: %v", from, to, got)
			}
			if got[q.current] != "d" {
				t.Errorf("reorder(%d, %d) current = %s, want d", from, to, got[q.current])
			}
		}
	}
}

func TestQueue_ReorderOutOfRange(t *testing.T) {
	q := queueOf(0, "a", "b")
	if err := q.reorder(0, 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("err = %v, want ErrIndexOutOfRange", err)
	}
	assertQueue(t, q, 0, "a", "b")
}
