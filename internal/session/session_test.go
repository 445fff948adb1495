package session_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/jfmyers9/tapedeck/internal/testutil"
	"github.com/rs/zerolog"
)

const trackLen = 3 * time.Minute

var (
	trackA = testutil.Track("a", trackLen)
	trackB = testutil.Track("b", trackLen)
	trackC = testutil.Track("c", trackLen)
)

type harness struct {
	s       *session.Session
	engine  *testutil.FakeEngine
	catalog *testutil.MemoryCatalog
	ctx     context.Context
}

func newHarness(t *testing.T, opts session.Options) *harness {
	t.Helper()

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(7, 11))
	}
	h := &harness{
		engine:  testutil.NewFakeEngine(),
		catalog: testutil.NewMemoryCatalog(trackA, trackB, trackC),
	}
	h.s = session.New(h.engine, h.catalog, opts, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	go h.s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.s.Done()
	})
	return h
}

func (h *harness) state(t *testing.T) session.State {
	t.Helper()
	st, err := h.s.State(h.ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return st
}

// waitFor polls the session until cond holds
func (h *harness) waitFor(t *testing.T, desc string, cond func(session.State) bool) session.State {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := h.state(t)
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last state: status=%s index=%d position=%s err=%v",
				desc, st.Status, st.CurrentIndex, st.Position, st.LastError)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitStatus(t *testing.T, want session.Status) session.State {
	t.Helper()
	return h.waitFor(t, "status "+want.String(), func(st session.State) bool {
		return st.Status == want
	})
}

func (h *harness) must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// playing starts tracks at start and waits for playback
func (h *harness) playing(t *testing.T, start int, tracks ...music.Track) session.State {
	t.Helper()
	h.must(t, h.s.SetQueue(h.ctx, tracks, start))
	return h.waitStatus(t, session.StatusPlaying)
}

func currentID(st session.State) string {
	if t := st.CurrentTrack(); t != nil {
		return t.ID
	}
	return ""
}

func TestNew_StartsEmpty(t *testing.T) {
	h := newHarness(t, session.Options{})
	st := h.state(t)

	if st.CurrentIndex != -1 || st.CurrentTrack() != nil {
		t.Errorf("CurrentIndex = %d, want -1 with no current track", st.CurrentIndex)
	}
	if st.Status != session.StatusIdle {
		t.Errorf("Status = %s, want idle", st.Status)
	}
	if st.Volume != 1 || st.Mode != session.ModeSequential {
		t.Errorf("Volume = %v Mode = %s, want 1 sequential", st.Volume, st.Mode)
	}
}

func TestAddToQueue_EmptyBecomesCurrentWithoutPlaying(t *testing.T) {
	h := newHarness(t, session.Options{})

	h.must(t, h.s.AddToQueue(h.ctx, trackA))
	h.must(t, h.s.AddToQueue(h.ctx, trackB))

	st := h.state(t)
	if st.CurrentIndex != 0 || currentID(st) != "a" {
		t.Errorf("current = %d/%s, want 0/a", st.CurrentIndex, currentID(st))
	}
	if st.IsPlaying || st.Status != session.StatusIdle {
		t.Errorf("Status = %s, want idle and not playing", st.Status)
	}
	if n := h.engine.CountCalls("load"); n != 0 {
		t.Errorf("engine loads = %d, want 0", n)
	}
}

func TestAddToQueue_DuplicateIgnored(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.must(t, h.s.AddToQueue(h.ctx, trackA))
	h.must(t, h.s.AddToQueue(h.ctx, trackB))

	err := h.s.AddToQueue(h.ctx, trackA)
	if !errors.Is(err, session.ErrDuplicateTrack) || !session.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError(ErrDuplicateTrack)", err)
	}
	if st := h.state(t); len(st.Queue) != 2 {
		t.Errorf("queue length = %d, want 2", len(st.Queue))
	}
}

func TestPlay_EmptyQueue(t *testing.T) {
	h := newHarness(t, session.Options{})

	err := h.s.Play(h.ctx)
	if !errors.Is(err, session.ErrEmptyQueue) {
		t.Errorf("err = %v, want ErrEmptyQueue", err)
	}
	if st := h.state(t); st.IsPlaying {
		t.Error("IsPlaying = true with an empty queue")
	}
}

func TestPlay_LoadsCuedTrack(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.must(t, h.s.AddToQueue(h.ctx, trackA))
	h.must(t, h.s.Play(h.ctx))

	st := h.waitStatus(t, session.StatusPlaying)
	if !st.IsPlaying || st.Duration != trackLen {
		t.Errorf("IsPlaying = %v Duration = %s", st.IsPlaying, st.Duration)
	}
	if h.engine.Loaded() != trackA.Path || !h.engine.Playing() {
		t.Errorf("engine loaded %q playing=%v", h.engine.Loaded(), h.engine.Playing())
	}
}

func TestSetQueue_LoadsAndPlays(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.engine.SetDuration(trackB.Path, 90*time.Second)

	st := h.playing(t, 1, trackA, trackB, trackC)

	if st.CurrentIndex != 1 || currentID(st) != "b" {
		t.Errorf("current = %d/%s, want 1/b", st.CurrentIndex, currentID(st))
	}
	if st.Duration != 90*time.Second {
		t.Errorf("Duration = %s, want engine-reported 1m30s", st.Duration)
	}
	if st.IsLoading {
		t.Error("IsLoading = true after playback started")
	}
}

func TestSetQueue_ClampsStart(t *testing.T) {
	h := newHarness(t, session.Options{})
	st := h.playing(t, 10, trackA, trackB)

	if st.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", st.CurrentIndex)
	}
}

func TestSetQueue_EmptyClears(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)

	h.must(t, h.s.SetQueue(h.ctx, nil, 0))

	st := h.state(t)
	if len(st.Queue) != 0 || st.CurrentIndex != -1 || st.Position != 0 {
		t.Errorf("queue=%d index=%d position=%s, want empty", len(st.Queue), st.CurrentIndex, st.Position)
	}
	if st.IsPlaying || st.Status != session.StatusIdle {
		t.Errorf("Status = %s, want idle", st.Status)
	}
}

func TestPauseAndResume(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA)

	h.must(t, h.s.Pause(h.ctx))
	if st := h.state(t); st.Status != session.StatusPaused || st.IsPlaying {
		t.Errorf("after Pause status = %s", st.Status)
	}
	if h.engine.Playing() {
		t.Error("engine still playing after Pause")
	}

	h.must(t, h.s.Play(h.ctx))
	if st := h.state(t); st.Status != session.StatusPlaying {
		t.Errorf("after Play status = %s", st.Status)
	}
	if h.engine.CountCalls("load") != 1 {
		t.Error("resume reloaded the track")
	}
}

func TestTogglePlay(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA)

	h.must(t, h.s.TogglePlay(h.ctx))
	if st := h.state(t); st.Status != session.StatusPaused {
		t.Errorf("status = %s, want paused", st.Status)
	}
	h.must(t, h.s.TogglePlay(h.ctx))
	if st := h.state(t); st.Status != session.StatusPlaying {
		t.Errorf("status = %s, want playing", st.Status)
	}
}

func TestStop_ResetsPosition(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA)
	h.engine.Progress(42 * time.Second)
	h.waitFor(t, "progress", func(st session.State) bool { return st.Position == 42*time.Second })

	h.must(t, h.s.Stop(h.ctx))

	st := h.state(t)
	if st.Status != session.StatusStopped || st.Position != 0 || st.IsPlaying {
		t.Errorf("status = %s position = %s", st.Status, st.Position)
	}
}

func TestPause_DuringLoadCancelsAutoplay(t *testing.T) {
	h := newHarness(t, session.Options{})
	release := h.engine.Block(trackA.Path)

	h.must(t, h.s.SetQueue(h.ctx, []music.Track{trackA}, 0))
	if st := h.state(t); !st.IsLoading {
		t.Fatalf("status = %s, want loading", st.Status)
	}
	h.must(t, h.s.Pause(h.ctx))
	release()

	h.waitStatus(t, session.StatusStopped)
	if n := h.engine.CountCalls("play"); n != 0 {
		t.Errorf("engine play calls = %d, want 0", n)
	}
}

// Scenario A: past the restart threshold previous rewinds instead of navigating
func TestPrevious_RestartsPastThreshold(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB, trackC)
	h.engine.Progress(10 * time.Second)
	h.waitFor(t, "progress", func(st session.State) bool { return st.Position == 10*time.Second })

	h.must(t, h.s.Previous(h.ctx))

	st := h.state(t)
	if st.Position != 0 || st.CurrentIndex != 0 {
		t.Errorf("position = %s index = %d, want 0 and 0", st.Position, st.CurrentIndex)
	}
	if st.Status != session.StatusPlaying {
		t.Errorf("status = %s, want still playing", st.Status)
	}
	if h.engine.CountCalls("seek 0s") != 1 {
		t.Errorf("calls = %v, want a seek to 0", h.engine.Calls())
	}
}

// Scenario B: at the start of the list previous restarts the current track
func TestPrevious_StartOfListRestarts(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB, trackC)
	h.engine.Progress(time.Second)
	h.waitFor(t, "progress", func(st session.State) bool { return st.Position == time.Second })

	h.must(t, h.s.Previous(h.ctx))

	st := h.state(t)
	if st.Position != 0 || st.CurrentIndex != 0 {
		t.Errorf("position = %s index = %d, want 0 and 0", st.Position, st.CurrentIndex)
	}
	if h.engine.CountCalls("load") != 1 {
		t.Error("previous at the start of the list loaded another track")
	}
}

func TestPrevious_Navigates(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 2, trackA, trackB, trackC)
	h.engine.Progress(2 * time.Second)
	h.waitFor(t, "progress", func(st session.State) bool { return st.Position == 2*time.Second })

	h.must(t, h.s.Previous(h.ctx))

	st := h.waitFor(t, "track b playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && currentID(st) == "b"
	})
	if st.Position != 0 {
		t.Errorf("position = %s, want 0", st.Position)
	}
	if h.engine.Loaded() != trackB.Path {
		t.Errorf("engine loaded %q, want %q", h.engine.Loaded(), trackB.Path)
	}
}

// Scenario C: next at the end of a sequential queue stops
func TestNext_EndOfQueueStops(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 1, trackA, trackB)
	h.engine.Progress(30 * time.Second)
	h.waitFor(t, "progress", func(st session.State) bool { return st.Position == 30*time.Second })

	h.must(t, h.s.Next(h.ctx))

	st := h.state(t)
	if st.IsPlaying || st.Position != 0 {
		t.Errorf("IsPlaying = %v position = %s, want stopped at 0", st.IsPlaying, st.Position)
	}
	if st.Status != session.StatusStopped || st.LastError != nil {
		t.Errorf("status = %s err = %v, want stopped without error", st.Status, st.LastError)
	}
	if st.CurrentIndex != 1 {
		t.Errorf("CurrentIndex = %d, want 1", st.CurrentIndex)
	}
}

func TestNext_Advances(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)

	h.must(t, h.s.Next(h.ctx))

	h.waitFor(t, "track b playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && st.CurrentIndex == 1
	})
}

func TestNext_EmptyQueue(t *testing.T) {
	h := newHarness(t, session.Options{})
	if err := h.s.Next(h.ctx); !errors.Is(err, session.ErrEmptyQueue) {
		t.Errorf("err = %v, want ErrEmptyQueue", err)
	}
}

func TestEnded_AdvancesLikeNext(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)

	h.engine.End()

	h.waitFor(t, "track b playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && currentID(st) == "b"
	})

	h.engine.End()
	st := h.waitStatus(t, session.StatusStopped)
	if st.CurrentIndex != 1 || st.Position != 0 {
		t.Errorf("index = %d position = %s, want 1 and 0", st.CurrentIndex, st.Position)
	}
}

func TestEnded_RepeatOneReplays(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)
	h.must(t, h.s.SetMode(h.ctx, session.ModeRepeatOne))

	h.engine.End()

	h.waitFor(t, "track a replayed", func(st session.State) bool {
		return st.Status == session.StatusPlaying && h.engine.CountCalls("load") == 2
	})
	if st := h.state(t); currentID(st) != "a" {
		t.Errorf("current = %s, want a", currentID(st))
	}
}

func TestNext_SkipsTracksThatFailToLoad(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.engine.FailLoad(trackB.Path, errors.New("corrupt header"))
	h.playing(t, 0, trackA, trackB, trackC)

	h.must(t, h.s.Next(h.ctx))

	st := h.waitFor(t, "track c playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && currentID(st) == "c"
	})
	if st.LastError != nil {
		t.Errorf("LastError = %v, want cleared by the successful load", st.LastError)
	}
	if n := h.engine.CountCalls("load " + trackB.Path); n != 1 {
		t.Errorf("loads of b = %d, want 1", n)
	}
}

func TestNext_SkipsTracksThatFailToPlay(t *testing.T) {
	h := newHarness(t, session.Options{MaxAutoSkips: 1})
	h.playing(t, 0, trackA, trackB, trackC)
	h.engine.FailPlay(errors.New("device busy"))

	h.must(t, h.s.Next(h.ctx))

	st := h.waitStatus(t, session.StatusError)
	var pe *music.PlaybackError
	if !errors.As(st.LastError, &pe) {
		t.Errorf("LastError = %v, want *music.PlaybackError", st.LastError)
	}
	if st.IsPlaying {
		t.Error("IsPlaying = true after playback failure")
	}
}

func TestAutoSkip_Bounded(t *testing.T) {
	h := newHarness(t, session.Options{})
	for _, tr := range []music.Track{trackA, trackB, trackC} {
		h.engine.FailLoad(tr.Path, errors.New("missing"))
	}
	h.must(t, h.s.SetMode(h.ctx, session.ModeRepeatAll))

	// An explicit SetQueue is not retried
	h.must(t, h.s.SetQueue(h.ctx, []music.Track{trackA, trackB, trackC}, 0))
	h.waitStatus(t, session.StatusError)
	if n := h.engine.CountCalls("load"); n != 1 {
		t.Fatalf("loads after SetQueue = %d, want 1", n)
	}

	h.must(t, h.s.Next(h.ctx))

	st := h.waitFor(t, "skips exhausted", func(st session.State) bool {
		return st.Status == session.StatusError && h.engine.CountCalls("load") == 4
	})
	var le *music.LoadError
	if !errors.As(st.LastError, &le) {
		t.Errorf("LastError = %v, want *music.LoadError", st.LastError)
	}

	time.Sleep(20 * time.Millisecond)
	if n := h.engine.CountCalls("load"); n != 4 {
		t.Errorf("loads = %d, want retries to stop at 4", n)
	}
}

func TestAutoSkip_MaxAutoSkipsOption(t *testing.T) {
	h := newHarness(t, session.Options{MaxAutoSkips: 2})
	queue := []music.Track{trackA, trackB, trackC}
	h.playing(t, 0, queue...)
	for _, tr := range queue {
		h.engine.FailLoad(tr.Path, errors.New("missing"))
	}
	h.must(t, h.s.SetMode(h.ctx, session.ModeRepeatAll))

	h.must(t, h.s.Next(h.ctx))

	h.waitFor(t, "skips exhausted", func(st session.State) bool {
		return st.Status == session.StatusError && h.engine.CountCalls("load") == 3
	})
	time.Sleep(20 * time.Millisecond)
	if n := h.engine.CountCalls("load"); n != 3 {
		t.Errorf("loads = %d, want 3", n)
	}
}

func TestAutoSkip_NotInRepeatOne(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)
	h.must(t, h.s.SetMode(h.ctx, session.ModeRepeatOne))
	h.engine.FailLoad(trackA.Path, errors.New("gone"))

	h.must(t, h.s.Next(h.ctx))

	st := h.waitStatus(t, session.StatusError)
	if currentID(st) != "a" {
		t.Errorf("current = %s, want a", currentID(st))
	}
	time.Sleep(20 * time.Millisecond)
	if n := h.engine.CountCalls("load"); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestPrevious_FailureNotRetried(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 1, trackA, trackB, trackC)
	h.engine.FailLoad(trackA.Path, errors.New("gone"))

	h.must(t, h.s.Previous(h.ctx))

	st := h.waitStatus(t, session.StatusError)
	if currentID(st) != "a" {
		t.Errorf("current = %s, want a", currentID(st))
	}
	time.Sleep(20 * time.Millisecond)
	if n := h.engine.CountCalls("load"); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestPlaybackError_Surfaces(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)

	h.engine.Crash(errors.New("underrun"))

	st := h.waitStatus(t, session.StatusError)
	var pe *music.PlaybackError
	if !errors.As(st.LastError, &pe) {
		t.Errorf("LastError = %v, want *music.PlaybackError", st.LastError)
	}
	if st.IsPlaying || currentID(st) != "a" {
		t.Errorf("IsPlaying = %v current = %s", st.IsPlaying, currentID(st))
	}

	// Play from Error reloads the track
	h.must(t, h.s.Play(h.ctx))
	st = h.waitStatus(t, session.StatusPlaying)
	if st.LastError != nil {
		t.Errorf("LastError = %v after reload", st.LastError)
	}
	if n := h.engine.CountCalls("load"); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestStaleLoadIgnored(t *testing.T) {
	h := newHarness(t, session.Options{})
	release := h.engine.Block(trackA.Path)
	defer release()

	h.must(t, h.s.SetQueue(h.ctx, []music.Track{trackA, trackB}, 0))
	h.must(t, h.s.PlayAt(h.ctx, 1))

	st := h.waitStatus(t, session.StatusPlaying)
	if currentID(st) != "b" || st.LastError != nil {
		t.Errorf("current = %s err = %v, want b without error", currentID(st), st.LastError)
	}
	if h.engine.Loaded() != trackB.Path {
		t.Errorf("engine loaded %q, want %q", h.engine.Loaded(), trackB.Path)
	}
}

func TestStaleEventsIgnored(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)
	stale := h.engine.Source() - 1

	h.engine.Emit(music.Event{Kind: music.EventProgress, Source: stale, Position: time.Minute})
	h.engine.Emit(music.Event{Kind: music.EventEnded, Source: stale})
	h.engine.Progress(5 * time.Second)

	st := h.waitFor(t, "current progress", func(st session.State) bool { return st.Position == 5*time.Second })
	if st.CurrentIndex != 0 || st.Status != session.StatusPlaying {
		t.Errorf("index = %d status = %s, stale ended event was applied", st.CurrentIndex, st.Status)
	}
}

func TestSeek_ClampsAndIsIdempotent(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA)

	tests := []struct {
		seek time.Duration
		want time.Duration
	}{
		{45 * time.Second, 45 * time.Second},
		{10 * time.Minute, trackLen},
		{-time.Second, 0},
		{trackLen, trackLen},
	}

	for _, tt := range tests {
		h.must(t, h.s.Seek(h.ctx, tt.seek))
		snap, err := h.s.Snapshot(h.ctx)
		h.must(t, err)
		if snap.Position != tt.want {
			t.Errorf("Seek(%s) snapshot position = %s, want %s", tt.seek, snap.Position, tt.want)
		}
		if got := h.engine.SeekPosition(); got != tt.want {
			t.Errorf("Seek(%s) engine position = %s, want %s", tt.seek, got, tt.want)
		}
	}
}

func TestSeek_DuringLoadApplied(t *testing.T) {
	h := newHarness(t, session.Options{})
	release := h.engine.Block(trackA.Path)

	h.must(t, h.s.SetQueue(h.ctx, []music.Track{trackA}, 0))
	h.must(t, h.s.Seek(h.ctx, 30*time.Second))
	release()

	st := h.waitStatus(t, session.StatusPlaying)
	if st.Position != 30*time.Second {
		t.Errorf("position = %s, want 30s", st.Position)
	}
	if h.engine.SeekPosition() != 30*time.Second {
		t.Errorf("engine seek = %s, want 30s", h.engine.SeekPosition())
	}
}

func TestSeek_NothingLoaded(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.must(t, h.s.AddToQueue(h.ctx, trackA))

	h.must(t, h.s.Seek(h.ctx, 20*time.Second))

	if st := h.state(t); st.Position != 0 {
		t.Errorf("position = %s, want 0", st.Position)
	}
	if n := h.engine.CountCalls("seek"); n != 0 {
		t.Errorf("engine seeks = %d, want 0", n)
	}
}

func TestSetVolume_Clamps(t *testing.T) {
	h := newHarness(t, session.Options{})

	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{1.7, 1},
		{-0.3, 0},
	}

	for _, tt := range tests {
		h.must(t, h.s.SetVolume(h.ctx, tt.in))
		if st := h.state(t); st.Volume != tt.want {
			t.Errorf("SetVolume(%v) = %v, want %v", tt.in, st.Volume, tt.want)
		}
		if h.engine.Volume() != tt.want {
			t.Errorf("SetVolume(%v) engine = %v, want %v", tt.in, h.engine.Volume(), tt.want)
		}
	}
}

func TestSetMode_Invalid(t *testing.T) {
	h := newHarness(t, session.Options{})

	err := h.s.SetMode(h.ctx, session.Mode(42))
	if !errors.Is(err, session.ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
	if st := h.state(t); st.Mode != session.ModeSequential {
		t.Errorf("mode = %s, want unchanged", st.Mode)
	}
}

func TestRemoveAt_CurrentLastWhilePlaying(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 2, trackA, trackB, trackC)

	h.must(t, h.s.RemoveAt(h.ctx, 2))

	st := h.waitFor(t, "b playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && currentID(st) == "b"
	})
	if st.CurrentIndex != 1 || len(st.Queue) != 2 {
		t.Errorf("index = %d len = %d, want 1 and 2", st.CurrentIndex, len(st.Queue))
	}
	if h.engine.Loaded() != trackB.Path {
		t.Errorf("engine loaded %q, want %q", h.engine.Loaded(), trackB.Path)
	}
}

func TestRemoveAt_CurrentWhilePaused(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)
	h.must(t, h.s.Pause(h.ctx))

	h.must(t, h.s.RemoveAt(h.ctx, 0))

	st := h.state(t)
	if currentID(st) != "b" || st.Status != session.StatusIdle || st.IsPlaying {
		t.Errorf("current = %s status = %s, want b idle", currentID(st), st.Status)
	}
	if n := h.engine.CountCalls("load"); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestRemoveAt_OnlyTrack(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA)

	h.must(t, h.s.RemoveAt(h.ctx, 0))

	st := h.state(t)
	if st.CurrentIndex != -1 || st.CurrentTrack() != nil || st.IsPlaying {
		t.Errorf("index = %d playing = %v, want -1 and stopped", st.CurrentIndex, st.IsPlaying)
	}
	if h.engine.Playing() {
		t.Error("engine still playing")
	}
}

func TestRemoveAt_BeforeCurrentKeepsPlaying(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 2, trackA, trackB, trackC)

	h.must(t, h.s.RemoveAt(h.ctx, 0))

	st := h.state(t)
	if st.CurrentIndex != 1 || currentID(st) != "c" || st.Status != session.StatusPlaying {
		t.Errorf("index = %d current = %s status = %s", st.CurrentIndex, currentID(st), st.Status)
	}
	if n := h.engine.CountCalls("load"); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestRemoveAt_OutOfRange(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.must(t, h.s.AddToQueue(h.ctx, trackA))

	if err := h.s.RemoveAt(h.ctx, 3); !errors.Is(err, session.ErrIndexOutOfRange) {
		t.Errorf("err = %v, want ErrIndexOutOfRange", err)
	}
	if st := h.state(t); len(st.Queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(st.Queue))
	}
}

func TestInsertNext_ThenNext(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)

	h.must(t, h.s.InsertNext(h.ctx, trackC))
	h.must(t, h.s.Next(h.ctx))

	h.waitFor(t, "c playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && currentID(st) == "c"
	})
}

func TestReorder_KeepsPlaying(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB, trackC)

	h.must(t, h.s.Reorder(h.ctx, 0, 2))

	st := h.state(t)
	if st.CurrentIndex != 2 || currentID(st) != "a" || st.Status != session.StatusPlaying {
		t.Errorf("index = %d current = %s status = %s", st.CurrentIndex, currentID(st), st.Status)
	}
}

func TestClearQueue(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)

	h.must(t, h.s.ClearQueue(h.ctx))

	st := h.state(t)
	if len(st.Queue) != 0 || st.CurrentIndex != -1 || st.Duration != 0 || st.IsPlaying {
		t.Errorf("state not cleared: %+v", st)
	}
}

func TestPlayTrack(t *testing.T) {
	h := newHarness(t, session.Options{})
	h.playing(t, 0, trackA, trackB)

	// Queued tracks are jumped to
	h.must(t, h.s.PlayTrack(h.ctx, trackB))
	st := h.waitFor(t, "b playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && currentID(st) == "b"
	})
	if len(st.Queue) != 2 {
		t.Errorf("queue length = %d, want 2", len(st.Queue))
	}

	// Anything else replaces the queue
	h.must(t, h.s.PlayTrack(h.ctx, trackC))
	st = h.waitFor(t, "c playing", func(st session.State) bool {
		return st.Status == session.StatusPlaying && currentID(st) == "c"
	})
	if len(st.Queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(st.Queue))
	}
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, session.Options{})
	updates, cancel := h.s.Subscribe()
	defer cancel()

	h.must(t, h.s.AddToQueue(h.ctx, trackA))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if len(st.Queue) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("no state update with the queued track")
		}
	}
}

func TestCommandsAfterShutdown(t *testing.T) {
	engine := testutil.NewFakeEngine()
	s := session.New(engine, testutil.NewMemoryCatalog(), session.Options{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	cancel()
	<-s.Done()

	if err := s.Play(context.Background()); !errors.Is(err, session.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}
