package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"navvoice/pkg/audio"
	"navvoice/pkg/model"
	"navvoice/pkg/playback"
	"navvoice/pkg/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fetchCall is a pending Fetch the test answers by hand.
type fetchCall struct {
	text     string
	textType model.TextType
	reply    chan fetchReply
}

type fetchReply struct {
	payload []byte
	err     error
}

func (c fetchCall) succeed() { c.reply <- fetchReply{payload: []byte(c.text)} }

func (c fetchCall) fail(err error) { c.reply <- fetchReply{err: err} }

type fakeFetcher struct {
	calls chan fetchCall
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(chan fetchCall, 16)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, text string, textType model.TextType) ([]byte, error) {
	c := fetchCall{text: text, textType: textType, reply: make(chan fetchReply, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// next returns the calls issued so far keyed by text.
func (f *fakeFetcher) next(t *testing.T, n int) map[string]fetchCall {
	t.Helper()
	out := make(map[string]fetchCall, n)
	for len(out) < n {
		select {
		case c := <-f.calls:
			out[c.text] = c
		case <-time.After(waitFor):
			t.Fatalf("expected %d fetches, got %d", n, len(out))
		}
	}
	return out
}

func (f *fakeFetcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected fetch for %q", c.text)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeTrack is named after the file content, which the fake fetcher sets to
// the announcement text.
type fakeTrack struct {
	name string

	mu      sync.Mutex
	onDone  func(error)
	stopped bool
	closed  bool
}

func (t *fakeTrack) Start(onDone func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDone = onDone
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTrack) finish(err error) {
	t.mu.Lock()
	done, stopped := t.onDone, t.stopped
	t.mu.Unlock()
	if done == nil || stopped {
		return
	}
	go done(err)
}

func (t *fakeTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeBackend struct {
	mu       sync.Mutex
	failOpen map[string]bool
	tracks   map[string]*fakeTrack
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		failOpen: make(map[string]bool),
		tracks:   make(map[string]*fakeTrack),
	}
}

func (b *fakeBackend) Open(path string) (audio.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := string(data)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOpen[name] {
		return nil, fmt.Errorf("cannot decode %s", name)
	}
	tr := &fakeTrack{name: name}
	b.tracks[name] = tr
	return tr, nil
}

func (b *fakeBackend) track(t *testing.T, name string) *fakeTrack {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	tr, ok := b.tracks[name]
	require.True(t, ok, "track %q was never opened", name)
	return tr
}

type event struct {
	kind string
	id   string
	err  error
}

type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 64)}
}

func id(a *model.Announcement) string {
	if a == nil {
		return ""
	}
	return a.ID
}

func (r *recorder) OnPlaybackStarted(a *model.Announcement) {
	r.events <- event{kind: "started", id: id(a)}
}

func (r *recorder) OnPlaybackFinished(a *model.Announcement) {
	r.events <- event{kind: "finished", id: id(a)}
}

func (r *recorder) OnError(err error, a *model.Announcement) {
	r.events <- event{kind: "error", id: id(a), err: err}
}

func (r *recorder) expect(t *testing.T, kind, id string) event {
	t.Helper()
	select {
	case ev := <-r.events:
		require.Equal(t, kind+":"+id, ev.kind+":"+ev.id, "unexpected event")
		return ev
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s:%s", kind, id)
		return event{}
	}
}

func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %s:%s", ev.kind, ev.id)
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	player  *Player
	fetcher *fakeFetcher
	backend *fakeBackend
	events  *recorder
	mat     *playback.Materializer
	tracker *tracker.Tracker
}

func newHarness(t *testing.T, muted bool) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mat, err := playback.NewMaterializer(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		fetcher: newFakeFetcher(),
		backend: newFakeBackend(),
		events:  newRecorder(),
		mat:     mat,
		tracker: tracker.New(),
	}
	h.player = New(ctx, h.fetcher, mat, h.backend, Options{
		Muted:    muted,
		Listener: h.events,
		Tracker:  h.tracker,
	})
	// Runs after Shutdown: every asset must have been deleted exactly once.
	t.Cleanup(func() {
		assert.Zero(t, mat.Repeats(), "asset deleted more than once")
	})
	t.Cleanup(h.player.Shutdown)
	return h
}

func ann(id string) *model.Announcement {
	return &model.Announcement{ID: id, Text: id}
}

func (h *harness) files(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.mat.Dir())
	require.NoError(t, err)
	return len(entries)
}

func (h *harness) eventuallyFiles(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.files(t) == n }, waitFor, 5*time.Millisecond,
		"expected %d files in cache", n)
}

func (h *harness) eventuallyIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := h.player.Status()
		return s.State == audio.StateIdle.String() && s.Queued == 0
	}, waitFor, 5*time.Millisecond)
}

func TestPlayer_SinglePlay(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	h.fetcher.next(t, 1)["A"].succeed()

	h.events.expect(t, "started", "A")
	assert.Equal(t, 1, h.files(t))

	h.backend.track(t, "A").finish(nil)
	h.events.expect(t, "finished", "A")

	h.eventuallyFiles(t, 0)
	h.eventuallyIdle(t)
	assert.True(t, h.backend.track(t, "A").isClosed())
	assert.Equal(t, int64(1), h.player.Status().Played)
}

func TestPlayer_MarkupRequested(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(&model.Announcement{ID: "A", Text: "plain", SSML: "<speak>A</speak>"})
	call := h.fetcher.next(t, 1)["<speak>A</speak>"]
	assert.Equal(t, model.TextTypeSSML, call.textType)
}

func TestPlayer_OrderIndependentOfFetchCompletion(t *testing.T) {
	tests := []struct {
		name  string
		reply []string
	}{
		{name: "In Order", reply: []string{"A", "B", "C"}},
		{name: "Reversed", reply: []string{"C", "B", "A"}},
		{name: "Middle First", reply: []string{"B", "A", "C"}},
		{name: "Last Then First", reply: []string{"C", "A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)

			h.player.Play(ann("A"))
			h.player.Play(ann("B"))
			h.player.Play(ann("C"))
			calls := h.fetcher.next(t, 3)
			for _, name := range tt.reply {
				calls[name].succeed()
			}

			for _, name := range []string{"A", "B", "C"} {
				h.events.expect(t, "started", name)
				h.backend.track(t, name).finish(nil)
				h.events.expect(t, "finished", name)
			}
			h.eventuallyFiles(t, 0)
			h.events.expectNone(t)
		})
	}
}

func TestPlayer_OverlappingPlays(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	callA := h.fetcher.next(t, 1)["A"]
	h.player.Play(ann("B"))
	callB := h.fetcher.next(t, 1)["B"]

	callA.succeed()
	h.events.expect(t, "started", "A")
	callB.succeed()

	require.Eventually(t, func() bool { return h.player.Status().Queued == 2 }, waitFor, 5*time.Millisecond)
	h.events.expectNone(t)

	h.backend.track(t, "A").finish(nil)
	h.events.expect(t, "finished", "A")
	h.events.expect(t, "started", "B")
	assert.Equal(t, 1, h.files(t))

	h.backend.track(t, "B").finish(nil)
	h.events.expect(t, "finished", "B")
	h.eventuallyFiles(t, 0)
}

func TestPlayer_OffRouteMidPlayback(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	h.player.Play(ann("B"))
	calls := h.fetcher.next(t, 2)
	calls["A"].succeed()
	calls["B"].succeed()
	h.events.expect(t, "started", "A")
	require.Eventually(t, func() bool { return h.files(t) == 2 }, waitFor, 5*time.Millisecond)

	h.player.OnOffRoute()
	h.events.expect(t, "finished", "A")
	h.eventuallyFiles(t, 0)
	h.eventuallyIdle(t)
	assert.True(t, h.backend.track(t, "A").isStopped())
	h.events.expectNone(t)

	// A fresh cycle starts from an empty queue.
	h.player.Play(ann("C"))
	h.fetcher.next(t, 1)["C"].succeed()
	h.events.expect(t, "started", "C")
	h.backend.track(t, "C").finish(nil)
	h.events.expect(t, "finished", "C")
	h.eventuallyFiles(t, 0)
}

func TestPlayer_OffRouteAbandonsInFlightFetch(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	call := h.fetcher.next(t, 1)["A"]
	h.player.OnOffRoute()
	call.succeed()

	require.Eventually(t, func() bool { return h.player.Status().Dropped == 1 }, waitFor, 5*time.Millisecond)
	h.eventuallyFiles(t, 0)
	h.events.expectNone(t)
	assert.Equal(t, 0, h.player.Status().Outstanding)
}

func TestPlayer_OffRouteDoesNotWaitOnHungFetch(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	h.player.Play(ann("B"))
	calls := h.fetcher.next(t, 2)

	// B parks behind A, which has not answered yet.
	calls["B"].succeed()
	require.Eventually(t, func() bool { return h.files(t) == 1 }, waitFor, 5*time.Millisecond)

	h.player.OnOffRoute()
	h.player.Play(ann("C"))
	h.fetcher.next(t, 1)["C"].succeed()
	h.events.expect(t, "started", "C")

	// A answers for the old route: deleted, never played.
	calls["A"].succeed()
	require.Eventually(t, func() bool { return h.player.Status().Dropped == 2 }, waitFor, 5*time.Millisecond)

	h.backend.track(t, "C").finish(nil)
	h.events.expect(t, "finished", "C")
	h.eventuallyFiles(t, 0)
	h.events.expectNone(t)

	s := h.player.Status()
	assert.Equal(t, int64(1), s.Played)
	assert.Equal(t, 0, s.Outstanding)
	assert.Zero(t, h.mat.Repeats())
}

func TestPlayer_MutedDropsMaterializedAsset(t *testing.T) {
	h := newHarness(t, false)

	h.player.SetMuted(true)
	assert.True(t, h.player.IsMuted())

	h.player.Play(ann("A"))
	// The fetch is still issued.
	h.fetcher.next(t, 1)["A"].succeed()

	require.Eventually(t, func() bool { return h.player.Status().Dropped == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, h.files(t))
	h.events.expectNone(t)
	assert.Equal(t, 0, h.player.Status().Queued)
}

func TestPlayer_MuteIsIdempotent(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	h.player.Play(ann("B"))
	calls := h.fetcher.next(t, 2)
	calls["A"].succeed()
	calls["B"].succeed()
	h.events.expect(t, "started", "A")
	require.Eventually(t, func() bool { return h.player.Status().Queued == 2 }, waitFor, 5*time.Millisecond)

	h.player.SetMuted(true)
	h.player.SetMuted(true)

	h.events.expect(t, "finished", "A")
	h.events.expectNone(t)
	h.eventuallyFiles(t, 0)

	s := h.player.Status()
	assert.True(t, s.Muted)
	assert.Equal(t, int64(2), s.Dropped)
	assert.Equal(t, int64(2), h.tracker.Pipeline().Dropped)

	// Unmuting resumes normal service.
	h.player.SetMuted(false)
	h.player.Play(ann("C"))
	h.fetcher.next(t, 1)["C"].succeed()
	h.events.expect(t, "started", "C")
}

func TestPlayer_MuteDiscardsParkedAssets(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	h.player.Play(ann("B"))
	calls := h.fetcher.next(t, 2)

	// B completes first and waits behind A.
	calls["B"].succeed()
	require.Eventually(t, func() bool { return h.files(t) == 1 }, waitFor, 5*time.Millisecond)

	h.player.SetMuted(true)
	h.eventuallyFiles(t, 0)

	calls["A"].succeed()
	require.Eventually(t, func() bool { return h.player.Status().Dropped == 2 }, waitFor, 5*time.Millisecond)
	h.eventuallyFiles(t, 0)
	h.events.expectNone(t)
	assert.Equal(t, 0, h.player.Status().Outstanding)
}

func TestPlayer_UnmuteBeforeFetchLands(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	call := h.fetcher.next(t, 1)["A"]
	h.player.SetMuted(true)
	h.player.SetMuted(false)
	call.succeed()

	// Only mute at arrival time drops a result.
	h.events.expect(t, "started", "A")
	h.backend.track(t, "A").finish(nil)
	h.events.expect(t, "finished", "A")
	h.eventuallyFiles(t, 0)
}

func TestPlayer_EmptyAnnouncementIgnored(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(nil)
	h.player.Play(&model.Announcement{ID: "blank", Text: " ", SSML: ""})

	h.fetcher.expectNone(t)
	h.events.expectNone(t)
	s := h.player.Status()
	assert.Equal(t, int64(0), s.Requested)
	assert.Equal(t, 0, s.Queued)
	assert.Empty(t, s.Current)
}

func TestPlayer_Errors(t *testing.T) {
	t.Run("Fetch Failure", func(t *testing.T) {
		h := newHarness(t, false)

		h.player.Play(ann("A"))
		h.player.Play(ann("B"))
		calls := h.fetcher.next(t, 2)
		calls["B"].succeed()
		calls["A"].fail(errors.New("HTTP 401: Not Authorized"))

		ev := h.events.expect(t, "error", "A")
		assert.ErrorIs(t, ev.err, ErrFetch)
		assert.Contains(t, ev.err.Error(), "Not Authorized")
		h.events.expect(t, "started", "B")
	})

	t.Run("Materialize Failure", func(t *testing.T) {
		h := newHarness(t, false)

		h.player.Play(ann("A"))
		// An empty payload cannot be written.
		h.fetcher.next(t, 1)["A"].reply <- fetchReply{payload: nil}

		ev := h.events.expect(t, "error", "A")
		assert.ErrorIs(t, ev.err, ErrMaterialize)
		assert.NotErrorIs(t, ev.err, ErrFetch)
		assert.Equal(t, 0, h.files(t))
		h.eventuallyIdle(t)
	})

	t.Run("Prepare Failure Advances", func(t *testing.T) {
		h := newHarness(t, false)
		h.backend.failOpen["A"] = true

		h.player.Play(ann("A"))
		h.player.Play(ann("B"))
		calls := h.fetcher.next(t, 2)
		calls["A"].succeed()
		calls["B"].succeed()

		ev := h.events.expect(t, "error", "A")
		assert.ErrorIs(t, ev.err, ErrPrepare)
		h.events.expect(t, "started", "B")
		h.backend.track(t, "B").finish(nil)
		h.events.expect(t, "finished", "B")

		// A's file is orphaned until the cache is flushed.
		h.eventuallyFiles(t, 1)
		h.player.Shutdown()
		assert.Equal(t, 0, h.files(t))
	})

	t.Run("Playback Failure Advances", func(t *testing.T) {
		h := newHarness(t, false)

		h.player.Play(ann("A"))
		h.player.Play(ann("B"))
		calls := h.fetcher.next(t, 2)
		calls["A"].succeed()
		calls["B"].succeed()

		h.events.expect(t, "started", "A")
		h.backend.track(t, "A").finish(errors.New("corrupt frame"))
		h.events.expect(t, "finished", "A")
		ev := h.events.expect(t, "error", "A")
		assert.ErrorIs(t, ev.err, ErrPlayback)
		h.events.expect(t, "started", "B")

		assert.Equal(t, int64(1), h.player.Status().Errors)
		assert.Equal(t, int64(1), h.tracker.Pipeline().Errors)
	})
}

func TestPlayer_Shutdown(t *testing.T) {
	h := newHarness(t, false)

	h.player.Play(ann("A"))
	h.player.Play(ann("B"))
	calls := h.fetcher.next(t, 2)
	calls["A"].succeed()
	h.events.expect(t, "started", "A")

	h.player.Shutdown()
	h.events.expect(t, "finished", "A")
	assert.Equal(t, 0, h.files(t))
	assert.True(t, h.backend.track(t, "A").isClosed())

	s := h.player.Status()
	assert.True(t, s.Closed)
	assert.Equal(t, audio.StateIdle.String(), s.State)

	// Calls after shutdown are no-ops.
	h.player.Play(ann("C"))
	h.player.SetMuted(true)
	h.player.OnOffRoute()
	h.fetcher.expectNone(t)
	assert.False(t, h.player.IsMuted())

	// A fetch that lands after shutdown does not leave a file behind.
	calls["B"].succeed()
	h.eventuallyFiles(t, 0)
	h.events.expectNone(t)

	h.player.Shutdown()
}

type eventSink struct {
	mu    sync.Mutex
	types []string
}

func (s *eventSink) RecordEvent(e *model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, e.Type)
}

func (s *eventSink) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

func TestPlayer_ControllerEvents(t *testing.T) {
	mat, err := playback.NewMaterializer(t.TempDir())
	require.NoError(t, err)
	sink := &eventSink{}
	p := New(context.Background(), newFakeFetcher(), mat, newFakeBackend(), Options{Events: sink})

	p.SetMuted(true)
	p.SetMuted(true)
	p.SetMuted(false)
	p.OnOffRoute()
	p.Shutdown()

	assert.Equal(t, []string{
		model.EventMute,
		model.EventUnmute,
		model.EventOffRoute,
		model.EventShutdown,
	}, sink.got())
}

func TestPlayer_ContextCancelShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mat, err := playback.NewMaterializer(t.TempDir())
	require.NoError(t, err)
	f := newFakeFetcher()
	p := New(ctx, f, mat, newFakeBackend(), Options{Muted: true})

	p.Play(ann("A"))
	f.next(t, 1)
	cancel()

	require.Eventually(t, func() bool { return p.Status().Closed }, waitFor, 5*time.Millisecond)
	assert.True(t, p.IsMuted(), "final status keeps the mute flag")
}
