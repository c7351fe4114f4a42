// Package voice is the announcement playback pipeline: it turns announcements
// into synthesized audio, keeps the results in arrival order and plays them
// one at a time.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"navvoice/pkg/audio"
	"navvoice/pkg/logging"
	"navvoice/pkg/model"
	"navvoice/pkg/playback"
	"navvoice/pkg/tracker"
	"navvoice/pkg/tts"
)

// Options configures a Player.
type Options struct {
	Muted    bool
	Listener Listener
	Tracker  *tracker.Tracker

	// Events receives mute, off-route and shutdown events. Nil disables them.
	Events EventLog
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	State       string `json:"state"`
	Muted       bool   `json:"muted"`
	Queued      int    `json:"queued"`
	Outstanding int    `json:"outstanding"`
	Current     string `json:"current,omitempty"`
	Requested   int64  `json:"requested"`
	Played      int64  `json:"played"`
	Dropped     int64  `json:"dropped"`
	Errors      int64  `json:"errors"`
	Closed      bool   `json:"closed"`
}

// Player is the pipeline controller. Public methods and asynchronous results
// are messages into a single event loop that owns all pipeline state.
type Player struct {
	ctx      context.Context
	fetcher  tts.Fetcher
	mat      *playback.Materializer
	listener Listener
	eventLog EventLog
	tracker  *tracker.Tracker

	events chan any
	exited chan struct{}
	final  Status

	// Owned by the loop goroutine.
	queue   *playback.Queue
	seq     *playback.Sequencer
	engine  *audio.Engine
	muted   bool
	current *model.Announcement
	pending map[uint64]*model.Announcement
	stats   Status
}

type playMsg struct{ a *model.Announcement }

type muteMsg struct{ muted bool }

type offRouteMsg struct{}

type shutdownMsg struct{}

type statusMsg struct{ reply chan Status }

type fetchResult struct {
	seq   uint64
	asset playback.Asset
	err   error
}

// New starts a player. The loop stops when Shutdown is called or ctx ends,
// whichever happens first; both leave the cache directory empty.
func New(ctx context.Context, fetcher tts.Fetcher, mat *playback.Materializer, backend audio.Backend, opts Options) *Player {
	p := &Player{
		ctx:      ctx,
		fetcher:  fetcher,
		mat:      mat,
		listener: opts.Listener,
		eventLog: opts.Events,
		tracker:  opts.Tracker,
		events:   make(chan any),
		exited:   make(chan struct{}),
		queue:    playback.NewQueue(),
		seq:      playback.NewSequencer(),
		muted:    opts.Muted,
		pending:  make(map[uint64]*model.Announcement),
	}
	if p.listener == nil {
		p.listener = NopListener{}
	}
	p.engine = audio.NewEngine(backend, p.post)

	go p.run(ctx)
	return p
}

// Play synthesizes and queues an announcement. Empty announcements are ignored.
// Play does not wait for the fetch.
func (p *Player) Play(a *model.Announcement) {
	if a.IsEmpty() {
		return
	}
	p.post(playMsg{a: a})
}

// SetMuted toggles mute. Muting stops playback and discards everything queued.
func (p *Player) SetMuted(muted bool) {
	p.post(muteMsg{muted: muted})
}

// IsMuted reports the mute flag.
func (p *Player) IsMuted() bool {
	return p.Status().Muted
}

// OnOffRoute stops playback and discards everything queued. Fetches still in
// flight are abandoned: their audio is deleted on arrival and never played.
func (p *Player) OnOffRoute() {
	p.post(offRouteMsg{})
}

// Status returns the current pipeline status.
func (p *Player) Status() Status {
	reply := make(chan Status, 1)
	if !p.post(statusMsg{reply: reply}) {
		return p.final
	}
	return <-reply
}

// Shutdown stops playback for good and empties the cache directory.
// It blocks until the loop has exited and may be called more than once.
func (p *Player) Shutdown() {
	p.post(shutdownMsg{})
	<-p.exited
}

// post hands msg to the loop. It returns false once the loop has exited.
func (p *Player) post(msg any) bool {
	select {
	case p.events <- msg:
		return true
	case <-p.exited:
		return false
	}
}

func (p *Player) run(ctx context.Context) {
	defer close(p.exited)
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return
		case msg := <-p.events:
			if _, ok := msg.(shutdownMsg); ok {
				p.shutdown()
				return
			}
			p.handle(msg)
		}
	}
}

func (p *Player) handle(msg any) {
	logging.TraceDefault("Voice: Message", "type", fmt.Sprintf("%T", msg), "queued", p.queue.Count())
	switch m := msg.(type) {
	case playMsg:
		p.issue(m.a)
	case fetchResult:
		p.onFetched(m)
	case audio.Prepared:
		p.onPrepared(m)
	case audio.Finished:
		p.onFinished(m)
	case muteMsg:
		p.setMuted(m.muted)
	case offRouteMsg:
		slog.Info("Voice: Off route, clearing queue")
		p.logEvent(model.EventOffRoute, "Off route")
		p.halt()
		p.abandon()
	case statusMsg:
		m.reply <- p.snapshot()
	default:
		slog.Warn("Voice: Unknown message", "type", fmt.Sprintf("%T", msg))
	}
}

func (p *Player) issue(a *model.Announcement) {
	p.current = a
	text, textType := Select(a)
	seq := p.seq.Issue()
	p.pending[seq] = a
	p.stats.Requested++
	if p.tracker != nil {
		p.tracker.TrackRequested()
	}

	slog.Debug("Voice: Fetching announcement", "seq", seq, "id", a.ID, "type", textType)
	go p.fetch(seq, a.ID, text, textType)
}

// fetch runs off the loop. The asset is written before posting so the loop
// never touches the disk for a write.
func (p *Player) fetch(seq uint64, id, text string, textType model.TextType) {
	res := fetchResult{seq: seq}
	payload, err := p.fetcher.Fetch(p.ctx, text, textType)
	if err != nil {
		res.err = fmt.Errorf("%w: %w", ErrFetch, err)
	} else if res.asset, err = p.mat.Materialize(seq, id, payload); err != nil {
		res.err = fmt.Errorf("%w: %w", ErrMaterialize, err)
	}

	if !p.post(res) && res.err == nil {
		p.mat.Discard(res.asset)
	}
}

func (p *Player) onFetched(r fetchResult) {
	a := p.pending[r.seq]

	if r.err != nil {
		delete(p.pending, r.seq)
		p.fail(r.err, a)
		p.enqueue(p.seq.Resolve(r.seq, playback.Asset{}, false))
		return
	}

	if p.seq.Abandoned(r.seq) {
		slog.Debug("Voice: Dropping abandoned asset", "seq", r.seq)
		delete(p.pending, r.seq)
		p.drop(r.asset)
		return
	}

	if p.muted {
		slog.Debug("Voice: Muted, dropping asset", "seq", r.seq)
		delete(p.pending, r.seq)
		p.drop(r.asset)
		p.enqueue(p.seq.Resolve(r.seq, playback.Asset{}, false))
		return
	}

	p.enqueue(p.seq.Resolve(r.seq, r.asset, true))
}

func (p *Player) enqueue(assets []playback.Asset) {
	for _, a := range assets {
		p.queue.Enqueue(a)
	}
	p.advance()
}

// advance prepares the queue head when the engine is free.
func (p *Player) advance() {
	if p.engine.State() != audio.StateIdle {
		return
	}
	head, ok := p.queue.Peek()
	if !ok {
		return
	}
	if err := p.engine.Load(head); err != nil {
		slog.Warn("Voice: Failed to load head", "seq", head.Seq, "error", err)
	}
}

func (p *Player) onPrepared(m audio.Prepared) {
	active, _ := p.engine.Active()
	started, err := p.engine.OnPrepared(m)
	if err != nil {
		// The file stays on disk until the next flush.
		head, _ := p.queue.Pop()
		a := p.pending[head.Seq]
		delete(p.pending, head.Seq)
		p.fail(fmt.Errorf("%w: %w", ErrPrepare, err), a)
		p.advance()
		return
	}
	if !started {
		return
	}

	p.stats.Played++
	if p.tracker != nil {
		p.tracker.TrackPlayed()
	}
	a := p.pending[active.Seq]
	slog.Info("Voice: Playing announcement", "seq", active.Seq, "text", a.Label())
	p.listener.OnPlaybackStarted(a)
}

func (p *Player) onFinished(m audio.Finished) {
	asset, ok, err := p.engine.OnFinished(m)
	if !ok {
		return
	}

	p.queue.Pop()
	p.mat.Discard(asset)
	a := p.pending[asset.Seq]
	delete(p.pending, asset.Seq)

	p.listener.OnPlaybackFinished(a)
	if err != nil {
		p.fail(fmt.Errorf("%w: %w", ErrPlayback, err), a)
	}
	p.advance()
}

func (p *Player) setMuted(muted bool) {
	if muted == p.muted {
		return
	}
	p.muted = muted
	slog.Info("Voice: Mute changed", "muted", muted)
	if muted {
		p.logEvent(model.EventMute, "Voice muted")
		p.halt()
		return
	}
	p.logEvent(model.EventUnmute, "Voice unmuted")
}

// halt stops the engine and discards the queue together with assets still
// parked behind an unresolved fetch.
func (p *Player) halt() {
	active, _ := p.engine.Active()
	if p.engine.Stop() {
		p.listener.OnPlaybackFinished(p.pending[active.Seq])
	}

	dropped := append(p.queue.Drain(), p.seq.DrainParked()...)
	for _, a := range dropped {
		delete(p.pending, a.Seq)
	}
	p.drop(dropped...)
}

// abandon gives up on fetches still in flight for the old route, so
// announcements issued afterwards never wait on them.
func (p *Player) abandon() {
	if n := p.seq.Abandon(); n > 0 {
		slog.Debug("Voice: Abandoned in-flight fetches", "count", n)
	}
}

func (p *Player) drop(assets ...playback.Asset) {
	if len(assets) == 0 {
		return
	}
	p.mat.Discard(assets...)
	p.stats.Dropped += int64(len(assets))
	if p.tracker != nil {
		p.tracker.TrackDropped(len(assets))
	}
}

func (p *Player) fail(err error, a *model.Announcement) {
	if a == nil {
		a = p.current
	}
	p.stats.Errors++
	if p.tracker != nil {
		p.tracker.TrackError()
	}
	slog.Error("Voice: Announcement failed", "text", a.Label(), "error", err)
	p.listener.OnError(err, a)
}

func (p *Player) shutdown() {
	p.halt()
	if err := p.mat.Flush(); err != nil {
		slog.Warn("Voice: Failed to flush cache", "error", err)
	}
	p.final = p.snapshot()
	p.final.Closed = true
	p.logEvent(model.EventShutdown, "Voice player shut down")
	slog.Info("Voice: Player shut down")
}

func (p *Player) logEvent(typ, title string) {
	if p.eventLog == nil {
		return
	}
	p.eventLog.RecordEvent(&model.Event{Timestamp: time.Now(), Type: typ, Title: title})
}

func (p *Player) snapshot() Status {
	s := p.stats
	s.State = p.engine.State().String()
	s.Muted = p.muted
	s.Queued = p.queue.Count()
	s.Outstanding = p.seq.Outstanding()
	if p.current != nil {
		s.Current = p.current.ID
	}
	return s
}
