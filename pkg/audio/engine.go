// Package audio plays materialized voice assets. Engine is the playback
// state machine; Speaker is the beep-backed output device it drives.
package audio

import (
	"errors"
	"log/slog"

	"navvoice/pkg/playback"
)

// State is the playback engine state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StatePlaying
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// ErrBusy is returned by Load when a decoder is already held.
var ErrBusy = errors.New("audio engine is busy")

// Backend opens asset files on the output device.
type Backend interface {
	// Open decodes the file and returns a track ready to start.
	Open(path string) (Track, error)
}

// Track is a single decoded asset held by the output device.
type Track interface {
	// Start begins output. onDone is called exactly once, from another
	// goroutine, when the stream ends naturally or fails mid-stream; it is
	// never called after Stop.
	Start(onDone func(err error))
	// Stop silences output immediately.
	Stop()
	// Close releases the decoder.
	Close() error
}

// Prepared is posted when an asynchronous Open finishes.
type Prepared struct {
	Gen   uint64
	Track Track
	Err   error
}

// Finished is posted when a started track reaches its end.
type Finished struct {
	Gen uint64
	Err error
}

// Engine drives Idle -> Preparing -> Playing -> Idle for one asset at a time.
// Asynchronous results are delivered through post and must be fed back via
// OnPrepared and OnFinished by the owner. post reports false once the owner
// has gone away. A generation counter makes results from a stopped asset harmless.
//
// Engine is not safe for concurrent use; it belongs to a single event loop.
type Engine struct {
	backend Backend
	post    func(any) bool

	state State
	gen   uint64
	asset playback.Asset
	track Track
}

// NewEngine creates an idle engine.
func NewEngine(b Backend, post func(any) bool) *Engine {
	return &Engine{
		backend: b,
		post:    post,
	}
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Active returns the asset being prepared or played.
func (e *Engine) Active() (playback.Asset, bool) {
	if e.state == StateIdle {
		return playback.Asset{}, false
	}
	return e.asset, true
}

// Load starts preparing a. Only valid while idle.
func (e *Engine) Load(a playback.Asset) error {
	if e.state != StateIdle {
		return ErrBusy
	}

	e.gen++
	gen := e.gen
	e.state = StatePreparing
	e.asset = a

	slog.Debug("Audio: Preparing asset", "seq", a.Seq, "path", a.Path)
	go func() {
		t, err := e.backend.Open(a.Path)
		if !e.post(Prepared{Gen: gen, Track: t, Err: err}) && t != nil {
			_ = t.Close()
		}
	}()
	return nil
}

// OnPrepared consumes a Prepared result. started is true when output began.
// A non-nil error means the asset could not be prepared and the engine is idle.
func (e *Engine) OnPrepared(p Prepared) (started bool, err error) {
	if p.Gen != e.gen || e.state != StatePreparing {
		// Stopped while the decoder was opening.
		if p.Track != nil {
			_ = p.Track.Close()
		}
		return false, nil
	}

	if p.Err != nil {
		e.state = StateIdle
		slog.Error("Audio: Failed to prepare asset", "path", e.asset.Path, "error", p.Err)
		return false, p.Err
	}

	e.track = p.Track
	e.state = StatePlaying
	gen := e.gen
	p.Track.Start(func(err error) {
		e.post(Finished{Gen: gen, Err: err})
	})
	slog.Debug("Audio: Playing asset", "seq", e.asset.Seq)
	return true, nil
}

// OnFinished consumes a Finished result. ok is false for stale results.
// On ok the decoder has been released and the engine is idle; err carries a
// mid-stream failure, if any.
func (e *Engine) OnFinished(f Finished) (a playback.Asset, ok bool, err error) {
	if f.Gen != e.gen || e.state != StatePlaying {
		return playback.Asset{}, false, nil
	}
	e.release()
	e.state = StateIdle
	return e.asset, true, f.Err
}

// Stop forces the engine idle and releases the decoder. wasPlaying reports
// whether audible output was interrupted. The asset file is left alone.
func (e *Engine) Stop() (wasPlaying bool) {
	switch e.state {
	case StateIdle:
		return false
	case StatePreparing:
		e.gen++
		e.state = StateIdle
		return false
	default:
		e.gen++
		if e.track != nil {
			e.track.Stop()
		}
		e.release()
		e.state = StateIdle
		slog.Debug("Audio: Playback stopped", "seq", e.asset.Seq)
		return true
	}
}

func (e *Engine) release() {
	if e.track == nil {
		return
	}
	if err := e.track.Close(); err != nil {
		slog.Warn("Audio: Failed to release decoder", "error", err)
	}
	e.track = nil
}
