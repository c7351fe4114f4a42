package voice

import (
	"errors"

	"navvoice/pkg/model"
)

// Error kinds reported through Listener.OnError. Use errors.Is to classify.
var (
	ErrFetch       = errors.New("voice fetch failed")
	ErrMaterialize = errors.New("voice asset write failed")
	ErrPrepare     = errors.New("voice asset prepare failed")
	ErrPlayback    = errors.New("voice playback failed")
)

// Listener receives pipeline events. Calls are made from the player's event
// loop: they must return quickly and must not call back into the Player.
type Listener interface {
	OnPlaybackStarted(a *model.Announcement)
	OnPlaybackFinished(a *model.Announcement)
	OnError(err error, a *model.Announcement)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnPlaybackStarted(*model.Announcement)  {}
func (NopListener) OnPlaybackFinished(*model.Announcement) {}
func (NopListener) OnError(error, *model.Announcement)     {}

// Listeners fans events out in order.
type Listeners []Listener

func (ls Listeners) OnPlaybackStarted(a *model.Announcement) {
	for _, l := range ls {
		l.OnPlaybackStarted(a)
	}
}

func (ls Listeners) OnPlaybackFinished(a *model.Announcement) {
	for _, l := range ls {
		l.OnPlaybackFinished(a)
	}
}

func (ls Listeners) OnError(err error, a *model.Announcement) {
	for _, l := range ls {
		l.OnError(err, a)
	}
}
