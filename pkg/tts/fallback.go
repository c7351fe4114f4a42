package tts

import (
	"context"
	"log/slog"
	"sync/atomic"

	"navvoice/pkg/model"
)

// Fallback serves requests from the primary engine until it reports a
// FatalError, then switches to the secondary for the rest of the session.
// The failing request is retried on the secondary.
type Fallback struct {
	primary, secondary         Fetcher
	primaryName, secondaryName string
	switched                   atomic.Bool
}

// NewFallback creates a Fallback. A nil secondary disables switching.
func NewFallback(primaryName string, primary Fetcher, secondaryName string, secondary Fetcher) *Fallback {
	return &Fallback{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
	}
}

// Fetch implements Fetcher.
func (f *Fallback) Fetch(ctx context.Context, text string, textType model.TextType) ([]byte, error) {
	if f.switched.Load() {
		return f.secondary.Fetch(ctx, text, textType)
	}

	data, err := f.primary.Fetch(ctx, text, textType)
	if err == nil || f.secondary == nil || !IsFatalError(err) {
		return data, err
	}

	if f.switched.CompareAndSwap(false, true) {
		slog.Warn("TTS: Switching to fallback engine", "from", f.primaryName, "to", f.secondaryName, "error", err)
	}
	return f.secondary.Fetch(ctx, text, textType)
}

// Active returns the name of the engine currently serving requests.
func (f *Fallback) Active() string {
	if f.switched.Load() {
		return f.secondaryName
	}
	return f.primaryName
}
