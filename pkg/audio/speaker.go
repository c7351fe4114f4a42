package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"navvoice/pkg/config"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

const resampleQuality = 3

// Speaker is a Backend writing to the system audio device through beep.
// The device is initialized lazily on the first Open.
type Speaker struct {
	mu          sync.Mutex
	sampleRate  beep.SampleRate
	buffer      time.Duration
	initialized bool
	volume      float64
	live        *speakerTrack
}

// NewSpeaker creates a speaker backend from the audio configuration.
func NewSpeaker(cfg *config.AudioConfig) *Speaker {
	s := &Speaker{
		sampleRate: beep.SampleRate(48000),
		buffer:     100 * time.Millisecond,
		volume:     1.0,
	}
	if cfg != nil {
		if cfg.SampleRate > 0 {
			s.sampleRate = beep.SampleRate(cfg.SampleRate)
		}
		if cfg.Buffer > 0 {
			s.buffer = time.Duration(cfg.Buffer)
		}
		s.volume = clampVolume(cfg.Volume)
	}
	return s
}

// Open decodes the file at path and prepares it for output.
func (s *Speaker) Open(path string) (Track, error) {
	streamer, format, err := DecodeMedia(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		if err := speaker.Init(s.sampleRate, s.sampleRate.N(s.buffer)); err != nil {
			streamer.Close()
			slog.Error("Audio: Failed to initialize speaker", "error", err)
			return nil, fmt.Errorf("speaker init: %w", err)
		}
		s.initialized = true
	}

	return &speakerTrack{owner: s, streamer: streamer, format: format}, nil
}

// SetVolume sets the playback volume (0.0 to 1.0), including the live track.
func (s *Speaker) SetVolume(vol float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = clampVolume(vol)
	if s.live != nil && s.live.vol != nil {
		speaker.Lock()
		s.live.vol.Volume = volumeToPower(s.volume)
		s.live.vol.Silent = s.volume <= silentBelow
		speaker.Unlock()
	}
}

// Volume returns the current volume level.
func (s *Speaker) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

type speakerTrack struct {
	owner    *Speaker
	streamer beep.StreamSeekCloser
	format   beep.Format
	vol      *effects.Volume
	ctrl     *beep.Ctrl

	mu      sync.Mutex
	stopped bool
	closed  bool
}

func (t *speakerTrack) Start(onDone func(err error)) {
	s := t.owner
	s.mu.Lock()
	resampled := beep.Resample(resampleQuality, t.format.SampleRate, s.sampleRate, t.streamer)
	t.vol = &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(s.volume),
		Silent:   s.volume <= silentBelow,
	}
	t.ctrl = &beep.Ctrl{Streamer: t.vol}
	s.live = t
	s.mu.Unlock()

	speaker.Play(beep.Seq(t.ctrl, beep.Callback(func() {
		// Leave the speaker goroutine before reporting back.
		go func() {
			t.mu.Lock()
			stopped := t.stopped
			t.mu.Unlock()
			if stopped {
				return
			}
			onDone(t.streamer.Err())
		}()
	})))
}

func (t *speakerTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	if t.ctrl == nil {
		return
	}
	// A nil streamer makes the sequence end on the next buffer fill.
	speaker.Lock()
	t.ctrl.Streamer = nil
	speaker.Unlock()
}

func (t *speakerTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	s := t.owner
	s.mu.Lock()
	if s.live == t {
		s.live = nil
	}
	s.mu.Unlock()
	return t.streamer.Close()
}
