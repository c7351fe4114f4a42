package audio

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// DecodeMedia opens an audio file, trying MP3 first and WAV second.
// The returned streamer owns the file handle.
func DecodeMedia(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("cannot read file %s: %w", path, err)
	}

	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}

	// Reopen for the WAV attempt, the MP3 decoder may have consumed the header.
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("cannot read file %s: %w", path, err)
	}

	streamer, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		slog.Error("Audio: Failed to decode file", "path", path, "error", err)
		return nil, beep.Format{}, fmt.Errorf("unsupported audio in %s: %w", path, err)
	}
	return streamer, format, nil
}
