package tts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"navvoice/pkg/model"
)

func TestLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tts.log")
	SetLogPath(path)
	t.Cleanup(func() { SetLogPath("logs/tts.log") })

	Log("mapbox", model.TextTypeSSML, "<speak>Turn left</speak>", 4096, nil)
	Log("edge-tts", model.TextTypePlain, "Turn right", 0, errors.New("dial failed"))

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[mapbox] [ssml] OK(4096 bytes)") {
		t.Errorf("unexpected first line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "ERROR(dial failed)") {
		t.Errorf("unexpected second line: %s", lines[1])
	}

	SetLogPath("")
	Log("mapbox", model.TextTypePlain, "ignored", 1, nil)
}
