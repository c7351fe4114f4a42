package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"navvoice/pkg/model"
)

const eventTimeFormat = "2006-01-02 15:04:05"

var events struct {
	mu   sync.Mutex
	path string
}

// SetEventLogPath configures the event log file. An empty path disables it.
func SetEventLogPath(path string) {
	events.mu.Lock()
	defer events.mu.Unlock()
	events.path = path
}

// LogEvent appends one line to the event log:
//
//	[2006-01-02 15:04:05] [type] Title - Summary
func LogEvent(event *model.Event) {
	events.mu.Lock()
	defer events.mu.Unlock()

	if events.path == "" {
		return
	}

	line := formatEvent(event)
	if err := appendLine(events.path, line); err != nil {
		slog.Error("Failed to write event log", "path", events.path, "error", err)
	}
	_, _ = GlobalEventCapture.Write([]byte(line))
}

func formatEvent(event *model.Event) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s] %s", ts.Format(eventTimeFormat), event.Type, event.Title)
	if event.Summary != "" {
		line += " - " + event.Summary
	}
	return line
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
