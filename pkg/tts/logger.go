package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"navvoice/pkg/model"
)

var (
	logPath = "logs/tts.log"
	mu      sync.RWMutex
)

// SetLogPath configures the path for the TTS log file. An empty path disables it.
func SetLogPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	logPath = path
}

// Log appends the synthesized text and outcome to the configured log file.
func Log(provider string, textType model.TextType, text string, size int, err error) {
	mu.Lock()
	defer mu.Unlock()
	if logPath == "" {
		return
	}

	_ = os.MkdirAll(filepath.Dir(logPath), 0o755)

	f, fileErr := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fileErr != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := fmt.Sprintf("OK(%d bytes)", size)
	if err != nil {
		status = fmt.Sprintf("ERROR(%v)", err)
	}

	// Format: [TIMESTAMP] [PROVIDER] [TYPE] STATUS | TEXT
	_, _ = fmt.Fprintf(f, "[%s] [%s] [%s] %s | %s\n", timestamp, provider, textType, status, text)
}
