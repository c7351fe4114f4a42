// Package tts turns announcement text into speech audio through remote engines.
package tts

import (
	"context"
	"errors"

	"navvoice/pkg/model"
)

// LanguageProvider allows providers to read the current voice language dynamically,
// so a language change takes effect without restart.
type LanguageProvider interface {
	Language(ctx context.Context) string
}

// StaticLanguage is a LanguageProvider with a fixed language.
type StaticLanguage string

func (s StaticLanguage) Language(ctx context.Context) string { return string(s) }

// Fetcher turns text into an encoded audio payload (MP3).
type Fetcher interface {
	Fetch(ctx context.Context, text string, textType model.TextType) ([]byte, error)
}

// ErrEmptyAudio is returned when an engine answers without audio data.
var ErrEmptyAudio = errors.New("engine returned no audio")

// FatalError represents a TTS error that should trigger fallback to another provider.
// Examples: rate limits (429), server errors (5xx), auth failures (401/403).
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	return e.Message
}

// NewFatalError creates a new FatalError with the given status code and message.
func NewFatalError(statusCode int, message string) *FatalError {
	return &FatalError{StatusCode: statusCode, Message: message}
}

// IsFatalError checks if an error is a TTS fatal error that should trigger fallback.
func IsFatalError(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsFatalStatus reports whether an HTTP status means the engine cannot serve us for now.
func IsFatalStatus(code int) bool {
	return code == 401 || code == 403 || code == 429 || code >= 500
}
