// Package edgetts fetches speech from the Microsoft Edge read-aloud service.
package edgetts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"navvoice/pkg/model"
	"navvoice/pkg/tracker"
	"navvoice/pkg/tts"
)

const name = "edge-tts"

// DefaultTimeout bounds a whole synthesis round trip when none is configured.
const DefaultTimeout = 10 * time.Second

// Provider implements tts.Fetcher for Microsoft Edge TTS.
// Connection parameters come from EDGE_TTS_* environment variables.
type Provider struct {
	tracker *tracker.Tracker
	voice   string
	lang    tts.LanguageProvider
	timeout time.Duration
}

// NewProvider creates a new Edge TTS provider. Each Fetch gives up after
// timeout, or DefaultTimeout when timeout is not positive.
func NewProvider(t *tracker.Tracker, voice string, lang tts.LanguageProvider, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Provider{tracker: t, voice: voice, lang: lang, timeout: timeout}
}

// Fetch implements tts.Fetcher. Markup is reduced to plain text and wrapped
// in the service's own SSML envelope.
func (p *Provider) Fetch(ctx context.Context, text string, textType model.TextType) ([]byte, error) {
	if p.voice == "" {
		return nil, fmt.Errorf("voice ID is required")
	}
	if textType == model.TextTypeSSML {
		text = tts.PlainText(text)
	}

	start := time.Now()
	data, err := p.synthesize(ctx, text)
	tts.Log(name, textType, text, len(data), err)
	if err != nil {
		if p.tracker != nil {
			p.tracker.TrackAPIFailure(name)
		}
		return nil, err
	}
	if p.tracker != nil {
		p.tracker.TrackAPISuccess(name, len(data), time.Since(start))
	}
	return data, nil
}

func (p *Provider) synthesize(ctx context.Context, text string) ([]byte, error) {
	// A server that accepts the socket but never sends turn.end must not
	// hold the caller forever.
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := p.sendConfig(conn); err != nil {
		return nil, err
	}

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := p.sendSSML(conn, p.lang.Language(ctx), text, requestID); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := p.consumeResponses(ctx, conn, &buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("edge-tts: %w", tts.ErrEmptyAudio)
	}
	return buf.Bytes(), nil
}

func requiredEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return v, nil
}

func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	edgeOrigin, err := requiredEnv("EDGE_TTS_ORIGIN")
	if err != nil {
		return nil, err
	}
	userAgent, err := requiredEnv("EDGE_TTS_USER_AGENT")
	if err != nil {
		return nil, err
	}
	trustedClientToken, err := requiredEnv("EDGE_TTS_TRUSTED_CLIENT_TOKEN")
	if err != nil {
		return nil, err
	}
	version, err := requiredEnv("EDGE_TTS_SEC_MS_GEC_VERSION")
	if err != nil {
		return nil, err
	}
	edgeBaseURL, err := requiredEnv("EDGE_TTS_BASE_URL")
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Origin", edgeOrigin)
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")
	header.Set("User-Agent", userAgent)
	header.Set("Accept-Language", "en-US,en;q=0.9")

	muid := strings.ReplaceAll(uuid.New().String(), "-", "")
	header.Set("Cookie", fmt.Sprintf("muid=%s", muid))

	url := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s",
		edgeBaseURL, trustedClientToken, generateSecMSGec(trustedClientToken, time.Now()), version)

	var dialErr error
	for i := 0; i < 3; i++ {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, nil
		}
		dialErr = err
		if resp != nil {
			slog.Warn("EdgeTTS: Handshake failed", "status_code", resp.StatusCode)
			if tts.IsFatalStatus(resp.StatusCode) {
				return nil, tts.NewFatalError(resp.StatusCode, fmt.Sprintf("edge-tts: handshake rejected with status %d", resp.StatusCode))
			}
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("websocket dial failed after retries: %w", dialErr)
}

// generateSecMSGec derives the rolling access token: Windows file-time ticks
// rounded down to five minutes, hashed with the client token.
func generateSecMSGec(trustedClientToken string, now time.Time) string {
	ticks := float64(now.Unix()) + 11644473600
	ticks -= float64(int64(ticks) % 300)
	ticks *= 1e7

	hash := sha256.Sum256([]byte(fmt.Sprintf("%.0f%s", ticks, trustedClientToken)))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

func (p *Provider) sendConfig(conn *websocket.Conn) error {
	configMsg := "Content-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n{\"context\":{\"synthesis\":{\"audio\":{\"metadataoptions\":{\"sentenceBoundaryEnabled\":\"false\",\"wordBoundaryEnabled\":\"false\"},\"outputFormat\":\"audio-24khz-48kbitrate-mono-mp3\"}}}}"
	if err := conn.WriteMessage(websocket.TextMessage, []byte(configMsg)); err != nil {
		return fmt.Errorf("failed to send speech.config: %w", err)
	}
	return nil
}

func (p *Provider) sendSSML(conn *websocket.Conn, language, text, requestID string) error {
	ssml := buildSSML(p.voice, language, text)
	ssmlMsg := fmt.Sprintf("X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nPath:ssml\r\n\r\n%s", requestID, ssml)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(ssmlMsg)); err != nil {
		return fmt.Errorf("failed to send ssml: %w", err)
	}
	return nil
}

func buildSSML(voice, language, text string) string {
	if language == "" {
		language = "en-US"
	}
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'><voice name='%s'>%s</voice></speak>",
		language, voice, replacer.Replace(text))
}

func (p *Provider) consumeResponses(ctx context.Context, conn *websocket.Conn, buf *bytes.Buffer) error {
	deadline, _ := ctx.Deadline()
	for {
		_ = conn.SetReadDeadline(deadline)
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("edge-tts: %w", ctx.Err())
			}
			return fmt.Errorf("read message failed: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				return nil
			}
		case websocket.BinaryMessage:
			handleBinaryMessage(data, buf)
		}
	}
}

// handleBinaryMessage strips the 2-byte length-prefixed header and keeps the audio.
func handleBinaryMessage(data []byte, buf *bytes.Buffer) {
	if len(data) < 2 {
		return
	}
	headerLength := int(uint16(data[0])<<8 | uint16(data[1]))
	if len(data) < 2+headerLength {
		return
	}
	buf.Write(data[2+headerLength:])
}
