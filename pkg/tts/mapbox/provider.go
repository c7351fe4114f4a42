// Package mapbox fetches speech from the Mapbox Voice API.
package mapbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"navvoice/pkg/config"
	"navvoice/pkg/model"
	"navvoice/pkg/request"
	"navvoice/pkg/tts"
)

const name = "mapbox"

// Provider implements tts.Fetcher for the Mapbox Voice API.
type Provider struct {
	client  *request.Client
	baseURL string
	token   string
	lang    tts.LanguageProvider
}

// NewProvider creates a new Mapbox provider.
func NewProvider(client *request.Client, cfg config.MapboxConfig, lang tts.LanguageProvider) *Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.mapbox.com"
	}
	return &Provider{
		client:  client,
		baseURL: base,
		token:   cfg.Token,
		lang:    lang,
	}
}

// Fetch implements tts.Fetcher.
func (p *Provider) Fetch(ctx context.Context, text string, textType model.TextType) ([]byte, error) {
	if p.token == "" {
		return nil, tts.NewFatalError(401, "mapbox: access token missing")
	}
	if textType == "" {
		textType = model.TextTypePlain
	}
	language := p.lang.Language(ctx)

	body, err := p.client.Get(ctx, p.speakURL(text, textType, language), cacheKey(text, textType, language))
	tts.Log(name, textType, text, len(body), err)
	if err != nil {
		return nil, translateError(err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("mapbox: %w", tts.ErrEmptyAudio)
	}
	return body, nil
}

func (p *Provider) speakURL(text string, textType model.TextType, language string) string {
	q := url.Values{}
	q.Set("textType", string(textType))
	q.Set("language", language)
	q.Set("outputFormat", "mp3")
	q.Set("access_token", p.token)
	return fmt.Sprintf("%s/voice/v1/speak/%s?%s", p.baseURL, url.PathEscape(text), q.Encode())
}

// cacheKey excludes the token so rotating it keeps cached audio valid.
func cacheKey(text string, textType model.TextType, language string) string {
	h := sha256.Sum256([]byte(string(textType) + "|" + language + "|" + text))
	return "mapbox:" + hex.EncodeToString(h[:16])
}

// translateError surfaces the API's own message and marks statuses that
// should move traffic to the fallback engine.
func translateError(err error) error {
	var se *request.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("mapbox: %w", err)
	}

	msg := se.Body
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(se.Body), &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("status %d", se.Code)
	}

	if tts.IsFatalStatus(se.Code) {
		return tts.NewFatalError(se.Code, "mapbox: "+msg)
	}
	return fmt.Errorf("mapbox: %s: %w", msg, err)
}
