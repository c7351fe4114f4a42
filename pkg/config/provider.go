package config

import (
	"context"
	"fmt"
	"strconv"

	"navvoice/pkg/store"
)

// Provider defines the interface for accessing settings that can change at runtime.
type Provider interface {
	Muted(ctx context.Context) bool
	SetMuted(ctx context.Context, muted bool) error
	Volume(ctx context.Context) float64
	SetVolume(ctx context.Context, vol float64) error
	Language(ctx context.Context) string
	SetLanguage(ctx context.Context, lang string) error

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
// Values written at runtime survive restarts; the YAML file stays untouched.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

func (p *UnifiedProvider) Muted(ctx context.Context) bool {
	return p.getBool(ctx, KeyVoiceMuted, p.base.Voice.Muted)
}

func (p *UnifiedProvider) SetMuted(ctx context.Context, muted bool) error {
	return p.set(ctx, KeyVoiceMuted, strconv.FormatBool(muted))
}

func (p *UnifiedProvider) Volume(ctx context.Context) float64 {
	v := p.getFloat64(ctx, KeyAudioVolume, p.base.Audio.Volume)
	if v < 0 || v > 1 {
		return p.base.Audio.Volume
	}
	return v
}

func (p *UnifiedProvider) SetVolume(ctx context.Context, vol float64) error {
	return p.set(ctx, KeyAudioVolume, strconv.FormatFloat(vol, 'f', -1, 64))
}

func (p *UnifiedProvider) Language(ctx context.Context) string {
	lang := p.getString(ctx, KeyLanguage, p.base.Voice.Language)
	if !isValidLocale(lang) {
		return p.base.Voice.Language
	}
	return lang
}

// SetLanguage persists the voice language. It must look like "en-US".
func (p *UnifiedProvider) SetLanguage(ctx context.Context, lang string) error {
	if !isValidLocale(lang) {
		return fmt.Errorf("invalid voice language '%s': must be 'xx-YY'", lang)
	}
	return p.set(ctx, KeyLanguage, lang)
}

// --- Helpers ---

func (p *UnifiedProvider) set(ctx context.Context, key, val string) error {
	if p.store == nil {
		return nil
	}
	return p.store.SetState(ctx, key, val)
}

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}
