package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Voice   VoiceConfig   `yaml:"voice"`
	TTS     TTSConfig     `yaml:"tts"`
	Request RequestConfig `yaml:"request"`
	Audio   AudioConfig   `yaml:"audio"`
	Route   RouteConfig   `yaml:"route"`
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
	Server  ServerConfig  `yaml:"server"`
}

// VoiceConfig holds settings for the announcement pipeline.
type VoiceConfig struct {
	CacheDir string `yaml:"cache_dir"` // parent of instruction_cache
	Language string `yaml:"language"`
	Muted    bool   `yaml:"muted"` // initial mute state, overridden by persisted state
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// MapboxConfig holds settings for the Mapbox Voice API.
type MapboxConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"` // falls back to MAPBOX_ACCESS_TOKEN
}

// EdgeTTSConfig holds settings for Edge TTS.
type EdgeTTSConfig struct {
	VoiceID string `yaml:"voice"` // e.g. "en-US-AvaMultilingualNeural"
}

// TTSConfig holds Text-To-Speech settings.
type TTSConfig struct {
	Engine   string        `yaml:"engine"`
	Fallback string        `yaml:"fallback"` // secondary engine, empty disables
	CacheTTL Duration      `yaml:"cache_ttl"`
	Mapbox   MapboxConfig  `yaml:"mapbox"`
	EdgeTTS  EdgeTTSConfig `yaml:"edge_tts"`
}

// AudioConfig holds output device settings.
type AudioConfig struct {
	Volume     float64  `yaml:"volume"`
	SampleRate int      `yaml:"sample_rate"`
	Buffer     Duration `yaml:"buffer"`
}

// RouteConfig holds settings for route replay.
type RouteConfig struct {
	File              string   `yaml:"file"`
	OffRouteThreshold Distance `yaml:"off_route_threshold"`
	Speed             float64  `yaml:"speed_mps"`
	Tick              Duration `yaml:"tick"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
	TTS      LogSettings `yaml:"tts"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path                string   `yaml:"path"`
	HistoryLimit        int      `yaml:"history_limit"`
	MaintenanceInterval Duration `yaml:"maintenance_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// Engine names accepted by tts.engine and tts.fallback.
const (
	EngineMapbox  = "mapbox"
	EngineEdgeTTS = "edge-tts"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Voice: VoiceConfig{
			CacheDir: "./data",
			Language: "en-US",
		},
		TTS: TTSConfig{
			Engine:   EngineMapbox,
			Fallback: EngineEdgeTTS,
			CacheTTL: Duration(30 * Day),
			Mapbox: MapboxConfig{
				BaseURL: "https://api.mapbox.com",
			},
			EdgeTTS: EdgeTTSConfig{
				VoiceID: "en-US-AvaMultilingualNeural",
			},
		},
		Request: RequestConfig{
			Retries: 0,
			Timeout: Duration(10 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(5 * time.Second),
			},
		},
		Audio: AudioConfig{
			Volume:     1.0,
			SampleRate: 48000,
			Buffer:     Duration(100 * time.Millisecond),
		},
		Route: RouteConfig{
			OffRouteThreshold: Distance(50),
			Speed:             15,
			Tick:              Duration(1 * time.Second),
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
			TTS: LogSettings{
				Path:  "./logs/tts.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:                "./data/navvoice.db",
			HistoryLimit:        1000,
			MaintenanceInterval: Duration(24 * time.Hour),
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Secrets come from the environment when the file leaves them empty.
	if cfg.TTS.Mapbox.Token == "" {
		if token := os.Getenv("MAPBOX_ACCESS_TOKEN"); token != "" {
			cfg.TTS.Mapbox.Token = token
		}
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandPaths resolves $VAR references in file paths. The file on disk keeps the raw form.
func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Voice.CacheDir,
		&c.Route.File,
		&c.DB.Path,
		&c.Log.Server.Path,
		&c.Log.Requests.Path,
		&c.Log.Events.Path,
		&c.Log.TTS.Path,
	} {
		*p = os.ExpandEnv(*p)
	}
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if !isValidLocale(c.Voice.Language) {
		return fmt.Errorf("invalid voice language '%s': must be 'xx-YY' (e.g. 'en-US', 'de-DE')", c.Voice.Language)
	}
	if !isKnownEngine(c.TTS.Engine) {
		return fmt.Errorf("unknown tts engine '%s'", c.TTS.Engine)
	}
	if c.TTS.Fallback != "" && !isKnownEngine(c.TTS.Fallback) {
		return fmt.Errorf("unknown tts fallback engine '%s'", c.TTS.Fallback)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("audio volume %.2f out of range [0, 1]", c.Audio.Volume)
	}
	if c.Request.Retries < 0 {
		return fmt.Errorf("request retries must not be negative")
	}
	return nil
}

func isKnownEngine(name string) bool {
	return name == EngineMapbox || name == EngineEdgeTTS
}

func isValidLocale(s string) bool {
	matched, _ := regexp.MatchString(`^[a-z]{2}-[A-Z]{2}$`, s)
	return matched
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# navvoice Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	reEngine := regexp.MustCompile(`(?m)^(\s+)engine:`)
	data = reEngine.ReplaceAll(data, []byte("${1}# Options: mapbox, edge-tts\n${1}engine:"))

	reToken := regexp.MustCompile(`(?m)^(\s+)token:`)
	data = reToken.ReplaceAll(data, []byte("${1}# Leave empty to use MAPBOX_ACCESS_TOKEN\n${1}token:"))

	reRetries := regexp.MustCompile(`(?m)^(\s+)retries:`)
	data = reRetries.ReplaceAll(data, []byte("${1}# Retries for 429/5xx responses, 0 reports the first failure\n${1}retries:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
