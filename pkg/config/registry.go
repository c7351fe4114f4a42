package config

// Persistent state keys (Registry)
const (
	KeyVoiceMuted  = "voice_muted"
	KeyAudioVolume = "audio_volume"
	KeyLanguage    = "voice_language"
)
