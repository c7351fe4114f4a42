package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"navvoice/pkg/config"
)

// VolumeControl is the output device volume.
type VolumeControl interface {
	SetVolume(vol float64)
	Volume() float64
}

// AudioHandler handles audio output endpoints.
type AudioHandler struct {
	audio VolumeControl
	cfg   config.Provider
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(audio VolumeControl, cfg config.Provider) *AudioHandler {
	return &AudioHandler{
		audio: audio,
		cfg:   cfg,
	}
}

// AudioVolumeRequest represents a volume change request.
type AudioVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// AudioStatusResponse represents the audio status.
type AudioStatusResponse struct {
	Volume float64 `json:"volume"`
}

// HandleVolume handles POST /api/audio/volume
func (h *AudioHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req AudioVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Volume < 0 || req.Volume > 1 {
		http.Error(w, "volume must be between 0 and 1", http.StatusBadRequest)
		return
	}

	h.audio.SetVolume(req.Volume)

	// Persist volume
	if h.cfg != nil {
		if err := h.cfg.SetVolume(r.Context(), req.Volume); err != nil {
			slog.Error("Failed to persist volume", "error", err)
		}
	}

	writeJSON(w, map[string]any{
		"status": "ok",
		"volume": h.audio.Volume(),
	})
}

// HandleStatus handles GET /api/audio/status
func (h *AudioHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, AudioStatusResponse{Volume: h.audio.Volume()})
}
