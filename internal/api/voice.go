package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"navvoice/pkg/config"
	"navvoice/pkg/logging"
	"navvoice/pkg/model"
	"navvoice/pkg/store"
	"navvoice/pkg/voice"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// VoicePlayer is the part of voice.Player the API drives.
type VoicePlayer interface {
	Play(a *model.Announcement)
	SetMuted(muted bool)
	OnOffRoute()
	Status() voice.Status
}

// VoiceHandler handles the announcement pipeline endpoints.
type VoiceHandler struct {
	player  VoicePlayer
	cfg     config.Provider
	history store.HistoryStore
}

// NewVoiceHandler creates a new VoiceHandler. history may be nil.
func NewVoiceHandler(p VoicePlayer, cfg config.Provider, history store.HistoryStore) *VoiceHandler {
	return &VoiceHandler{
		player:  p,
		cfg:     cfg,
		history: history,
	}
}

// MuteRequest toggles mute.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// LanguageRequest changes the synthesis language.
type LanguageRequest struct {
	Language string `json:"language"`
}

// VoiceStatusResponse is the pipeline status plus display helpers.
type VoiceStatusResponse struct {
	voice.Status
	Language  string `json:"language"`
	LastEvent string `json:"last_event,omitempty"`
}

// HandleAnnounce handles POST /api/voice/announce
func (h *VoiceHandler) HandleAnnounce(w http.ResponseWriter, r *http.Request) {
	var a model.Announcement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if a.IsEmpty() {
		http.Error(w, "announcement has no text", http.StatusBadRequest)
		return
	}

	h.player.Play(&a)

	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "queued", "id": a.ID})
}

// HandleMute handles POST /api/voice/mute
func (h *VoiceHandler) HandleMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.player.SetMuted(req.Muted)

	// Persist so the next start keeps the choice
	if h.cfg != nil {
		if err := h.cfg.SetMuted(r.Context(), req.Muted); err != nil {
			slog.Error("Failed to persist mute", "error", err)
		}
	}

	writeJSON(w, map[string]any{"status": "ok", "muted": req.Muted})
}

// HandleOffRoute handles POST /api/voice/offroute
func (h *VoiceHandler) HandleOffRoute(w http.ResponseWriter, r *http.Request) {
	h.player.OnOffRoute()
	writeJSON(w, map[string]string{"status": "ok"})
}

// HandleLanguage handles POST /api/voice/language
func (h *VoiceHandler) HandleLanguage(w http.ResponseWriter, r *http.Request) {
	var req LanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if h.cfg == nil {
		http.Error(w, "settings unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := h.cfg.SetLanguage(r.Context(), req.Language); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "language": req.Language})
}

// HandleStatus handles GET /api/voice/status
func (h *VoiceHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := VoiceStatusResponse{
		Status:    h.player.Status(),
		LastEvent: logging.GlobalEventCapture.LastLine(),
	}
	if h.cfg != nil {
		resp.Language = h.cfg.Language(r.Context())
	}
	writeJSON(w, resp)
}

// HandleHistory handles GET /api/voice/history?limit=N
func (h *VoiceHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, []model.HistoryEntry{})
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.RecentHistory(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read history", "error", err)
		http.Error(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, entries)
}
