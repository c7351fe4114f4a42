package api

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"navvoice/pkg/tracker"
)

// StatsHandler serves synthesis and pipeline counters.
type StatsHandler struct {
	tracker  *tracker.Tracker
	active   func() string // name of the engine currently serving fetches
	started  time.Time
	mu       sync.Mutex
	maxMemMB uint64
}

// NewStatsHandler creates a StatsHandler. active may be nil.
func NewStatsHandler(t *tracker.Tracker, active func() string) *StatsHandler {
	return &StatsHandler{
		tracker: t,
		active:  active,
		started: time.Now(),
	}
}

type ProviderStatsDTO struct {
	CacheHits    int64 `json:"cache_hits"`
	CacheMisses  int64 `json:"cache_misses"`
	APISuccess   int64 `json:"api_success"`
	APIFailures  int64 `json:"api_errors"`
	HitRate      int64 `json:"hit_rate"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
	BytesKB      int64 `json:"bytes_kb"`
}

type Diagnostics struct {
	UptimeSec   int64  `json:"uptime_sec"`
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
}

type StatsResponse struct {
	Diagnostics  Diagnostics                 `json:"diagnostics"`
	Pipeline     tracker.PipelineStats       `json:"pipeline"`
	Providers    map[string]ProviderStatsDTO `json:"providers"`
	ActiveEngine string                      `json:"active_engine,omitempty"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Pipeline:    h.tracker.Pipeline(),
		Providers:   make(map[string]ProviderStatsDTO),
	}
	if h.active != nil {
		resp.ActiveEngine = h.active()
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:    stats.CacheHits,
			CacheMisses:  stats.CacheMisses,
			APISuccess:   stats.APISuccess,
			APIFailures:  stats.APIFailures,
			HitRate:      hitRate,
			AvgLatencyMs: stats.AvgLatencyMs,
			BytesKB:      stats.BytesReceived / 1024,
		}
	}

	writeJSON(w, resp)
}

func (h *StatsHandler) gatherDiagnostics() Diagnostics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mem := bToMb(m.Sys)

	h.mu.Lock()
	if mem > h.maxMemMB {
		h.maxMemMB = mem
	}
	maxMem := h.maxMemMB
	h.mu.Unlock()

	return Diagnostics{
		UptimeSec:   int64(time.Since(h.started).Seconds()),
		MemoryMB:    mem,
		MemoryMaxMB: maxMem,
		Goroutines:  runtime.NumGoroutine(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
