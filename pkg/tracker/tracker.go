// Package tracker counts per-provider synthesis traffic and pipeline outcomes.
package tracker

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tracker tracks usage statistics per provider plus pipeline-wide counters.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats

	pipeline PipelineStats
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIFailures   int64 `json:"api_failures"`
	BytesReceived int64 `json:"bytes_received"`
	LatencyNanos  int64 `json:"-"`
	// AvgLatencyMs is only filled in snapshots.
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// PipelineStats counts announcement outcomes.
type PipelineStats struct {
	Requested int64 `json:"requested"`
	Played    int64 `json:"played"`
	Dropped   int64 `json:"dropped"`
	Errors    int64 `json:"errors"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ProviderStats),
	}
}

// getStats returns the stats object for a provider, creating it if needed.
func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
}

// TrackAPISuccess records a completed call with its payload size and duration.
func (t *Tracker) TrackAPISuccess(provider string, bytes int, took time.Duration) {
	s := t.getStats(provider)
	atomic.AddInt64(&s.APISuccess, 1)
	atomic.AddInt64(&s.BytesReceived, int64(bytes))
	atomic.AddInt64(&s.LatencyNanos, int64(took))
}

func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIFailures, 1)
}

func (t *Tracker) TrackRequested() {
	atomic.AddInt64(&t.pipeline.Requested, 1)
}

func (t *Tracker) TrackPlayed() {
	atomic.AddInt64(&t.pipeline.Played, 1)
}

// TrackDropped counts announcements discarded by mute, off-route or shutdown.
func (t *Tracker) TrackDropped(n int) {
	atomic.AddInt64(&t.pipeline.Dropped, int64(n))
}

func (t *Tracker) TrackError() {
	atomic.AddInt64(&t.pipeline.Errors, 1)
}

// Snapshot returns a copy of the current provider stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats)
	for k, v := range t.stats {
		s := ProviderStats{
			CacheHits:     atomic.LoadInt64(&v.CacheHits),
			CacheMisses:   atomic.LoadInt64(&v.CacheMisses),
			APISuccess:    atomic.LoadInt64(&v.APISuccess),
			APIFailures:   atomic.LoadInt64(&v.APIFailures),
			BytesReceived: atomic.LoadInt64(&v.BytesReceived),
			LatencyNanos:  atomic.LoadInt64(&v.LatencyNanos),
		}
		if s.APISuccess > 0 {
			s.AvgLatencyMs = time.Duration(s.LatencyNanos / s.APISuccess).Milliseconds()
		}
		result[k] = s
	}
	return result
}

// Pipeline returns a copy of the pipeline counters.
func (t *Tracker) Pipeline() PipelineStats {
	return PipelineStats{
		Requested: atomic.LoadInt64(&t.pipeline.Requested),
		Played:    atomic.LoadInt64(&t.pipeline.Played),
		Dropped:   atomic.LoadInt64(&t.pipeline.Dropped),
		Errors:    atomic.LoadInt64(&t.pipeline.Errors),
	}
}
