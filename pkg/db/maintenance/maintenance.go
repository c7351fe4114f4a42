// Package maintenance keeps the database small between runs.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"navvoice/pkg/db"
	"navvoice/pkg/store"
)

const lastRunStateKey = "maintenance_last_run"

// Options controls what Run keeps.
type Options struct {
	CacheTTL     time.Duration // cached audio older than this is deleted; 0 keeps everything
	HistoryLimit int           // newest history rows kept; 0 keeps everything
	Interval     time.Duration // minimum time between two runs
}

// Run prunes the audio cache and trims the announcement history, at most
// once per Interval. It blocks until completion. Pruning failures are logged;
// only failing to record the run is returned.
func Run(ctx context.Context, s store.StateStore, d *db.DB, opts Options) error {
	now := time.Now().UTC()
	if !isDue(ctx, s, now, opts.Interval) {
		slog.Debug("Maintenance: Skipped, ran recently")
		return nil
	}

	slog.Info("Starting database maintenance...")

	if opts.CacheTTL > 0 {
		if n, err := d.PruneCache(opts.CacheTTL); err != nil {
			slog.Error("Cache pruning failed", "error", err)
		} else {
			slog.Info("Cache pruning completed", "removed", n)
		}
	}

	if opts.HistoryLimit > 0 {
		if n, err := d.TrimHistory(opts.HistoryLimit); err != nil {
			slog.Error("History trim failed", "error", err)
		} else {
			slog.Info("History trim completed", "removed", n)
		}
	}

	return s.SetState(ctx, lastRunStateKey, now.Format(time.RFC3339))
}

func isDue(ctx context.Context, s store.StateStore, now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	stored, found := s.GetState(ctx, lastRunStateKey)
	if !found {
		return true
	}
	last, err := time.Parse(time.RFC3339, stored)
	if err != nil || last.After(now) {
		slog.Warn("Maintenance: Ignoring unusable last run", "value", stored)
		return true
	}
	return now.Sub(last) >= interval
}
