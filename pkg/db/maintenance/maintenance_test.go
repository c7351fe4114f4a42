package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"navvoice/pkg/db"
	"navvoice/pkg/store"
)

func setup(t *testing.T) (*db.DB, *store.SQLiteStore) {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, store.NewSQLiteStore(d)
}

func count(t *testing.T, d *db.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := d.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func TestMaintenance(t *testing.T) {
	d, s := setup(t)
	ctx := context.Background()

	// Insert old entry (40 days old)
	oldDeadline := time.Now().Add(-40 * 24 * time.Hour).UTC().Format(db.TimeFormat)
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "old-key", []byte("old-val"), oldDeadline); err != nil {
		t.Fatal(err)
	}
	// Insert new entry (1 day old)
	newDeadline := time.Now().Add(-1 * 24 * time.Hour).UTC().Format(db.TimeFormat)
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "new-key", []byte("new-val"), newDeadline); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := d.Exec("INSERT INTO announcement_history (announcement_id, text, status) VALUES (?, ?, ?)", "a", "Turn left", "finished"); err != nil {
			t.Fatal(err)
		}
	}

	opts := Options{CacheTTL: 30 * 24 * time.Hour, HistoryLimit: 2, Interval: time.Hour}
	if err := Run(ctx, s, d, opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if n := count(t, d, "SELECT count(*) FROM cache WHERE key = ?", "old-key"); n != 0 {
		t.Error("Old cache entry was not pruned")
	}
	if n := count(t, d, "SELECT count(*) FROM cache WHERE key = ?", "new-key"); n != 1 {
		t.Error("New cache entry was incorrectly pruned")
	}
	if n := count(t, d, "SELECT count(*) FROM announcement_history"); n != 2 {
		t.Errorf("expected 2 history rows, got %d", n)
	}
	if _, found := s.GetState(ctx, lastRunStateKey); !found {
		t.Error("State not updated after maintenance")
	}

	// A second run within the interval does nothing.
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "old-2", []byte("x"), oldDeadline); err != nil {
		t.Fatal(err)
	}
	if err := Run(ctx, s, d, opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := count(t, d, "SELECT count(*) FROM cache WHERE key = ?", "old-2"); n != 1 {
		t.Error("maintenance should have been skipped")
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		stored   string
		interval time.Duration
		want     bool
	}{
		{name: "Never Ran", stored: "", interval: time.Hour, want: true},
		{name: "No Interval", stored: now.Format(time.RFC3339), interval: 0, want: true},
		{name: "Ran Recently", stored: now.Add(-10 * time.Minute).Format(time.RFC3339), interval: time.Hour, want: false},
		{name: "Interval Elapsed", stored: now.Add(-2 * time.Hour).Format(time.RFC3339), interval: time.Hour, want: true},
		{name: "Garbage", stored: "yesterday", interval: time.Hour, want: true},
		{name: "Future", stored: now.Add(time.Hour).Format(time.RFC3339), interval: time.Hour, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s := setup(t)
			ctx := context.Background()
			if tt.stored != "" {
				if err := s.SetState(ctx, lastRunStateKey, tt.stored); err != nil {
					t.Fatal(err)
				}
			}
			if got := isDue(ctx, s, now, tt.interval); got != tt.want {
				t.Errorf("isDue() = %v, want %v", got, tt.want)
			}
		})
	}
}
