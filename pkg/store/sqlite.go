package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"navvoice/pkg/db"
	"navvoice/pkg/model"
)

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	StateStore
	HistoryStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, db.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// --- History ---

func (s *SQLiteStore) AddHistory(ctx context.Context, e *model.HistoryEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := `INSERT INTO announcement_history (announcement_id, text, status, detail, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, e.AnnouncementID, e.Text, e.Status, e.Detail, e.CreatedAt.UTC().Format(db.TimeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// RecentHistory returns up to limit entries, newest first.
func (s *SQLiteStore) RecentHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	query := `SELECT id, announcement_id, text, status, COALESCE(detail, ''), strftime('%Y-%m-%d %H:%M:%S', created_at)
	          FROM announcement_history ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var created sql.NullString
		if err := rows.Scan(&e.ID, &e.AnnouncementID, &e.Text, &e.Status, &e.Detail, &created); err != nil {
			return nil, err
		}
		if created.Valid {
			if ts, err := time.Parse(db.TimeFormat, created.String); err == nil {
				e.CreatedAt = ts
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return entries, nil
}
