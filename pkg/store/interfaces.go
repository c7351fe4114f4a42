package store

import (
	"context"

	"navvoice/pkg/model"
)

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// HistoryStore records what the pipeline did with each announcement.
type HistoryStore interface {
	AddHistory(ctx context.Context, e *model.HistoryEntry) error
	RecentHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error)
}
