package model

import "time"

// Playback outcomes recorded in the announcement history.
const (
	HistoryStarted  = "started"
	HistoryFinished = "finished"
	HistoryError    = "error"
)

// HistoryEntry is one recorded pipeline event for an announcement.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	AnnouncementID string    `json:"announcement_id"`
	Text           string    `json:"text"`
	Status         string    `json:"status"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
