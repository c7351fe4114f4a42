package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"navvoice/pkg/logging"
	"navvoice/pkg/model"
	"navvoice/pkg/store"
)

const journalBacklog = 64

// EventLog receives the controller's own events (mute, off-route, shutdown).
type EventLog interface {
	RecordEvent(e *model.Event)
}

// Journal is a Listener and EventLog that records playback events in the
// history store and the event log. Both writes happen on its own goroutine,
// so the player loop never waits on the disk.
type Journal struct {
	st    store.HistoryStore
	items chan journalItem
	done  chan struct{}
	once  sync.Once
}

// journalItem is one event log line, optionally backed by a history row.
type journalItem struct {
	event model.Event
	entry *model.HistoryEntry
}

// NewJournal starts a journal writing to st. Call Close to flush pending writes.
func NewJournal(st store.HistoryStore) *Journal {
	j := &Journal{
		st:    st,
		items: make(chan journalItem, journalBacklog),
		done:  make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *Journal) OnPlaybackStarted(a *model.Announcement) {
	j.record(a, model.HistoryStarted, "")
}

func (j *Journal) OnPlaybackFinished(a *model.Announcement) {
	j.record(a, model.HistoryFinished, "")
}

func (j *Journal) OnError(err error, a *model.Announcement) {
	j.record(a, model.HistoryError, err.Error())
}

// RecordEvent queues e for the event log only.
func (j *Journal) RecordEvent(e *model.Event) {
	j.push(journalItem{event: *e})
}

// Close stops accepting entries and waits until the backlog is written.
// The player feeding the journal must be shut down first.
func (j *Journal) Close() {
	j.once.Do(func() { close(j.items) })
	<-j.done
}

func (j *Journal) record(a *model.Announcement, status, detail string) {
	e := &model.HistoryEntry{
		Status:    status,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if a != nil {
		e.AnnouncementID = a.ID
		e.Text = a.Label()
	}

	j.push(journalItem{
		event: model.Event{
			Timestamp: e.CreatedAt,
			Type:      status,
			Title:     e.Text,
			Summary:   detail,
		},
		entry: e,
	})
}

func (j *Journal) push(it journalItem) {
	select {
	case j.items <- it:
	default:
		slog.Warn("Journal: Backlog full, dropping event", "type", it.event.Type, "title", it.event.Title)
	}
}

func (j *Journal) run() {
	defer close(j.done)
	for it := range j.items {
		logging.LogEvent(&it.event)
		if it.entry == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := j.st.AddHistory(ctx, it.entry); err != nil {
			slog.Warn("Journal: Failed to store history entry", "id", it.entry.AnnouncementID, "error", err)
		}
		cancel()
	}
}
