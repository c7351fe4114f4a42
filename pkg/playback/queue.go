// Package playback holds the on-disk audio assets waiting to be spoken:
// the value handles, the FIFO queue that orders them, the sequencer that
// restores arrival order for out-of-order fetches, and the materializer
// that owns the cache directory.
package playback

import (
	"log/slog"
	"sync"
)

// Asset is a materialized audio file plus its position in arrival order.
type Asset struct {
	Seq            uint64
	Path           string
	AnnouncementID string
}

// Queue is a FIFO of assets awaiting playback. The head is the asset that
// is playing or will play next.
type Queue struct {
	mu    sync.RWMutex
	items []Asset
}

// NewQueue creates an empty playback queue.
func NewQueue() *Queue {
	return &Queue{
		items: make([]Asset, 0),
	}
}

// Enqueue appends an asset to the tail and reports whether it became the head.
func (q *Queue) Enqueue(a Asset) (head bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, a)
	slog.Debug("PlaybackQueue: Enqueued asset", "seq", a.Seq, "path", a.Path, "queue_len", len(q.items))
	return len(q.items) == 1
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (Asset, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Asset{}, false
	}
	a := q.items[0]
	q.items[0] = Asset{}
	q.items = q.items[1:]
	return a, true
}

// Peek returns the head of the queue without removing it.
func (q *Queue) Peek() (Asset, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.items) == 0 {
		return Asset{}, false
	}
	return q.items[0], true
}

// Count returns the number of queued assets.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Drain empties the queue and hands every asset, head first, to the caller.
// The caller becomes responsible for deleting the files.
func (q *Queue) Drain() []Asset {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = make([]Asset, 0)
	return out
}
