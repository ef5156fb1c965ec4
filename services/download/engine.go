package download

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"mangavault/models"
)

// Engine accepts and removes chapter download work. The execution pipeline
// behind it is not this package's concern.
type Engine interface {
	// Enqueue adds the chapters to the download queue. Already-queued
	// chapters are left in place.
	Enqueue(ctx context.Context, chapterIDs []int64) error
	// Dequeue removes queued work belonging to the given titles, keeping
	// chapters listed in keepChapterIDs.
	Dequeue(ctx context.Context, titleIDs []int64, keepChapterIDs []int64) error
}

// ChapterStore maps chapter ids to their rows, needed to group queued work
// by title.
type ChapterStore interface {
	ChaptersByIDs(ctx context.Context, ids []int64) ([]models.Chapter, error)
}

// WorkUnit is one queued chapter download.
type WorkUnit struct {
	ID        string    `json:"id"`
	ChapterID int64     `json:"chapterId"`
	TitleID   int64     `json:"mangaId"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// Queue is the in-memory Engine used by the server.
type Queue struct {
	store ChapterStore

	mu    sync.Mutex
	items []WorkUnit
}

func NewQueue(store ChapterStore) *Queue {
	return &Queue{store: store}
}

var _ Engine = (*Queue)(nil)

func (q *Queue) Enqueue(ctx context.Context, chapterIDs []int64) error {
	if len(chapterIDs) == 0 {
		return nil
	}

	chapters, err := q.store.ChaptersByIDs(ctx, chapterIDs)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	queued := make(map[int64]bool, len(q.items))
	for _, item := range q.items {
		queued[item.ChapterID] = true
	}

	added := 0
	for _, ch := range chapters {
		if queued[ch.ID] {
			continue
		}
		q.items = append(q.items, WorkUnit{
			ID:        uuid.NewString(),
			ChapterID: ch.ID,
			TitleID:   ch.TitleID,
			QueuedAt:  time.Now(),
		})
		added++
	}

	log.Printf("[download] enqueued %d chapters (%d already queued)", added, len(chapters)-added)
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, titleIDs []int64, keepChapterIDs []int64) error {
	titles := make(map[int64]bool, len(titleIDs))
	for _, id := range titleIDs {
		titles[id] = true
	}
	keep := make(map[int64]bool, len(keepChapterIDs))
	for _, id := range keepChapterIDs {
		keep[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if titles[item.TitleID] && !keep[item.ChapterID] {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept

	if removed > 0 {
		log.Printf("[download] dequeued %d stale chapters", removed)
	}
	return nil
}

// Snapshot returns a copy of the queued work, oldest first.
func (q *Queue) Snapshot() []WorkUnit {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]WorkUnit, len(q.items))
	copy(out, q.items)
	return out
}
