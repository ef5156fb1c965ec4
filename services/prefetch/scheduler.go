package prefetch

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"mangavault/models"
	"mangavault/services/download"
)

// debounceDelay is how long the accumulator waits after the last scheduling
// request before computing the download-ahead set. Marking several chapters
// read in quick succession must collapse into one pass.
const debounceDelay = 5 * time.Second

// ChapterStore is the slice of the metadata store the scheduler reads.
type ChapterStore interface {
	LatestReadOrders(ctx context.Context, titleIDs []int64) (map[int64]int64, error)
	UnreadChaptersByTitle(ctx context.Context, titleIDs []int64) (map[int64][]models.Chapter, error)
}

// Scheduler coalesces bursts of "title read" events and decides which
// not-yet-downloaded chapters to fetch ahead of the reader. The accumulator
// and its armed timer are shared by every request in the process; there is
// at most one pending firing at any moment.
type Scheduler struct {
	store  ChapterStore
	engine download.Engine
	limit  func() int // ahead-limit; 0 disables scheduling

	mu          sync.Mutex
	titleIDs    map[int64]struct{}
	overrideIDs map[int64]struct{}
	timer       *time.Timer
	delay       time.Duration
}

func NewScheduler(store ChapterStore, engine download.Engine, limit func() int) *Scheduler {
	return &Scheduler{
		store:       store,
		engine:      engine,
		limit:       limit,
		titleIDs:    make(map[int64]struct{}),
		overrideIDs: make(map[int64]struct{}),
		delay:       debounceDelay,
	}
}

// ScheduleAhead merges the ids into the accumulator and re-arms the debounce
// timer. latestReadChapterIDs lists chapters the caller is about to mark as
// read; they must not be counted as still-unread targets when the window is
// computed.
func (s *Scheduler) ScheduleAhead(titleIDs, latestReadChapterIDs []int64) {
	if s.limit() == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range titleIDs {
		s.titleIDs[id] = struct{}{}
	}
	for _, id := range latestReadChapterIDs {
		s.overrideIDs[id] = struct{}{}
	}

	// One pending firing at most: cancel the previous timer before arming.
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

// fire drains the accumulator atomically and runs the windowing pass on the
// snapshot. An insert racing with the drain lands in the next generation.
func (s *Scheduler) fire() {
	s.mu.Lock()
	titleIDs := make([]int64, 0, len(s.titleIDs))
	for id := range s.titleIDs {
		titleIDs = append(titleIDs, id)
	}
	overrides := s.overrideIDs
	s.titleIDs = make(map[int64]struct{})
	s.overrideIDs = make(map[int64]struct{})
	s.timer = nil
	s.mu.Unlock()

	sort.Slice(titleIDs, func(i, j int) bool { return titleIDs[i] < titleIDs[j] })

	if err := s.downloadAhead(context.Background(), titleIDs, overrides); err != nil {
		log.Printf("[prefetch] download-ahead pass failed: %v", err)
	}
}

// downloadAhead computes, per title, the window of unread chapters above the
// reader's position and hands the result to the download engine.
//
// Chapters are ordered by source order descending (newest first). The window
// ends at the last unread chapter still above the latest read position and
// extends at most ahead-limit chapters back toward the newest ones, anchored
// at the read boundary.
func (s *Scheduler) downloadAhead(ctx context.Context, titleIDs []int64, overrides map[int64]struct{}) error {
	limit := s.limit()
	if limit == 0 || len(titleIDs) == 0 {
		return nil
	}

	latestRead, err := s.store.LatestReadOrders(ctx, titleIDs)
	if err != nil {
		return fmt.Errorf("load read chapters: %w", err)
	}
	unreadByTitle, err := s.store.UnreadChaptersByTitle(ctx, titleIDs)
	if err != nil {
		return fmt.Errorf("load unread chapters: %w", err)
	}

	var chapterIDs []int64
	for _, titleID := range titleIDs {
		unread := unreadByTitle[titleID]
		boundary := latestRead[titleID] // 0 when nothing is read

		lastIdx := -1
		for i, ch := range unread {
			if ch.SourceOrder > boundary {
				if _, overridden := overrides[ch.ID]; !overridden {
					lastIdx = i
				}
			}
		}
		if lastIdx < 0 {
			continue
		}

		window := unread[:lastIdx+1]
		firstIdx := len(window) - limit
		if firstIdx < 0 {
			firstIdx = 0
		}
		for _, ch := range window[firstIdx:] {
			if !ch.IsDownloaded {
				chapterIDs = append(chapterIDs, ch.ID)
			}
		}
	}

	log.Printf("[prefetch] downloading ahead: chapters %v", chapterIDs)

	if err := s.engine.Dequeue(ctx, titleIDs, chapterIDs); err != nil {
		return fmt.Errorf("dequeue stale chapters: %w", err)
	}
	return s.engine.Enqueue(ctx, chapterIDs)
}
