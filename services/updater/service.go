package updater

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"mangavault/config"
	"mangavault/models"
)

// maxConcurrentRefreshes bounds how many titles are refreshed at once so a
// large library does not hammer its sources.
const maxConcurrentRefreshes = 5

// refresher is the slice of the library service the updater drives.
type refresher interface {
	Refresh(ctx context.Context, id int64) (*models.TitleRecord, error)
}

// Store lists the titles eligible for a periodic refresh.
type Store interface {
	UpdatableLibraryTitleIDs(ctx context.Context) ([]int64, error)
}

// Service periodically refreshes library titles whose update strategy allows
// it, keeping local metadata from going stale between reads.
type Service struct {
	configManager *config.Manager
	library       refresher
	store         Store

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewService(configManager *config.Manager, library refresher, store Store) *Service {
	return &Service{
		configManager: configManager,
		library:       library,
		store:         store,
	}
}

// Start begins the background update loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	settings, err := s.configManager.Load()
	if err != nil {
		return err
	}
	if settings.LibraryUpdateIntervalHours <= 0 {
		log.Println("[updater] periodic library updates disabled")
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	interval := time.Duration(settings.LibraryUpdateIntervalHours) * time.Hour
	s.wg.Add(1)
	go s.loop(ctx, interval)

	log.Printf("[updater] started, refreshing library every %s", interval)
	return nil
}

// Stop cancels the loop and waits for in-flight refreshes.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[updater] stopped")
	case <-ctx.Done():
		log.Println("[updater] stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every eligible library title with bounded parallelism.
func (s *Service) RunOnce(ctx context.Context) {
	ids, err := s.store.UpdatableLibraryTitleIDs(ctx)
	if err != nil {
		log.Printf("[updater] listing library titles failed: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	log.Printf("[updater] refreshing %d library titles", len(ids))

	p := pool.New().WithMaxGoroutines(maxConcurrentRefreshes)
	for _, id := range ids {
		id := id
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			if _, err := s.library.Refresh(ctx, id); err != nil {
				log.Printf("[updater] refresh of title %d failed: %v", id, err)
			}
		})
	}
	p.Wait()
}
