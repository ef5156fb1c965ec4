package library

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"mangavault/models"
	"mangavault/services/source"
)

// Store is the slice of the metadata store the library service needs.
type Store interface {
	GetTitle(ctx context.Context, id int64) (*models.Title, error)
	ApplyRefresh(ctx context.Context, id int64, upd models.RefreshUpdate) error
	TitleStats(ctx context.Context, id int64) (*models.TitleStats, error)
	GetMeta(ctx context.Context, id int64) (map[string]string, error)
	SetMeta(ctx context.Context, id int64, key, value string) error
	SetInLibrary(ctx context.Context, id int64, in bool) error
}

// ThumbnailInvalidator clears cached thumbnail images for a title. Wired in
// after construction because the thumbnail service also depends on this one.
type ThumbnailInvalidator interface {
	Invalidate(titleID int64)
}

// Service keeps cached title metadata fresh: it decides when a stored row can
// be served as-is and when the catalog source must be asked again, and merges
// refetched details back without losing local state.
type Service struct {
	store      Store
	sources    source.Gateway
	dirs       *Dirs
	thumbnails ThumbnailInvalidator

	now func() time.Time
}

func NewService(store Store, sources source.Gateway, dirs *Dirs) *Service {
	return &Service{
		store:   store,
		sources: sources,
		dirs:    dirs,
		now:     time.Now,
	}
}

// SetThumbnailInvalidator wires the thumbnail cache invalidation hook.
func (s *Service) SetThumbnailInvalidator(inv ThumbnailInvalidator) {
	s.thumbnails = inv
}

// ThumbnailProxyURL is the API path a client fetches a title's cover from.
func ThumbnailProxyURL(id int64) string {
	return "/api/v1/titles/" + strconv.FormatInt(id, 10) + "/thumbnail"
}

// GetTitle returns a view of the title. An initialized row is served straight
// from storage unless onlineFetch forces a refresh. When the refresh cannot
// run because the source is unresolved, the stored view is returned instead
// of an error.
func (s *Service) GetTitle(ctx context.Context, id int64, onlineFetch bool) (*models.TitleView, error) {
	t, err := s.store.GetTitle(ctx, id)
	if err != nil {
		return nil, err
	}

	if !onlineFetch && t.Initialized {
		return s.view(ctx, t, false)
	}

	rec, err := s.Refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return s.view(ctx, t, false)
	}

	t, err = s.store.GetTitle(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx, t, true)
	if err != nil {
		return nil, err
	}

	// The fresh view carries the source's fields as returned, most notably
	// the untruncated description.
	v.Artist = rec.Artist
	v.Author = rec.Author
	v.Description = rec.Description
	v.Genres = rec.Genres
	v.Status = rec.Status
	v.UpdateStrategy = rec.UpdateStrategy
	return v, nil
}

// Refresh refetches the title's details from its catalog source and merges
// them into storage. An unresolved source is a soft condition: nil, nil, no
// mutation. Store failures propagate.
func (s *Service) Refresh(ctx context.Context, id int64) (*models.TitleRecord, error) {
	t, err := s.store.GetTitle(ctx, id)
	if err != nil {
		return nil, err
	}

	src := s.sources.Resolve(t.SourceRef)
	if src == nil {
		log.Printf("[library] source %d unresolved, serving title %d from cache", t.SourceRef, id)
		return nil, nil
	}
	ds, ok := src.(source.DetailsSource)
	if !ok {
		return nil, nil
	}

	seed := models.TitleRecord{URL: t.URL, Title: t.Title}
	fetched, err := ds.FetchDetails(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("fetch details for title %d: %w", id, err)
	}
	merged := Merge(seed, fetched)

	// Canonical web URL is best-effort and only meaningful for remote
	// sources; a failure leaves it unset.
	realURL := ""
	if remote, ok := src.(*source.Remote); ok {
		if u, err := remote.TitleURL(merged); err == nil {
			realURL = u
		} else {
			log.Printf("[library] no canonical url for title %d: %v", id, err)
		}
	}

	record := merged
	record.Description = truncate(record.Description, maxDescriptionLen)

	upd := models.RefreshUpdate{
		Record:    record,
		RealURL:   realURL,
		FetchedAt: s.now().Unix(),
		RenameDir: func(oldTitle, newTitle string) bool {
			if err := s.dirs.Rename(oldTitle, newTitle); err != nil {
				log.Printf("[library] keeping old title for %d, rename failed: %v", id, err)
				return false
			}
			return true
		},
		OnThumbnailChange: func(titleID int64) {
			if s.thumbnails != nil {
				s.thumbnails.Invalidate(titleID)
			}
		},
	}
	if err := s.store.ApplyRefresh(ctx, id, upd); err != nil {
		return nil, err
	}

	return &merged, nil
}

// GetTitleWithStats composes GetTitle with the chapter aggregates.
func (s *Service) GetTitleWithStats(ctx context.Context, id int64, onlineFetch bool) (*models.TitleFull, error) {
	v, err := s.GetTitle(ctx, id, onlineFetch)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.TitleStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.TitleFull{TitleView: *v, TitleStats: *stats}, nil
}

func (s *Service) GetMeta(ctx context.Context, id int64) (map[string]string, error) {
	return s.store.GetMeta(ctx, id)
}

func (s *Service) SetMeta(ctx context.Context, id int64, key, value string) error {
	return s.store.SetMeta(ctx, id, key, value)
}

func (s *Service) SetInLibrary(ctx context.Context, id int64, in bool) error {
	return s.store.SetInLibrary(ctx, id, in)
}

func (s *Service) view(ctx context.Context, t *models.Title, fresh bool) (*models.TitleView, error) {
	meta, err := s.store.GetMeta(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	return &models.TitleView{
		ID:                     t.ID,
		SourceRef:              strconv.FormatInt(t.SourceRef, 10),
		URL:                    t.URL,
		Title:                  t.Title,
		ThumbnailURL:           ThumbnailProxyURL(t.ID),
		ThumbnailLastFetchedAt: t.ThumbnailLastFetchedAt,
		Initialized:            t.Initialized,
		Artist:                 t.Artist,
		Author:                 t.Author,
		Description:            t.Description,
		Genres:                 t.Genres,
		Status:                 t.Status,
		InLibrary:              t.InLibrary,
		InLibraryAt:            t.InLibraryAt,
		Meta:                   meta,
		RealURL:                t.RealURL,
		LastFetchedAt:          t.LastFetchedAt,
		ChaptersLastFetchedAt:  t.ChaptersLastFetchedAt,
		UpdateStrategy:         t.UpdateStrategy,
		FreshData:              fresh,
	}, nil
}
