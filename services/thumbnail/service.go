package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"mangavault/models"
	"mangavault/services/source"
)

var (
	// ErrNoThumbnail means the source provides no thumbnail ref for the title.
	ErrNoThumbnail = errors.New("source has no thumbnail for this title")
	// ErrUnsupportedSource means the resolved source kind cannot serve images.
	ErrUnsupportedSource = errors.New("unsupported source for thumbnails")
)

// Store is the slice of the metadata store the thumbnail service needs.
type Store interface {
	GetTitle(ctx context.Context, id int64) (*models.Title, error)
}

// initializer triggers a full metadata initialization for a title whose
// thumbnail ref is not yet known.
type initializer interface {
	GetTitle(ctx context.Context, id int64, onlineFetch bool) (*models.TitleView, error)
}

// Service resolves a displayable cover image for a title. Library titles go
// through a persistent download cache; everything else is fetched on demand
// into a temporary cache keyed by title id.
type Service struct {
	store   Store
	sources source.Gateway
	library initializer
	cache   *ImageCache

	tempRoot      string
	downloadsRoot string
	client        *http.Client // shared default client for stub sources
}

func NewService(store Store, sources source.Gateway, library initializer, cache *ImageCache, tempRoot, downloadsRoot string) *Service {
	return &Service{
		store:         store,
		sources:       sources,
		library:       library,
		cache:         cache,
		tempRoot:      tempRoot,
		downloadsRoot: downloadsRoot,
		client:        http.DefaultClient,
	}
}

func cacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// GetThumbnail serves the cover for a title. Library titles are read from the
// persistent download cache, downloading once on a miss and retrying the
// lookup exactly once; non-library titles always take the on-demand path.
func (s *Service) GetThumbnail(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	t, err := s.store.GetTitle(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if t.InLibrary {
		rc, contentType, err := s.cache.Get(s.downloadsRoot, cacheKey(id))
		if errors.Is(err, ErrMissing) {
			if err := s.download(ctx, id); err != nil {
				return nil, "", err
			}
			return s.cache.Get(s.downloadsRoot, cacheKey(id))
		}
		return rc, contentType, err
	}

	return s.FetchThumbnail(ctx, id)
}

// FetchThumbnail obtains the cover on demand, dispatching on the resolved
// source's capability.
func (s *Service) FetchThumbnail(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	t, err := s.store.GetTitle(ctx, id)
	if err != nil {
		return nil, "", err
	}

	switch src := s.sources.ResolveOrStub(t.SourceRef).(type) {
	case *source.Remote:
		return s.cache.FetchAndStore(s.tempRoot, cacheKey(id), func() (*http.Response, error) {
			ref, err := s.thumbnailRef(ctx, t)
			if err != nil {
				return nil, err
			}
			return src.Get(ctx, ref)
		})

	case *source.Local:
		return s.localThumbnail(t, src)

	case *source.Stub:
		return s.cache.FetchAndStore(s.tempRoot, cacheKey(id), func() (*http.Response, error) {
			if t.ThumbnailRef == "" {
				return nil, fmt.Errorf("title %d: %w", id, ErrNoThumbnail)
			}
			return source.DefaultGet(ctx, s.client, t.ThumbnailRef)
		})

	default:
		return nil, "", fmt.Errorf("title %d: %w", id, ErrUnsupportedSource)
	}
}

// Invalidate clears both cached copies of a title's thumbnail. Called when
// the stored thumbnail ref changes value. The two caches are cleared as a
// pair: a failure on one must not leave the other serving a stale image.
func (s *Service) Invalidate(id int64) {
	if err := s.cache.Clear(s.tempRoot, cacheKey(id)); err != nil {
		log.Printf("[thumbnail] clearing temp cache for title %d failed: %v", id, err)
	}
	if err := s.cache.Clear(s.downloadsRoot, cacheKey(id)); err != nil {
		log.Printf("[thumbnail] clearing downloads cache for title %d failed: %v", id, err)
	}
}

// thumbnailRef resolves the source-side image ref for a remote title,
// initializing the title's metadata first when it was never fetched.
func (s *Service) thumbnailRef(ctx context.Context, t *models.Title) (string, error) {
	if t.ThumbnailRef != "" {
		return t.ThumbnailRef, nil
	}
	if t.Initialized {
		return "", fmt.Errorf("title %d: %w", t.ID, ErrNoThumbnail)
	}

	// Never initialized: fetch metadata once, then read the ref again.
	if _, err := s.library.GetTitle(ctx, t.ID, false); err != nil {
		return "", err
	}
	t2, err := s.store.GetTitle(ctx, t.ID)
	if err != nil {
		return "", err
	}
	if t2.ThumbnailRef == "" {
		return "", fmt.Errorf("title %d: %w", t.ID, ErrNoThumbnail)
	}
	return t2.ThumbnailRef, nil
}

// localThumbnail reads the cover straight from the local source's filesystem;
// the thumbnail ref is a file path there.
func (s *Service) localThumbnail(t *models.Title, src *source.Local) (io.ReadCloser, string, error) {
	if t.ThumbnailRef == "" {
		return nil, "", fmt.Errorf("thumbnail for title %d: %w", t.ID, fs.ErrNotExist)
	}

	f, err := src.Fs().Open(t.ThumbnailRef)
	if err != nil {
		if isNotExist(err) {
			return nil, "", fmt.Errorf("thumbnail for title %d: %w", t.ID, fs.ErrNotExist)
		}
		return nil, "", err
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", err
	}

	contentType := mtype.String()
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}
	return f, contentType, nil
}

// download populates the persistent cache for a library title from the
// on-demand path.
func (s *Service) download(ctx context.Context, id int64) error {
	rc, _, err := s.FetchThumbnail(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.cache.Put(s.downloadsRoot, cacheKey(id), rc)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
