package models

import "fmt"

// TitleStatus is the publication status reported by a catalog source.
type TitleStatus string

const (
	StatusUnknown            TitleStatus = "UNKNOWN"
	StatusOngoing            TitleStatus = "ONGOING"
	StatusCompleted          TitleStatus = "COMPLETED"
	StatusLicensed           TitleStatus = "LICENSED"
	StatusPublishingFinished TitleStatus = "PUBLISHING_FINISHED"
	StatusCancelled          TitleStatus = "CANCELLED"
	StatusOnHiatus           TitleStatus = "ON_HIATUS"
)

// ParseTitleStatus validates a raw status value. Unrecognized values are an
// error rather than being coerced to UNKNOWN, so a corrupt row or a
// misbehaving source surfaces immediately.
func ParseTitleStatus(raw string) (TitleStatus, error) {
	switch TitleStatus(raw) {
	case StatusUnknown, StatusOngoing, StatusCompleted, StatusLicensed,
		StatusPublishingFinished, StatusCancelled, StatusOnHiatus:
		return TitleStatus(raw), nil
	}
	return "", fmt.Errorf("unknown title status %q", raw)
}

// UpdateStrategy controls whether a title's metadata is refetched by the
// periodic library updater.
type UpdateStrategy string

const (
	UpdateStrategyAlwaysUpdate  UpdateStrategy = "ALWAYS_UPDATE"
	UpdateStrategyOnlyFetchOnce UpdateStrategy = "ONLY_FETCH_ONCE"
)

func ParseUpdateStrategy(raw string) (UpdateStrategy, error) {
	switch UpdateStrategy(raw) {
	case UpdateStrategyAlwaysUpdate, UpdateStrategyOnlyFetchOnce:
		return UpdateStrategy(raw), nil
	}
	return "", fmt.Errorf("unknown update strategy %q", raw)
}

// Title is the persisted library row for a cataloged work.
type Title struct {
	ID                     int64
	SourceRef              int64
	URL                    string
	Title                  string
	ThumbnailRef           string // source-side image location, empty when none
	ThumbnailLastFetchedAt int64  // advances only when ThumbnailRef changes value
	Initialized            bool
	InLibrary              bool
	InLibraryAt            int64
	Artist                 string
	Author                 string
	Description            string
	Genres                 []string
	Status                 TitleStatus
	UpdateStrategy         UpdateStrategy
	RealURL                string // best-effort canonical web URL, empty when unknown
	LastFetchedAt          int64
	ChaptersLastFetchedAt  int64
}

// TitleRecord is the source-side view of a title: the seed sent to a catalog
// source and the details it returns. It carries no local identity.
type TitleRecord struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Artist         string         `json:"artist,omitempty"`
	Author         string         `json:"author,omitempty"`
	Description    string         `json:"description,omitempty"`
	Genres         []string       `json:"genres,omitempty"`
	Status         TitleStatus    `json:"status,omitempty"`
	ThumbnailRef   string         `json:"thumbnailRef,omitempty"`
	UpdateStrategy UpdateStrategy `json:"updateStrategy,omitempty"`
}

// TitleView is the outward representation of a title.
type TitleView struct {
	ID                     int64             `json:"id"`
	SourceRef              string            `json:"sourceId"`
	URL                    string            `json:"url"`
	Title                  string            `json:"title"`
	ThumbnailURL           string            `json:"thumbnailUrl"`
	ThumbnailLastFetchedAt int64             `json:"thumbnailUrlLastFetched"`
	Initialized            bool              `json:"initialized"`
	Artist                 string            `json:"artist"`
	Author                 string            `json:"author"`
	Description            string            `json:"description"`
	Genres                 []string          `json:"genres"`
	Status                 TitleStatus       `json:"status"`
	InLibrary              bool              `json:"inLibrary"`
	InLibraryAt            int64             `json:"inLibraryAt"`
	Meta                   map[string]string `json:"meta"`
	RealURL                string            `json:"realUrl,omitempty"`
	LastFetchedAt          int64             `json:"lastFetchedAt"`
	ChaptersLastFetchedAt  int64             `json:"chaptersLastFetchedAt"`
	UpdateStrategy         UpdateStrategy    `json:"updateStrategy"`
	FreshData              bool              `json:"freshData"`
}

// TitleStats are the chapter aggregates attached to a full title view.
type TitleStats struct {
	UnreadCount     int64    `json:"unreadCount"`
	DownloadCount   int64    `json:"downloadCount"`
	ChapterCount    int64    `json:"chapterCount"`
	LastChapterRead *Chapter `json:"lastChapterRead,omitempty"`
}

// TitleFull is a title view with its chapter aggregates.
type TitleFull struct {
	TitleView
	TitleStats
}

// RefreshUpdate carries a merged source record into the store's single
// refresh transaction, plus the two side effects that must happen inside it.
type RefreshUpdate struct {
	Record    TitleRecord
	RealURL   string
	FetchedAt int64

	// RenameDir is invoked inside the transaction when the fetched title
	// differs from the stored one. A false return skips the title update so
	// the row never desyncs from the on-disk directory.
	RenameDir func(oldTitle, newTitle string) bool

	// OnThumbnailChange fires inside the transaction exactly when the stored
	// thumbnail ref changes value.
	OnThumbnailChange func(titleID int64)
}
