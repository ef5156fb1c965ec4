package library

import "mangavault/models"

// maxDescriptionLen caps stored descriptions, matching the row layout.
const maxDescriptionLen = 4096

// Merge overlays fetched details onto the seed record. Fields the source left
// empty never erase the seed's values, so a sparse response cannot wipe the
// url or title the request was built from. Enums get their defaults here so
// everything downstream sees a well-formed record.
func Merge(seed, fetched models.TitleRecord) models.TitleRecord {
	out := seed

	if fetched.URL != "" {
		out.URL = fetched.URL
	}
	if fetched.Title != "" {
		out.Title = fetched.Title
	}
	if fetched.Artist != "" {
		out.Artist = fetched.Artist
	}
	if fetched.Author != "" {
		out.Author = fetched.Author
	}
	if fetched.Description != "" {
		out.Description = fetched.Description
	}
	if len(fetched.Genres) > 0 {
		out.Genres = fetched.Genres
	}
	if fetched.ThumbnailRef != "" {
		out.ThumbnailRef = fetched.ThumbnailRef
	}

	out.Status = fetched.Status
	if out.Status == "" {
		out.Status = seed.Status
	}
	if out.Status == "" {
		out.Status = models.StatusUnknown
	}

	out.UpdateStrategy = fetched.UpdateStrategy
	if out.UpdateStrategy == "" {
		out.UpdateStrategy = seed.UpdateStrategy
	}
	if out.UpdateStrategy == "" {
		out.UpdateStrategy = models.UpdateStrategyAlwaysUpdate
	}

	return out
}

// truncate caps s at max code points, replacing the tail with "..." when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
