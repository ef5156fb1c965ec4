package library

import (
	"strings"
	"testing"

	"mangavault/models"
)

func TestMerge_SparseFetchKeepsSeed(t *testing.T) {
	seed := models.TitleRecord{
		URL:    "/title/1",
		Title:  "Seed Title",
		Author: "Seed Author",
	}

	out := Merge(seed, models.TitleRecord{})

	if out.URL != "/title/1" || out.Title != "Seed Title" || out.Author != "Seed Author" {
		t.Errorf("empty fetch erased seed fields: %+v", out)
	}
	if out.Status != models.StatusUnknown {
		t.Errorf("expected UNKNOWN default, got %s", out.Status)
	}
	if out.UpdateStrategy != models.UpdateStrategyAlwaysUpdate {
		t.Errorf("expected ALWAYS_UPDATE default, got %s", out.UpdateStrategy)
	}
}

func TestMerge_FetchedFieldsWin(t *testing.T) {
	seed := models.TitleRecord{URL: "/title/1", Title: "Old"}
	fetched := models.TitleRecord{
		Title:        "New",
		Artist:       "Artist",
		Description:  "desc",
		Genres:       []string{"Comedy"},
		Status:       models.StatusOnHiatus,
		ThumbnailRef: "/cover.png",
	}

	out := Merge(seed, fetched)

	if out.Title != "New" || out.Artist != "Artist" || out.Description != "desc" {
		t.Errorf("fetched fields not applied: %+v", out)
	}
	if out.URL != "/title/1" {
		t.Errorf("seed url lost: %q", out.URL)
	}
	if out.Status != models.StatusOnHiatus {
		t.Errorf("expected ON_HIATUS, got %s", out.Status)
	}
	if len(out.Genres) != 1 || out.Genres[0] != "Comedy" {
		t.Errorf("genres not applied: %v", out.Genres)
	}
}

func TestMerge_SeedStatusSurvivesEmptyFetch(t *testing.T) {
	seed := models.TitleRecord{URL: "/t", Title: "T", Status: models.StatusCompleted}

	out := Merge(seed, models.TitleRecord{})
	if out.Status != models.StatusCompleted {
		t.Errorf("seed status lost: %s", out.Status)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 4096); got != "short" {
		t.Errorf("short string changed: %q", got)
	}

	long := strings.Repeat("a", 5000)
	got := truncate(long, maxDescriptionLen)
	if len([]rune(got)) != maxDescriptionLen {
		t.Errorf("expected %d code points, got %d", maxDescriptionLen, len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis tail, got %q", got[len(got)-10:])
	}

	// Multi-byte text counts code points, not bytes.
	wide := strings.Repeat("あ", 10)
	got = truncate(wide, 5)
	if runes := []rune(got); len(runes) != 5 || string(runes[2:]) != "..." {
		t.Errorf("multi-byte truncation wrong: %q", got)
	}
}
