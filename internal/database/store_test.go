package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mangavault/models"
)

// setupTestStore creates a migrated test database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(Config{DatabasePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Store
}

func insertTestTitle(t *testing.T, store *Store, title models.Title) *models.Title {
	t.Helper()
	if err := store.InsertTitle(context.Background(), &title); err != nil {
		t.Fatalf("InsertTitle failed: %v", err)
	}
	return &title
}

func TestInsertAndGetTitle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	inserted := insertTestTitle(t, store, models.Title{
		SourceRef:   7,
		URL:         "/title/123",
		Title:       "One Piece",
		Artist:      "Eiichiro Oda",
		Author:      "Eiichiro Oda",
		Description: "Pirates.",
		Genres:      []string{"Action", "Adventure"},
		Status:      models.StatusOngoing,
	})

	if inserted.ID == 0 {
		t.Fatal("expected non-zero ID after insert")
	}

	got, err := store.GetTitle(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("GetTitle failed: %v", err)
	}
	if got.Title != "One Piece" || got.URL != "/title/123" || got.SourceRef != 7 {
		t.Errorf("unexpected row: %+v", got)
	}
	if len(got.Genres) != 2 || got.Genres[0] != "Action" || got.Genres[1] != "Adventure" {
		t.Errorf("genres round trip failed: %v", got.Genres)
	}
	if got.Status != models.StatusOngoing {
		t.Errorf("expected ONGOING, got %s", got.Status)
	}
	if got.UpdateStrategy != models.UpdateStrategyAlwaysUpdate {
		t.Errorf("expected default strategy, got %s", got.UpdateStrategy)
	}
}

func TestGetTitle_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetTitle(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyRefresh_MergesFields(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	title := insertTestTitle(t, store, models.Title{
		SourceRef: 1,
		URL:       "/title/1",
		Title:     "Working Title",
	})

	err := store.ApplyRefresh(ctx, title.ID, models.RefreshUpdate{
		Record: models.TitleRecord{
			Title:        "Working Title",
			Artist:       "A",
			Author:       "B",
			Description:  "desc",
			Genres:       []string{"Drama"},
			Status:       models.StatusCompleted,
			ThumbnailRef: "/covers/1.png",
		},
		RealURL:   "https://example.org/title/1",
		FetchedAt: 1000,
	})
	if err != nil {
		t.Fatalf("ApplyRefresh failed: %v", err)
	}

	got, err := store.GetTitle(ctx, title.ID)
	if err != nil {
		t.Fatalf("GetTitle failed: %v", err)
	}
	if !got.Initialized {
		t.Error("expected title to be initialized after refresh")
	}
	if got.Artist != "A" || got.Author != "B" || got.Description != "desc" {
		t.Errorf("fields not applied: %+v", got)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
	if got.RealURL != "https://example.org/title/1" {
		t.Errorf("real url not applied: %q", got.RealURL)
	}
	if got.LastFetchedAt != 1000 {
		t.Errorf("expected last_fetched_at 1000, got %d", got.LastFetchedAt)
	}
	if got.ThumbnailRef != "/covers/1.png" || got.ThumbnailLastFetchedAt != 1000 {
		t.Errorf("thumbnail not applied: ref=%q at=%d", got.ThumbnailRef, got.ThumbnailLastFetchedAt)
	}
}

func TestApplyRefresh_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.ApplyRefresh(context.Background(), 42, models.RefreshUpdate{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyRefresh_ThumbnailEpoch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	title := insertTestTitle(t, store, models.Title{SourceRef: 1, URL: "/t", Title: "T"})

	var invalidated []int64
	upd := models.RefreshUpdate{
		Record:            models.TitleRecord{Title: "T", ThumbnailRef: "cover-v1"},
		FetchedAt:         100,
		OnThumbnailChange: func(id int64) { invalidated = append(invalidated, id) },
	}
	if err := store.ApplyRefresh(ctx, title.ID, upd); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	// Same ref again: the epoch must not advance and the hook must not fire.
	upd.FetchedAt = 200
	if err := store.ApplyRefresh(ctx, title.ID, upd); err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}

	got, _ := store.GetTitle(ctx, title.ID)
	if got.ThumbnailLastFetchedAt != 100 {
		t.Errorf("epoch advanced without ref change: %d", got.ThumbnailLastFetchedAt)
	}
	if len(invalidated) != 1 {
		t.Fatalf("expected 1 invalidation, got %d", len(invalidated))
	}

	// Changed ref: epoch advances, hook fires again.
	upd.Record.ThumbnailRef = "cover-v2"
	upd.FetchedAt = 300
	if err := store.ApplyRefresh(ctx, title.ID, upd); err != nil {
		t.Fatalf("third refresh failed: %v", err)
	}
	got, _ = store.GetTitle(ctx, title.ID)
	if got.ThumbnailLastFetchedAt != 300 {
		t.Errorf("epoch did not advance on ref change: %d", got.ThumbnailLastFetchedAt)
	}
	if len(invalidated) != 2 || invalidated[1] != title.ID {
		t.Errorf("expected second invalidation for title %d, got %v", title.ID, invalidated)
	}
}

func TestApplyRefresh_TitleRenameGate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	title := insertTestTitle(t, store, models.Title{SourceRef: 1, URL: "/t", Title: "Old Name"})

	// Rename callback refuses: stored title must stay unchanged.
	err := store.ApplyRefresh(ctx, title.ID, models.RefreshUpdate{
		Record:    models.TitleRecord{Title: "New Name", Author: "New Author", Status: models.StatusOngoing},
		FetchedAt: 1,
		RenameDir: func(oldTitle, newTitle string) bool { return false },
	})
	if err != nil {
		t.Fatalf("ApplyRefresh failed: %v", err)
	}
	got, _ := store.GetTitle(ctx, title.ID)
	if got.Title != "Old Name" {
		t.Errorf("title changed despite refused rename: %q", got.Title)
	}
	if got.Author != "New Author" || got.Status != models.StatusOngoing {
		t.Errorf("refused rename must not block other fields: %+v", got)
	}

	// Rename callback succeeds: title follows the fetched value.
	var gotOld, gotNew string
	err = store.ApplyRefresh(ctx, title.ID, models.RefreshUpdate{
		Record:    models.TitleRecord{Title: "New Name"},
		FetchedAt: 2,
		RenameDir: func(oldTitle, newTitle string) bool {
			gotOld, gotNew = oldTitle, newTitle
			return true
		},
	})
	if err != nil {
		t.Fatalf("ApplyRefresh failed: %v", err)
	}
	if gotOld != "Old Name" || gotNew != "New Name" {
		t.Errorf("rename callback got %q -> %q", gotOld, gotNew)
	}
	got, _ = store.GetTitle(ctx, title.ID)
	if got.Title != "New Name" {
		t.Errorf("title not updated after accepted rename: %q", got.Title)
	}
}

func TestSetInLibrary(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	title := insertTestTitle(t, store, models.Title{SourceRef: 1, URL: "/t", Title: "T"})

	if err := store.SetInLibrary(ctx, title.ID, true); err != nil {
		t.Fatalf("SetInLibrary(true) failed: %v", err)
	}
	got, _ := store.GetTitle(ctx, title.ID)
	if !got.InLibrary || got.InLibraryAt == 0 {
		t.Errorf("expected in_library with timestamp, got %+v", got)
	}

	if err := store.SetInLibrary(ctx, title.ID, false); err != nil {
		t.Fatalf("SetInLibrary(false) failed: %v", err)
	}
	got, _ = store.GetTitle(ctx, title.ID)
	if got.InLibrary {
		t.Error("expected title out of library")
	}
}

func TestTitleStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	title := insertTestTitle(t, store, models.Title{SourceRef: 1, URL: "/t", Title: "T"})

	for i := 1; i <= 5; i++ {
		ch := models.Chapter{
			TitleID:      title.ID,
			Name:         "Chapter",
			SourceOrder:  int64(i),
			IsRead:       i <= 2,
			IsDownloaded: i == 1,
		}
		if err := store.InsertChapter(ctx, &ch); err != nil {
			t.Fatalf("InsertChapter failed: %v", err)
		}
	}

	stats, err := store.TitleStats(ctx, title.ID)
	if err != nil {
		t.Fatalf("TitleStats failed: %v", err)
	}
	if stats.ChapterCount != 5 || stats.UnreadCount != 3 || stats.DownloadCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LastChapterRead == nil || stats.LastChapterRead.SourceOrder != 2 {
		t.Errorf("expected last read source order 2, got %+v", stats.LastChapterRead)
	}
}

func TestTitleStats_NoChapters(t *testing.T) {
	store := setupTestStore(t)

	title := insertTestTitle(t, store, models.Title{SourceRef: 1, URL: "/t", Title: "T"})

	stats, err := store.TitleStats(context.Background(), title.ID)
	if err != nil {
		t.Fatalf("TitleStats failed: %v", err)
	}
	if stats.ChapterCount != 0 || stats.LastChapterRead != nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestMeta_Upsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	title := insertTestTitle(t, store, models.Title{SourceRef: 1, URL: "/t", Title: "T"})

	if err := store.SetMeta(ctx, title.ID, "reader.mode", "paged"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := store.SetMeta(ctx, title.ID, "reader.mode", "webtoon"); err != nil {
		t.Fatalf("SetMeta overwrite failed: %v", err)
	}
	if err := store.SetMeta(ctx, title.ID, "pinned", "true"); err != nil {
		t.Fatalf("SetMeta second key failed: %v", err)
	}

	meta, err := store.GetMeta(ctx, title.ID)
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if len(meta) != 2 || meta["reader.mode"] != "webtoon" || meta["pinned"] != "true" {
		t.Errorf("unexpected meta: %v", meta)
	}
}

func TestUpdatableLibraryTitleIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	eligible := insertTestTitle(t, store, models.Title{
		SourceRef: 1, URL: "/a", Title: "A",
		InLibrary: true, Initialized: true,
	})
	// Not in library.
	insertTestTitle(t, store, models.Title{
		SourceRef: 1, URL: "/b", Title: "B", Initialized: true,
	})
	// Fetch-once strategy.
	insertTestTitle(t, store, models.Title{
		SourceRef: 1, URL: "/c", Title: "C",
		InLibrary: true, Initialized: true,
		UpdateStrategy: models.UpdateStrategyOnlyFetchOnce,
	})

	ids, err := store.UpdatableLibraryTitleIDs(ctx)
	if err != nil {
		t.Fatalf("UpdatableLibraryTitleIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != eligible.ID {
		t.Errorf("expected only title %d, got %v", eligible.ID, ids)
	}
}

func TestDecodeGenres(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"Action", 1},
		{"Action, Drama", 2},
		{"Action, , Drama", 2},
	}
	for _, tt := range tests {
		if got := decodeGenres(tt.raw); len(got) != tt.want {
			t.Errorf("decodeGenres(%q) = %v, want %d entries", tt.raw, got, tt.want)
		}
	}
}
