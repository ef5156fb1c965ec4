package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mangavault/models"
)

// ErrNotFound marks lookups of rows that do not exist.
var ErrNotFound = errors.New("not found")

// Store is the repository for titles, per-title metadata, and chapter
// aggregates. Multi-row reads and the refresh merge-back run inside explicit
// transactions so callers never observe a partially-applied update.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func NewStore(db *sql.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

const titleColumns = `id, source_ref, url, title, COALESCE(thumbnail_ref, ''),
	thumbnail_last_fetched_at, initialized, in_library, in_library_at,
	artist, author, description, genres, status, update_strategy,
	COALESCE(real_url, ''), last_fetched_at, chapters_last_fetched_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTitle(row rowScanner) (*models.Title, error) {
	var (
		t           models.Title
		genres      string
		rawStatus   string
		rawStrategy string
	)
	err := row.Scan(
		&t.ID, &t.SourceRef, &t.URL, &t.Title, &t.ThumbnailRef,
		&t.ThumbnailLastFetchedAt, &t.Initialized, &t.InLibrary, &t.InLibraryAt,
		&t.Artist, &t.Author, &t.Description, &genres, &rawStatus, &rawStrategy,
		&t.RealURL, &t.LastFetchedAt, &t.ChaptersLastFetchedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Genres = decodeGenres(genres)
	if t.Status, err = models.ParseTitleStatus(rawStatus); err != nil {
		return nil, fmt.Errorf("title %d: %w", t.ID, err)
	}
	if t.UpdateStrategy, err = models.ParseUpdateStrategy(rawStrategy); err != nil {
		return nil, fmt.Errorf("title %d: %w", t.ID, err)
	}
	return &t, nil
}

// decodeGenres splits the stored delimited genre string, preserving order.
func decodeGenres(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		if g := strings.TrimSpace(p); g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

func encodeGenres(genres []string) string {
	return strings.Join(genres, ", ")
}

// GetTitle fetches a single title row.
func (s *Store) GetTitle(ctx context.Context, id int64) (*models.Title, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+titleColumns+` FROM titles WHERE id = ?`, id)
	t, err := scanTitle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("title %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get title %d: %w", id, err)
	}
	return t, nil
}

// InsertTitle stores a new title row and assigns its ID.
func (s *Store) InsertTitle(ctx context.Context, t *models.Title) error {
	status := t.Status
	if status == "" {
		status = models.StatusUnknown
	}
	strategy := t.UpdateStrategy
	if strategy == "" {
		strategy = models.UpdateStrategyAlwaysUpdate
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO titles (
			source_ref, url, title, thumbnail_ref, thumbnail_last_fetched_at,
			initialized, in_library, in_library_at, artist, author, description,
			genres, status, update_strategy, real_url, last_fetched_at,
			chapters_last_fetched_at
		) VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)`,
		t.SourceRef, t.URL, t.Title, t.ThumbnailRef, t.ThumbnailLastFetchedAt,
		t.Initialized, t.InLibrary, t.InLibraryAt, t.Artist, t.Author, t.Description,
		encodeGenres(t.Genres), string(status), string(strategy), t.RealURL,
		t.LastFetchedAt, t.ChaptersLastFetchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert title: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert title id: %w", err)
	}
	t.Status = status
	t.UpdateStrategy = strategy
	return nil
}

// ApplyRefresh merges a fetched source record into the stored row in one
// transaction. The title column only changes when upd.RenameDir reports the
// storage directory moved; the thumbnail fetch epoch only advances when the
// thumbnail ref actually changed value.
func (s *Store) ApplyRefresh(ctx context.Context, id int64, upd models.RefreshUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh tx: %w", err)
	}
	defer tx.Rollback()

	var curTitle, curThumb string
	err = tx.QueryRowContext(ctx,
		`SELECT title, COALESCE(thumbnail_ref, '') FROM titles WHERE id = ?`, id,
	).Scan(&curTitle, &curThumb)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("title %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("read title %d for refresh: %w", id, err)
	}

	newTitle := curTitle
	if upd.Record.Title != "" && upd.Record.Title != curTitle {
		canRename := upd.RenameDir == nil || upd.RenameDir(curTitle, upd.Record.Title)
		if canRename {
			newTitle = upd.Record.Title
		}
	}

	status := upd.Record.Status
	if status == "" {
		status = models.StatusUnknown
	}
	strategy := upd.Record.UpdateStrategy
	if strategy == "" {
		strategy = models.UpdateStrategyAlwaysUpdate
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE titles SET
			title = ?, initialized = 1, artist = ?, author = ?, description = ?,
			genres = ?, status = ?, update_strategy = ?,
			real_url = NULLIF(?, ''), last_fetched_at = ?
		WHERE id = ?`,
		newTitle, upd.Record.Artist, upd.Record.Author, upd.Record.Description,
		encodeGenres(upd.Record.Genres), string(status), string(strategy),
		upd.RealURL, upd.FetchedAt, id,
	)
	if err != nil {
		return fmt.Errorf("apply refresh for title %d: %w", id, err)
	}

	if upd.Record.ThumbnailRef != "" && upd.Record.ThumbnailRef != curThumb {
		_, err = tx.ExecContext(ctx,
			`UPDATE titles SET thumbnail_ref = ?, thumbnail_last_fetched_at = ? WHERE id = ?`,
			upd.Record.ThumbnailRef, upd.FetchedAt, id,
		)
		if err != nil {
			return fmt.Errorf("update thumbnail ref for title %d: %w", id, err)
		}
		if upd.OnThumbnailChange != nil {
			upd.OnThumbnailChange(id)
		}
	}

	return tx.Commit()
}

// SetInLibrary flips library membership, stamping in_library_at when a title
// enters the library.
func (s *Store) SetInLibrary(ctx context.Context, id int64, in bool) error {
	var err error
	if in {
		_, err = s.db.ExecContext(ctx,
			`UPDATE titles SET in_library = 1, in_library_at = ? WHERE id = ?`,
			time.Now().Unix(), id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE titles SET in_library = 0 WHERE id = ?`, id)
	}
	if err != nil {
		return fmt.Errorf("set in_library for title %d: %w", id, err)
	}
	return nil
}

// TitleStats computes the chapter aggregates for a title in one transaction.
func (s *Store) TitleStats(ctx context.Context, id int64) (*models.TitleStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin stats tx: %w", err)
	}
	defer tx.Rollback()

	var stats models.TitleStats
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN is_read = 0 THEN 1 END),
			COUNT(CASE WHEN is_downloaded = 1 THEN 1 END),
			COUNT(*)
		FROM chapters WHERE title_id = ?`, id,
	).Scan(&stats.UnreadCount, &stats.DownloadCount, &stats.ChapterCount)
	if err != nil {
		return nil, fmt.Errorf("count chapters for title %d: %w", id, err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, title_id, name, source_order, is_read, is_downloaded
		FROM chapters
		WHERE title_id = ? AND is_read = 1
		ORDER BY source_order DESC
		LIMIT 1`, id)

	var ch models.Chapter
	err = row.Scan(&ch.ID, &ch.TitleID, &ch.Name, &ch.SourceOrder, &ch.IsRead, &ch.IsDownloaded)
	switch {
	case err == nil:
		stats.LastChapterRead = &ch
	case errors.Is(err, sql.ErrNoRows):
		// no read chapters yet
	default:
		return nil, fmt.Errorf("last read chapter for title %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetMeta returns the full key/value annotation map for a title.
func (s *Store) GetMeta(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM title_meta WHERE title_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get meta for title %d: %w", id, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta for title %d: %w", id, err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// SetMeta upserts one annotation key for a title.
func (s *Store) SetMeta(ctx context.Context, id int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO title_meta (title_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (title_id, key) DO UPDATE SET value = excluded.value`,
		id, key, value)
	if err != nil {
		return fmt.Errorf("set meta %q for title %d: %w", key, id, err)
	}
	return nil
}

// UpdatableLibraryTitleIDs lists initialized library titles whose update
// strategy allows periodic refresh.
func (s *Store) UpdatableLibraryTitleIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM titles
		WHERE in_library = 1 AND initialized = 1 AND update_strategy = ?`,
		string(models.UpdateStrategyAlwaysUpdate))
	if err != nil {
		return nil, fmt.Errorf("list updatable titles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
