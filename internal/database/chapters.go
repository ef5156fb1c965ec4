package database

import (
	"context"
	"fmt"

	"mangavault/models"
)

// InsertChapter stores a chapter row and assigns its ID. The chapter sync
// pipeline owns chapter contents; the library core mostly reads them.
func (s *Store) InsertChapter(ctx context.Context, ch *models.Chapter) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (title_id, name, source_order, is_read, is_downloaded)
		VALUES (?, ?, ?, ?, ?)`,
		ch.TitleID, ch.Name, ch.SourceOrder, ch.IsRead, ch.IsDownloaded)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	ch.ID, err = res.LastInsertId()
	return err
}

// LatestReadOrders maps each title to the highest source_order among its read
// chapters. Titles with no read chapters are absent from the result.
func (s *Store) LatestReadOrders(ctx context.Context, titleIDs []int64) (map[int64]int64, error) {
	if len(titleIDs) == 0 {
		return map[int64]int64{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT title_id, MAX(source_order)
		FROM chapters
		WHERE title_id IN (`+placeholders(len(titleIDs))+`) AND is_read = 1
		GROUP BY title_id`,
		int64Args(titleIDs)...)
	if err != nil {
		return nil, fmt.Errorf("latest read orders: %w", err)
	}
	defer rows.Close()

	orders := make(map[int64]int64)
	for rows.Next() {
		var titleID, order int64
		if err := rows.Scan(&titleID, &order); err != nil {
			return nil, err
		}
		orders[titleID] = order
	}
	return orders, rows.Err()
}

// UnreadChaptersByTitle groups the unread chapters of each title, ordered by
// source_order descending (newest first).
func (s *Store) UnreadChaptersByTitle(ctx context.Context, titleIDs []int64) (map[int64][]models.Chapter, error) {
	if len(titleIDs) == 0 {
		return map[int64][]models.Chapter{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title_id, name, source_order, is_read, is_downloaded
		FROM chapters
		WHERE title_id IN (`+placeholders(len(titleIDs))+`) AND is_read = 0
		ORDER BY source_order DESC`,
		int64Args(titleIDs)...)
	if err != nil {
		return nil, fmt.Errorf("unread chapters: %w", err)
	}
	defer rows.Close()

	grouped := make(map[int64][]models.Chapter)
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.TitleID, &ch.Name, &ch.SourceOrder, &ch.IsRead, &ch.IsDownloaded); err != nil {
			return nil, err
		}
		grouped[ch.TitleID] = append(grouped[ch.TitleID], ch)
	}
	return grouped, rows.Err()
}

// ChaptersByIDs fetches chapter rows by id, in no particular order.
func (s *Store) ChaptersByIDs(ctx context.Context, ids []int64) ([]models.Chapter, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title_id, name, source_order, is_read, is_downloaded
		FROM chapters
		WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("chapters by ids: %w", err)
	}
	defer rows.Close()

	var chapters []models.Chapter
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.TitleID, &ch.Name, &ch.SourceOrder, &ch.IsRead, &ch.IsDownloaded); err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}
