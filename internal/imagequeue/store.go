// Package imagequeue maintains the durable download queue for dish images.
// The image_queue table is the single source of truth for "does this dish
// still need an image fetch"; every state transition is its own statement
// so a failure on one item never disturbs its siblings.
package imagequeue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/menu"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Clock returns the current time; the cleanup sweep ages items against it.
type Clock interface {
	Now() time.Time
}

// Store provides queue operations over the image_queue table.
type Store struct {
	pool       pool
	maxRetries int
	retention  time.Duration
	clock      Clock
	logger     *zap.Logger
}

// NewStore builds a Store. maxRetries bounds how often a failed item may be
// revived; retention is the cleanup window for completed and exhausted items.
func NewStore(p pool, maxRetries int, retention time.Duration, clock Clock, logger *zap.Logger) *Store {
	return &Store{pool: p, maxRetries: maxRetries, retention: retention, clock: clock, logger: logger}
}

// Enqueue registers an image URL for a dish. The (dish_id, image_url) pair
// is unique: a failed entry with retries left is reset to pending and its
// retry_count incremented, any other existing entry is returned unchanged,
// and only a genuinely new pair inserts a row.
func (s *Store) Enqueue(ctx context.Context, dishID int64, imageURL string) (int64, error) {
	var (
		id         int64
		status     string
		retryCount int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, retry_count FROM image_queue WHERE dish_id = $1 AND image_url = $2`,
		dishID, imageURL,
	).Scan(&id, &status, &retryCount)
	switch {
	case err == nil:
		if menu.ItemStatus(status) == menu.StatusFailed && retryCount < s.maxRetries {
			if _, err := s.pool.Exec(ctx,
				`UPDATE image_queue
				 SET status = $1, retry_count = retry_count + 1, updated_at = now()
				 WHERE id = $2`,
				string(menu.StatusPending), id); err != nil {
				return 0, fmt.Errorf("revive queue item %d: %w", id, err)
			}
			s.logger.Debug("queue item revived",
				zap.Int64("id", id),
				zap.Int64("dish_id", dishID),
				zap.Int("retry_count", retryCount+1))
		}
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		err = s.pool.QueryRow(ctx,
			`INSERT INTO image_queue (dish_id, image_url, status, priority)
			 VALUES ($1, $2, $3, 1)
			 RETURNING id`,
			dishID, imageURL, string(menu.StatusPending),
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("enqueue image for dish %d: %w", dishID, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("look up queue item for dish %d: %w", dishID, err)
	}
}

// Due returns up to limit items eligible for processing, lowest priority
// value first, oldest first. Failed items whose retries are exhausted are
// excluded; they wait for the cleanup sweep.
func (s *Store) Due(ctx context.Context, limit int) ([]menu.ImageQueueItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dish_id, image_url, status, priority, retry_count, created_at, updated_at
		 FROM image_queue
		 WHERE status = 'pending' OR (status = 'failed' AND retry_count < $1)
		 ORDER BY priority ASC, created_at ASC
		 LIMIT $2`,
		s.maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("select due queue items: %w", err)
	}
	defer rows.Close()

	var items []menu.ImageQueueItem
	for rows.Next() {
		var it menu.ImageQueueItem
		if err := rows.Scan(&it.ID, &it.DishID, &it.ImageURL, &it.Status,
			&it.Priority, &it.RetryCount, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// MarkDownloading transitions an item to downloading.
func (s *Store) MarkDownloading(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, menu.StatusDownloading)
}

// MarkCompleted transitions an item to completed.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, menu.StatusCompleted)
}

// MarkSkipped transitions an item to skipped.
func (s *Store) MarkSkipped(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, menu.StatusSkipped)
}

// MarkFailed transitions an item to failed and burns one retry.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE image_queue
		 SET status = $1, retry_count = retry_count + 1, updated_at = now()
		 WHERE id = $2`,
		string(menu.StatusFailed), id); err != nil {
		return fmt.Errorf("mark queue item %d failed: %w", id, err)
	}
	return nil
}

func (s *Store) setStatus(ctx context.Context, id int64, status menu.ItemStatus) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE image_queue SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id); err != nil {
		return fmt.Errorf("mark queue item %d %s: %w", id, status, err)
	}
	return nil
}

// Cleanup deletes completed items older than the retention window and failed
// items that have exhausted their retries and aged past that same window.
// Returns the number of rows removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.retention)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM image_queue
		 WHERE (status = 'completed' AND updated_at < $1)
		    OR (status = 'failed' AND retry_count >= $2 AND updated_at < $1)`,
		cutoff, s.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("cleanup image queue: %w", err)
	}
	removed := tag.RowsAffected()
	if removed > 0 {
		s.logger.Info("image queue cleanup", zap.Int64("removed", removed))
	}
	return removed, nil
}

// Stats counts queue items per status.
func (s *Store) Stats(ctx context.Context) (menu.QueueStats, error) {
	var stats menu.QueueStats
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM image_queue GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("count queue items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return menu.QueueStats{}, fmt.Errorf("scan queue count: %w", err)
		}
		stats.Total += count
		switch menu.ItemStatus(status) {
		case menu.StatusPending:
			stats.Pending = count
		case menu.StatusDownloading:
			stats.Downloading = count
		case menu.StatusCompleted:
			stats.Completed = count
		case menu.StatusFailed:
			stats.Failed = count
		case menu.StatusSkipped:
			stats.Skipped = count
		}
	}
	if err := rows.Err(); err != nil {
		return menu.QueueStats{}, fmt.Errorf("iterate queue counts: %w", err)
	}
	return stats, nil
}

// Clear removes every item from the queue regardless of status.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM image_queue`)
	if err != nil {
		return 0, fmt.Errorf("clear image queue: %w", err)
	}
	return tag.RowsAffected(), nil
}
