// Package catalog persists crawled categories and dishes into Postgres.
// Writes are idempotent on (name, category): re-crawling the same menu
// never creates duplicate rows and never overwrites existing fields.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/menu"
	"github.com/restomenu/menu-crawler/internal/metrics"
)

// DefaultDishImage is the placeholder filename the admin UI assigns to
// dishes without a real photo; it never counts as a usable image.
const DefaultDishImage = "default_dish.jpg"

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Enqueuer registers an image URL for asynchronous download.
type Enqueuer interface {
	Enqueue(ctx context.Context, dishID int64, imageURL string) (int64, error)
}

// Writer upserts crawler output into the catalog tables.
type Writer struct {
	pool   pool
	queue  Enqueuer
	logger *zap.Logger
}

// NewWriter builds a Writer. The queue may be nil, in which case image
// backfills are not registered.
func NewWriter(p pool, queue Enqueuer, logger *zap.Logger) *Writer {
	return &Writer{pool: p, queue: queue, logger: logger}
}

type backfill struct {
	dishID   int64
	imageURL string
}

// Persist writes one crawl batch in a single transaction. Any error rolls
// the whole batch back; no partial catalog writes survive. Image backfills
// are registered with the queue only after a successful commit, each as its
// own unit of work.
func (w *Writer) Persist(ctx context.Context, dishes []menu.ScrapedDish) (menu.PersistOutcome, error) {
	var out menu.PersistOutcome

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("begin catalog batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	categoryIDs := make(map[string]int64)
	var backfills []backfill

	for _, d := range dishes {
		if d.Price <= 0 {
			out.SkippedZeroPrice++
			continue
		}

		catID, ok := categoryIDs[d.SectionName]
		if !ok {
			catID, err = resolveCategory(ctx, tx, d.SectionName)
			if err != nil {
				return menu.PersistOutcome{}, err
			}
			categoryIDs[d.SectionName] = catID
		}

		existing := menu.Dish{Name: d.Name, CategoryID: catID}
		err = tx.QueryRow(ctx,
			`SELECT id, COALESCE(image, '') FROM dishes WHERE name = $1 AND category_id = $2`,
			d.Name, catID,
		).Scan(&existing.ID, &existing.Image)
		switch {
		case err == nil:
			out.SkippedDuplicates++
			if existing.Image == "" && d.ImageURL != "" {
				backfills = append(backfills, backfill{dishID: existing.ID, imageURL: d.ImageURL})
			}
		case errors.Is(err, pgx.ErrNoRows):
			var dishID int64
			err = tx.QueryRow(ctx,
				`INSERT INTO dishes (name, description, price, category_id, is_available)
				 VALUES ($1, $2, $3, $4, TRUE)
				 RETURNING id`,
				d.Name, d.Description, d.Price, catID,
			).Scan(&dishID)
			if err != nil {
				return menu.PersistOutcome{}, fmt.Errorf("insert dish %q: %w", d.Name, err)
			}
			out.Added++
			if d.ImageURL != "" {
				backfills = append(backfills, backfill{dishID: dishID, imageURL: d.ImageURL})
			}
		default:
			return menu.PersistOutcome{}, fmt.Errorf("look up dish %q: %w", d.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return menu.PersistOutcome{}, fmt.Errorf("commit catalog batch: %w", err)
	}

	metrics.ObserveCatalogWrite("added", out.Added)
	metrics.ObserveCatalogWrite("duplicate", out.SkippedDuplicates)
	metrics.ObserveCatalogWrite("zero_price", out.SkippedZeroPrice)

	w.registerBackfills(ctx, backfills)

	w.logger.Info("catalog batch persisted",
		zap.Int("added", out.Added),
		zap.Int("duplicates", out.SkippedDuplicates),
		zap.Int("zero_price", out.SkippedZeroPrice),
		zap.Int("image_backfills", len(backfills)))
	return out, nil
}

func resolveCategory(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("look up category %q: %w", name, err)
	}
	err = tx.QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert category %q: %w", name, err)
	}
	return id, nil
}

func (w *Writer) registerBackfills(ctx context.Context, backfills []backfill) {
	if w.queue == nil {
		return
	}
	for _, b := range backfills {
		if _, err := w.queue.Enqueue(ctx, b.dishID, b.imageURL); err != nil {
			w.logger.Warn("image backfill enqueue failed",
				zap.Int64("dish_id", b.dishID),
				zap.String("image_url", b.imageURL),
				zap.Error(err))
		}
	}
}

// SetDishImage assigns a downloaded image filename to a dish.
func (w *Writer) SetDishImage(ctx context.Context, dishID int64, filename string) error {
	if _, err := w.pool.Exec(ctx,
		`UPDATE dishes SET image = $1 WHERE id = $2`, filename, dishID); err != nil {
		return fmt.Errorf("set dish image: %w", err)
	}
	return nil
}

// ImageInUse reports whether any dish row already references the filename.
func (w *Writer) ImageInUse(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := w.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dishes WHERE image = $1)`, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check image in use: %w", err)
	}
	return exists, nil
}

// RefreshCategoryImages assigns to each category the image of its first dish
// carrying a non-default image, when it differs from the current one.
// Returns the number of categories updated.
func (w *Writer) RefreshCategoryImages(ctx context.Context) (int, error) {
	rows, err := w.pool.Query(ctx, `SELECT id, COALESCE(image, '') FROM categories ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []menu.Category
	for rows.Next() {
		var c menu.Category
		if err := rows.Scan(&c.ID, &c.Image); err != nil {
			return 0, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate categories: %w", err)
	}

	updated := 0
	for _, c := range cats {
		var dishImage string
		err := w.pool.QueryRow(ctx,
			`SELECT image FROM dishes
			 WHERE category_id = $1 AND image IS NOT NULL AND image <> '' AND image <> $2
			 ORDER BY id
			 LIMIT 1`,
			c.ID, DefaultDishImage,
		).Scan(&dishImage)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return updated, fmt.Errorf("find image for category %d: %w", c.ID, err)
		}
		if dishImage == c.Image {
			continue
		}
		if _, err := w.pool.Exec(ctx,
			`UPDATE categories SET image = $1 WHERE id = $2`, dishImage, c.ID); err != nil {
			return updated, fmt.Errorf("update category %d image: %w", c.ID, err)
		}
		updated++
	}
	return updated, nil
}
