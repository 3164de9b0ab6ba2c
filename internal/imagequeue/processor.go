package imagequeue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/crawler"
	"github.com/restomenu/menu-crawler/internal/menu"
	"github.com/restomenu/menu-crawler/internal/metrics"
)

// Queue is the subset of Store the processor drives.
type Queue interface {
	Due(ctx context.Context, limit int) ([]menu.ImageQueueItem, error)
	MarkDownloading(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) error
	MarkSkipped(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
	Cleanup(ctx context.Context) (int64, error)
}

// ImageFetcher downloads and validates a single image.
type ImageFetcher interface {
	// DerivedFilename reports the filename a successful fetch of url would
	// produce, or "" when it cannot be determined without the response.
	DerivedFilename(url string) string
	// Exists reports whether the filename is already materialized on disk.
	Exists(filename string) bool
	Fetch(ctx context.Context, url string) (string, error)
}

// DishStore is the catalog surface the processor updates.
type DishStore interface {
	SetDishImage(ctx context.Context, dishID int64, filename string) error
	ImageInUse(ctx context.Context, filename string) (bool, error)
}

// Processor drains the image queue one item at a time.
type Processor struct {
	queue   Queue
	fetcher ImageFetcher
	dishes  DishStore
	pacer   crawler.Pacer
	delay   time.Duration
	logger  *zap.Logger
}

// NewProcessor builds a Processor. delay is the pause between successive
// downloads.
func NewProcessor(
	queue Queue,
	fetcher ImageFetcher,
	dishes DishStore,
	pacer crawler.Pacer,
	delay time.Duration,
	logger *zap.Logger,
) *Processor {
	if pacer == nil {
		pacer = crawler.TimerPacer{}
	}
	return &Processor{
		queue:   queue,
		fetcher: fetcher,
		dishes:  dishes,
		pacer:   pacer,
		delay:   delay,
		logger:  logger,
	}
}

// Process drains up to limit due items. When cleanup is set, expired items
// are swept first. Each item is handled in isolation: any failure marks that
// item failed and processing moves on, so one bad job never aborts the batch.
func (p *Processor) Process(ctx context.Context, limit int, cleanup bool) (menu.ProcessOutcome, error) {
	var out menu.ProcessOutcome

	if cleanup {
		if _, err := p.queue.Cleanup(ctx); err != nil {
			p.logger.Warn("queue cleanup failed", zap.Error(err))
		}
	}

	items, err := p.queue.Due(ctx, limit)
	if err != nil {
		return out, err
	}
	out.Total = len(items)

	for i, item := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if i > 0 {
			p.pacer.Pause(ctx, p.delay)
		}
		switch p.processItem(ctx, item) {
		case itemCompleted:
			out.Downloaded++
		case itemSkipped:
			out.Skipped++
		case itemFailed:
			out.Failed++
		}
	}

	p.logger.Info("image queue batch processed",
		zap.Int("total", out.Total),
		zap.Int("downloaded", out.Downloaded),
		zap.Int("skipped", out.Skipped),
		zap.Int("failed", out.Failed))
	return out, nil
}

type itemResult int

const (
	itemCompleted itemResult = iota
	itemSkipped
	itemFailed
)

func (p *Processor) processItem(ctx context.Context, item menu.ImageQueueItem) itemResult {
	log := p.logger.With(
		zap.Int64("item_id", item.ID),
		zap.Int64("dish_id", item.DishID),
		zap.String("image_url", item.ImageURL))

	if err := p.queue.MarkDownloading(ctx, item.ID); err != nil {
		log.Warn("mark downloading failed", zap.Error(err))
		return p.fail(ctx, item, log)
	}

	// The file may already be on disk, or another dish row may already
	// reference it, from an earlier run of the same URL. No network call
	// in either case.
	if name := p.fetcher.DerivedFilename(item.ImageURL); name != "" {
		if p.fetcher.Exists(name) {
			return p.skip(ctx, item, name, log)
		}
		inUse, err := p.dishes.ImageInUse(ctx, name)
		if err != nil {
			log.Warn("image in-use check failed", zap.Error(err))
			return p.fail(ctx, item, log)
		}
		if inUse {
			return p.skip(ctx, item, name, log)
		}
	}

	filename, err := p.fetcher.Fetch(ctx, item.ImageURL)
	if err != nil {
		log.Warn("image fetch failed", zap.Error(err))
		return p.fail(ctx, item, log)
	}

	if err := p.dishes.SetDishImage(ctx, item.DishID, filename); err != nil {
		log.Warn("set dish image failed", zap.Error(err))
		return p.fail(ctx, item, log)
	}
	if err := p.queue.MarkCompleted(ctx, item.ID); err != nil {
		log.Warn("mark completed failed", zap.Error(err))
	}
	metrics.ObserveImage("downloaded")
	log.Debug("image downloaded", zap.String("filename", filename))
	return itemCompleted
}

func (p *Processor) skip(ctx context.Context, item menu.ImageQueueItem, filename string, log *zap.Logger) itemResult {
	if err := p.dishes.SetDishImage(ctx, item.DishID, filename); err != nil {
		log.Warn("set dish image failed", zap.Error(err))
		return p.fail(ctx, item, log)
	}
	if err := p.queue.MarkSkipped(ctx, item.ID); err != nil {
		log.Warn("mark skipped failed", zap.Error(err))
	}
	metrics.ObserveImage("skipped")
	return itemSkipped
}

func (p *Processor) fail(ctx context.Context, item menu.ImageQueueItem, log *zap.Logger) itemResult {
	if err := p.queue.MarkFailed(ctx, item.ID); err != nil {
		log.Warn("mark failed failed", zap.Error(err))
	}
	metrics.ObserveImage("failed")
	return itemFailed
}
