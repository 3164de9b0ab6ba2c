// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container for commands and the HTTP
// server.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/catalog"
	"github.com/restomenu/menu-crawler/internal/clock/system"
	"github.com/restomenu/menu-crawler/internal/config"
	"github.com/restomenu/menu-crawler/internal/crawler"
	"github.com/restomenu/menu-crawler/internal/database"
	"github.com/restomenu/menu-crawler/internal/extractor"
	"github.com/restomenu/menu-crawler/internal/fetcher"
	"github.com/restomenu/menu-crawler/internal/imagequeue"
	"github.com/restomenu/menu-crawler/internal/images"
	"github.com/restomenu/menu-crawler/internal/logging"
	"github.com/restomenu/menu-crawler/internal/menu"
	"github.com/restomenu/menu-crawler/internal/metrics"
	"github.com/restomenu/menu-crawler/internal/sections"
)

// App wires configuration, storage and the pipeline components together.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	pool      *pgxpool.Pool
	crawler   *crawler.Crawler
	writer    *catalog.Writer
	queue     *imagequeue.Store
	processor *imagequeue.Processor
}

// New builds the full service graph from configuration. The caller owns the
// returned App and must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()

	pool, err := database.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pageFetcher := fetcher.New(fetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.CrawlTimeout(),
	})
	discovery := sections.NewDiscovery(pageFetcher, cfg.Crawler.BaseURL, logger)
	extract := extractor.New(logger)
	menuCrawler := crawler.New(discovery, pageFetcher, extract, nil, cfg.SectionDelay(), logger)

	queue := imagequeue.NewStore(pool, cfg.Images.MaxRetries, cfg.Retention(), system.New(), logger)
	writer := catalog.NewWriter(pool, queue, logger)

	assets, err := images.NewAssetStore(cfg.Images.Dir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init asset store: %w", err)
	}
	imageFetcher := images.NewFetcher(assets, cfg.Crawler.UserAgent,
		cfg.Images.MaxBytes, cfg.ImageTimeout(), logger)
	processor := imagequeue.NewProcessor(queue, imageFetcher, writer, nil,
		cfg.DownloadDelay(), logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		crawler:   menuCrawler,
		writer:    writer,
		queue:     queue,
		processor: processor,
	}, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Close releases the database pool and flushes the logger.
func (a *App) Close() {
	a.pool.Close()
	_ = a.logger.Sync()
}

// EnsureSchema creates the catalog tables when missing.
func (a *App) EnsureSchema(ctx context.Context) error {
	return database.EnsureSchema(ctx, a.pool)
}

// SeedCatalog loads the starter categories and dishes.
func (a *App) SeedCatalog(ctx context.Context) error {
	return a.writer.Seed(ctx)
}

// CrawlAndPersist runs a crawl and writes the results. An empty sectionURL
// crawls the full menu; otherwise only the named section is visited.
func (a *App) CrawlAndPersist(ctx context.Context, sectionURL, sectionName string) (menu.CrawlOutcome, error) {
	var dishes []menu.ScrapedDish
	if sectionURL == "" {
		dishes = a.crawler.CrawlFullMenu(ctx)
	} else {
		dishes = a.crawler.CrawlSection(ctx, sectionURL, sectionName)
	}

	persisted, err := a.writer.Persist(ctx, dishes)
	if err != nil {
		return menu.CrawlOutcome{}, fmt.Errorf("persist crawl results: %w", err)
	}
	return menu.CrawlOutcome{
		DishesFound: len(dishes),
		Added:       persisted.Added,
		Skipped:     persisted.SkippedDuplicates + persisted.SkippedZeroPrice,
	}, nil
}

// ProcessImageQueue drains up to limit queued downloads.
func (a *App) ProcessImageQueue(ctx context.Context, limit int, cleanup bool) (menu.ProcessOutcome, error) {
	return a.processor.Process(ctx, limit, cleanup)
}

// QueueStats reports queue item counts per status.
func (a *App) QueueStats(ctx context.Context) (menu.QueueStats, error) {
	return a.queue.Stats(ctx)
}

// ClearImageQueue removes every queue item.
func (a *App) ClearImageQueue(ctx context.Context) (int64, error) {
	return a.queue.Clear(ctx)
}

// RefreshCategoryImages recomputes category cover images from their dishes.
func (a *App) RefreshCategoryImages(ctx context.Context) (int, error) {
	return a.writer.RefreshCategoryImages(ctx)
}
