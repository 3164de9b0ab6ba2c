// Package crawler orchestrates section discovery and dish extraction across
// the whole menu, with pacing between section fetches and final dedup.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/fetcher"
	"github.com/restomenu/menu-crawler/internal/menu"
	"github.com/restomenu/menu-crawler/internal/metrics"
)

// SectionSource yields the menu sections to crawl.
type SectionSource interface {
	Discover(ctx context.Context) []menu.Section
}

// DishExtractor turns one section page into dish candidates.
type DishExtractor interface {
	Extract(page []byte, section menu.Section) []menu.ScrapedDish
}

// Crawler walks every menu section and accumulates validated dish candidates.
type Crawler struct {
	sections     SectionSource
	fetcher      fetcher.PageFetcher
	extractor    DishExtractor
	pacer        Pacer
	sectionDelay time.Duration
	logger       *zap.Logger
}

// New builds a Crawler.
func New(
	sections SectionSource,
	pageFetcher fetcher.PageFetcher,
	extractor DishExtractor,
	pacer Pacer,
	sectionDelay time.Duration,
	logger *zap.Logger,
) *Crawler {
	if pacer == nil {
		pacer = TimerPacer{}
	}
	return &Crawler{
		sections:     sections,
		fetcher:      pageFetcher,
		extractor:    extractor,
		pacer:        pacer,
		sectionDelay: sectionDelay,
		logger:       logger,
	}
}

// CrawlFullMenu crawls every discovered section in order and returns the
// deduplicated candidate list. Per-section failures yield zero dishes for
// that section and the crawl continues.
func (c *Crawler) CrawlFullMenu(ctx context.Context) []menu.ScrapedDish {
	var all []menu.ScrapedDish
	sections := c.sections.Discover(ctx)
	for i, section := range sections {
		if i > 0 {
			c.pacer.Pause(ctx, c.sectionDelay)
		}
		if ctx.Err() != nil {
			break
		}
		all = append(all, c.crawlSection(ctx, section)...)
	}
	return Dedupe(all)
}

// CrawlSection crawls a single section page. When name is empty, a display
// name is derived from the URL slug.
func (c *Crawler) CrawlSection(ctx context.Context, sectionURL, name string) []menu.ScrapedDish {
	if name == "" {
		name = SectionNameFromURL(sectionURL)
	}
	dishes := c.crawlSection(ctx, menu.Section{Name: name, URL: sectionURL})
	return Dedupe(dishes)
}

func (c *Crawler) crawlSection(ctx context.Context, section menu.Section) []menu.ScrapedDish {
	resp, err := c.fetcher.Fetch(ctx, section.URL)
	if err != nil {
		c.logger.Warn("section fetch failed",
			zap.String("section", section.Name),
			zap.String("url", section.URL),
			zap.Error(err))
		metrics.ObserveSection(section.Name, "fetch_error")
		return nil
	}

	dishes := c.extractor.Extract(resp.Body, section)
	c.logger.Info("section crawled",
		zap.String("section", section.Name),
		zap.Int("dishes", len(dishes)))
	metrics.ObserveSection(section.Name, "ok")
	metrics.AddDishesScraped(len(dishes))
	return dishes
}

// Dedupe collapses candidates sharing the same lowercased name and price,
// keeping the first occurrence. Same name at a different price stays
// distinct (size variants). A final price check re-asserts the positive
// price invariant.
func Dedupe(dishes []menu.ScrapedDish) []menu.ScrapedDish {
	seen := make(map[string]struct{}, len(dishes))
	out := make([]menu.ScrapedDish, 0, len(dishes))
	for _, d := range dishes {
		if d.Price <= 0 {
			continue
		}
		key := fmt.Sprintf("%s|%.2f", strings.ToLower(d.Name), d.Price)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

// SectionNameFromURL derives a display name from the last path segment of a
// section URL, e.g. ".../goryachie-blyuda/" becomes "Goryachie Blyuda".
func SectionNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := segments[len(segments)-1]
	if slug == "" {
		return raw
	}
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		// Slugs may carry multi-byte runes, so uppercase the first
		// rune rather than the first byte.
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
