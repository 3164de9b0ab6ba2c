// Package sections resolves the list of menu category pages from the
// source site's navigation, with a static fallback list.
package sections

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/fetcher"
	"github.com/restomenu/menu-crawler/internal/menu"
	"github.com/restomenu/menu-crawler/internal/normalize"
)

// minSections is the floor below which navigation extraction is considered
// broken (selector drift, empty page) and the static list takes over.
const minSections = 5

// navSelector matches the anchor elements of the site's navigation blocks.
const navSelector = "ul.menu a[href], nav a[href], .main-menu a[href], .catalog-menu a[href]"

// fallbackSections is the hand-maintained category list used whenever the
// live navigation cannot be trusted. Paths are relative to the base URL.
var fallbackSections = []menu.Section{
	{Name: "Пицца", URL: "menu/picca/"},
	{Name: "Роллы", URL: "menu/rolly/"},
	{Name: "Суши", URL: "menu/sushi/"},
	{Name: "Салаты", URL: "menu/salaty/"},
	{Name: "Горячие блюда", URL: "menu/goryachie-blyuda/"},
	{Name: "Бургеры", URL: "menu/burgery/"},
	{Name: "Закуски", URL: "menu/zakuski/"},
	{Name: "Напитки", URL: "menu/napitki/"},
	{Name: "Десерты", URL: "menu/deserty/"},
}

// skippedHrefMarkers disqualify administrative and non-navigational links.
var skippedHrefMarkers = []string{"admin", "login", "logout", "cart", "account", "javascript:", "mailto:", "tel:"}

// Discovery finds menu sections on the source site.
type Discovery struct {
	fetcher fetcher.PageFetcher
	baseURL string
	logger  *zap.Logger
}

// NewDiscovery builds a Discovery rooted at baseURL.
func NewDiscovery(f fetcher.PageFetcher, baseURL string, logger *zap.Logger) *Discovery {
	return &Discovery{fetcher: f, baseURL: baseURL, logger: logger}
}

// Discover returns the ordered, URL-deduplicated list of menu sections.
// It never fails: any fetch or parse problem yields the static fallback
// list so a crawl always has a known-good floor.
func (d *Discovery) Discover(ctx context.Context) []menu.Section {
	resp, err := d.fetcher.Fetch(ctx, d.baseURL)
	if err != nil {
		d.logger.Warn("homepage fetch failed, using fallback sections",
			zap.String("url", d.baseURL), zap.Error(err))
		return d.Fallback()
	}

	found := d.fromNavigation(resp.Body)
	if len(found) < minSections {
		d.logger.Warn("navigation yielded too few sections, using fallback",
			zap.Int("found", len(found)))
		return d.Fallback()
	}
	return found
}

// Fallback returns the static section list resolved against the base URL.
func (d *Discovery) Fallback() []menu.Section {
	base, err := url.Parse(d.baseURL)
	if err != nil {
		return append([]menu.Section(nil), fallbackSections...)
	}
	out := make([]menu.Section, 0, len(fallbackSections))
	for _, s := range fallbackSections {
		ref, err := url.Parse(s.URL)
		if err != nil {
			continue
		}
		out = append(out, menu.Section{Name: s.Name, URL: base.ResolveReference(ref).String()})
	}
	return out
}

func (d *Discovery) fromNavigation(page []byte) []menu.Section {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		d.logger.Warn("homepage parse failed", zap.Error(err))
		return nil
	}

	base, _ := url.Parse(d.baseURL)
	seen := make(map[string]struct{})
	var out []menu.Section

	doc.Find(navSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		for _, marker := range skippedHrefMarkers {
			if strings.Contains(lower, marker) {
				return
			}
		}
		name := normalize.CleanText(a.Text())
		if name == "" {
			return
		}
		abs := href
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				abs = base.ResolveReference(ref).String()
			}
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, menu.Section{Name: name, URL: abs})
	})

	return out
}
