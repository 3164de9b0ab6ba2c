// Package extractor turns the HTML of one menu section page into dish
// candidates. It applies an ordered cascade of structural strategies and
// takes the first one that yields any results.
package extractor

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/menu"
	"github.com/restomenu/menu-crawler/internal/normalize"
)

// placeholderName is the sentinel the source site renders for unnamed items.
const placeholderName = "Без названия"

// Keyword sets for the loose class-substring matching of the wrapper strategy.
var (
	nameKeywords  = []string{"title", "name"}
	priceKeywords = []string{"price", "cost"}
	descKeywords  = []string{"desc", "weight"}
)

type strategy struct {
	name string
	fn   func(doc *goquery.Document, section menu.Section) []menu.ScrapedDish
}

// strategies run in order; the first non-empty result set wins outright,
// later strategies are never merged in.
var strategies = []strategy{
	{name: "product-line", fn: extractProductLines},
	{name: "wrapper", fn: extractWrappers},
	{name: "generic", fn: extractGeneric},
}

// Extractor extracts dish candidates from section pages.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses the page and runs the strategy cascade. A page that matches
// no strategy yields an empty slice, never an error.
func (e *Extractor) Extract(page []byte, section menu.Section) []menu.ScrapedDish {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		e.logger.Warn("section page parse failed",
			zap.String("section", section.Name), zap.Error(err))
		return nil
	}

	for _, s := range strategies {
		dishes := s.fn(doc, section)
		if len(dishes) > 0 {
			e.logger.Debug("extraction strategy matched",
				zap.String("strategy", s.name),
				zap.String("section", section.Name),
				zap.Int("dishes", len(dishes)))
			return dishes
		}
	}
	return nil
}

// extractProductLines handles the primary theme markup: paired product-line
// containers, each holding one or two product-col columns.
func extractProductLines(doc *goquery.Document, section menu.Section) []menu.ScrapedDish {
	var out []menu.ScrapedDish
	doc.Find("div.product-line").Each(func(_ int, line *goquery.Selection) {
		cols := line.Find("div.product-col")
		if cols.Length() == 0 {
			// Single-column lines carry the fields directly.
			cols = line
		}
		cols.Each(func(_ int, col *goquery.Selection) {
			name := col.Find(".product-head").First().Text()
			price := normalize.ParsePrice(col.Find(".product-price").First().Text())
			desc := col.Find(".product-weight").First().Text()
			img := imageSrc(col.Find("img").First())

			if dish, ok := buildCandidate(name, price, desc, img, section); ok {
				out = append(out, dish)
			}
		})
	})
	return out
}

// extractWrappers handles the alternate theme markup: generically classed
// wrapper containers, matched by case-insensitive class-name substrings.
func extractWrappers(doc *goquery.Document, section menu.Section) []menu.ScrapedDish {
	var out []menu.ScrapedDish
	doc.Find("div").Each(func(_ int, wrap *goquery.Selection) {
		if !classContains(wrap, "wrapper") {
			return
		}
		// Only leaf wrappers: nested wrappers would double-count.
		if wrap.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return classContains(s, "wrapper")
		}).Length() > 0 {
			return
		}

		name := textByClassKeywords(wrap, nameKeywords)
		price := normalize.ParsePrice(textByClassKeywords(wrap, priceKeywords))
		desc := textByClassKeywords(wrap, descKeywords)
		img := imageSrc(wrap.Find("img").First())

		if dish, ok := buildCandidate(name, price, desc, img, section); ok {
			out = append(out, dish)
		}
	})
	return out
}

// extractGeneric is the last-resort strategy: flatten each leaf block's text
// into lines, take the first line as the name, the first positive-price line
// as the price, and join the rest as the description.
func extractGeneric(doc *goquery.Document, section menu.Section) []menu.ScrapedDish {
	var out []menu.ScrapedDish
	doc.Find("div, li, article").Each(func(_ int, block *goquery.Selection) {
		if block.ChildrenFiltered("div, li, article").Length() > 0 {
			return
		}
		lines := textLines(block)
		if len(lines) < 2 {
			return
		}

		name := lines[0]
		var price float64
		var descParts []string
		for _, ln := range lines[1:] {
			if price == 0 {
				if p := normalize.ParsePrice(ln); p > 0 {
					price = p
					continue
				}
			}
			descParts = append(descParts, ln)
		}
		img := imageSrc(block.Find("img").First())

		if dish, ok := buildCandidate(name, price, strings.Join(descParts, " "), img, section); ok {
			out = append(out, dish)
		}
	})
	return out
}

// buildCandidate applies the validation shared by every strategy: cleaned
// name of at least two runes and not the placeholder, strictly positive
// price, field truncation, and absolute image URL resolution.
func buildCandidate(rawName string, price float64, rawDesc, rawImg string, section menu.Section) (menu.ScrapedDish, bool) {
	name := normalize.CleanText(rawName)
	if len([]rune(name)) < 2 || strings.EqualFold(name, placeholderName) {
		return menu.ScrapedDish{}, false
	}
	if price <= 0 {
		return menu.ScrapedDish{}, false
	}

	return menu.ScrapedDish{
		Name:        truncateRunes(name, menu.MaxNameLen),
		Price:       normalize.Round2(price),
		Description: truncateDescription(normalize.CleanText(rawDesc)),
		ImageURL:    resolveImageURL(rawImg, section.URL),
		SectionName: section.Name,
		SectionURL:  section.URL,
	}, true
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func truncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= menu.MaxDescriptionLen {
		return s
	}
	return string(r[:menu.MaxDescriptionLen-3]) + "..."
}

// resolveImageURL makes src absolute against the section URL and rejects
// pseudo-URLs. Returns "" when no usable URL remains.
func resolveImageURL(src, sectionURL string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	lower := strings.ToLower(src)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	base, err := url.Parse(sectionURL)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func imageSrc(img *goquery.Selection) string {
	if img.Length() == 0 {
		return ""
	}
	// Lazy-loaded themes put the real URL in data-src.
	if v, ok := img.Attr("data-src"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	v, _ := img.Attr("src")
	return v
}

func classContains(s *goquery.Selection, needle string) bool {
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(class), needle)
}

// textByClassKeywords returns the text of the first descendant whose class
// attribute contains any of the keywords, case-insensitively.
func textByClassKeywords(root *goquery.Selection, keywords []string) string {
	var found string
	root.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		if !ok {
			return true
		}
		lower := strings.ToLower(class)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				found = s.Text()
				return false
			}
		}
		return true
	})
	return found
}

// textLines flattens a block's text into cleaned, non-empty lines.
func textLines(block *goquery.Selection) []string {
	var out []string
	for _, ln := range strings.Split(block.Text(), "\n") {
		if cleaned := normalize.CleanText(ln); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
