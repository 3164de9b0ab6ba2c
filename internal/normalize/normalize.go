// Package normalize cleans raw scraped strings into canonical text and prices.
package normalize

import (
	"math"
	"strconv"
	"strings"
)

// CleanText collapses whitespace runs to single spaces, strips C0/C1 control
// characters, and trims both ends. Empty input yields an empty string.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ParsePrice extracts a non-negative decimal price from arbitrary text.
// When both '.' and ',' are present, ',' is treated as a thousands separator;
// a lone ',' is treated as the decimal point. Extra dots are folded into the
// integer part. Any parse failure yields 0, which callers must treat as
// "no usable price".
func ParsePrice(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	// Currency markers like "руб." leave a stray trailing dot behind; edge
	// separators carry no positional meaning either way.
	s := strings.Trim(b.String(), ".,")
	if s == "" {
		return 0
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}

	if strings.Count(s, ".") > 1 {
		parts := strings.Split(s, ".")
		s = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return Round2(v)
}

// Round2 rounds a price to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
