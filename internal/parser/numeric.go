// Package parser implements the per-category newsletter parsers: Daily,
// ETF, Ideas (HTML table extraction) and Crypto (fixed positional OCR
// images). All four share numeric cleanup and sentiment-inference helpers.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyStrip = regexp.MustCompile(`[$,\s]`)
	unicodeMinus  = strings.NewReplacer("−", "-", "–", "-")
)

// cleanNumeric strips currency symbols, thousands separators, and
// whitespace, normalizes unicode minus signs, and parses the remainder as
// a decimal. Returns an error for anything that isn't a clean number.
func cleanNumeric(raw string) (decimal.Decimal, error) {
	s := unicodeMinus.Replace(raw)
	s = currencyStrip.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Decimal{}, strconv.ErrSyntax
	}
	return decimal.NewFromString(s)
}

var sentimentGlyphs = map[rune]string{
	'▲': "BULLISH",
	'↑': "BULLISH",
	'▼': "BEARISH",
	'↓': "BEARISH",
}

// inferSentimentFromGlyph scans text for an up/down glyph adjacent to the
// ticker and returns the inferred sentiment, or "" if none found.
func inferSentimentFromGlyph(text string) string {
	for _, r := range text {
		if s, ok := sentimentGlyphs[r]; ok {
			return s
		}
	}
	return ""
}

var bgColorPattern = regexp.MustCompile(`background-color:\s*#([0-9a-fA-F]{6}|[0-9a-fA-F]{3})`)

// inferSentimentFromBackground parses a `style="background-color: #rrggbb"`
// attribute value and applies a green/red heuristic: green-dominant implies
// BULLISH, red-dominant implies BEARISH, anything else is inconclusive.
func inferSentimentFromBackground(styleAttr string) string {
	m := bgColorPattern.FindStringSubmatch(styleAttr)
	if m == nil {
		return ""
	}
	hex := m[1]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	r, errR := strconv.ParseInt(hex[0:2], 16, 0)
	g, errG := strconv.ParseInt(hex[2:4], 16, 0)
	if errR != nil || errG != nil {
		return ""
	}
	switch {
	case g > r+20:
		return "BULLISH"
	case r > g+20:
		return "BEARISH"
	default:
		return ""
	}
}

// collapseDuplicateTickers keeps the last occurrence of each ticker, per
// publisher convention, preserving the order of first appearance.
func collapseDuplicateTickers[T any](rows []T, tickerOf func(T) string) []T {
	order := make([]string, 0, len(rows))
	last := make(map[string]T, len(rows))
	for _, row := range rows {
		t := tickerOf(row)
		if _, seen := last[t]; !seen {
			order = append(order, t)
		}
		last[t] = row
	}
	out := make([]T, 0, len(order))
	for _, t := range order {
		out = append(out, last[t])
	}
	return out
}
