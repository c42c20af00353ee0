package parser

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/ocr"
	"jax-trading-assistant/marketwire/internal/source"
)

// Parser converts a fetched message into the rows the Extractor
// Orchestrator will reconcile into the Store.
type Parser interface {
	Parse(ctx context.Context, msg source.Message) ([]domain.ExtractedRow, []domain.Diagnostic)
}

// TableParser implements the Daily, ETF, and Ideas parsers: each locates
// the HTML table whose header contains Ticker/Buy/Sell and applies the
// shared row-extraction rules. They differ only in the category tag they
// stamp onto extracted rows.
type TableParser struct {
	Category domain.Category
}

func NewDailyParser() *TableParser { return &TableParser{Category: domain.CategoryDaily} }
func NewETFParser() *TableParser   { return &TableParser{Category: domain.CategoryETFs} }
func NewIdeasParser() *TableParser { return &TableParser{Category: domain.CategoryIdeas} }

// sanitizer strips scripts, trackers, and everything else newsletter HTML
// drags along, keeping only table structure and the style attribute the
// background-color sentiment heuristic reads.
var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowTables()
	p.AllowAttrs("style").OnElements("table", "tr", "td", "th")
	p.AllowStyles("background-color").Globally()
	return p
}()

func (p *TableParser) Parse(ctx context.Context, msg source.Message) ([]domain.ExtractedRow, []domain.Diagnostic) {
	for _, htmlPart := range msg.HTMLParts {
		doc, err := html.Parse(strings.NewReader(sanitizer.Sanitize(htmlPart)))
		if err != nil {
			continue
		}
		roles, rows, found := findCandidateTable(doc)
		if !found {
			continue
		}
		return rowsFromTable(p.Category, roles, rows)
	}
	return nil, []domain.Diagnostic{{
		Category: p.Category,
		Stage:    "parse",
		Message:  "no table with Ticker/Buy/Sell header found in message",
	}}
}

// CryptoParser implements the Crypto parser: it loads the inline images at
// fixed positional indices (the "crypto levels" and "crypto stocks"
// screenshots in the publisher's fixed layout), OCRs each, and parses the
// resulting table text with the same row rule as TableParser, then
// normalizes pure-crypto symbols to their exchange-suffixed form.
type CryptoParser struct {
	ImageIndices []int
	OCR          ocr.Provider
}

// NewCryptoParser builds a CryptoParser. indices defaults to {6, 14} per
// the publisher's current layout but is a constructor
// parameter, not a literal, so a layout change is a wiring change only.
func NewCryptoParser(provider ocr.Provider, indices ...int) *CryptoParser {
	if len(indices) == 0 {
		indices = []int{6, 14}
	}
	return &CryptoParser{ImageIndices: indices, OCR: provider}
}

func (p *CryptoParser) Parse(ctx context.Context, msg source.Message) ([]domain.ExtractedRow, []domain.Diagnostic) {
	byIndex := make(map[int]source.Image, len(msg.InlineImages))
	for _, img := range msg.InlineImages {
		byIndex[img.Index] = img
	}

	var allRows []domain.ExtractedRow
	var diags []domain.Diagnostic

	for _, idx := range p.ImageIndices {
		img, ok := byIndex[idx]
		if !ok {
			diags = append(diags, domain.Diagnostic{
				Category: domain.CategoryDigitalAssets,
				Stage:    "ocr",
				Message:  "expected inline image not present at index",
			})
			continue
		}
		table, err := p.OCR.OCR(ctx, img.Data, "crypto-watchlist")
		if err != nil {
			diags = append(diags, domain.Diagnostic{
				Category: domain.CategoryDigitalAssets,
				Stage:    "ocr",
				Message:  err.Error(),
			})
			continue
		}
		rows, rowDiags := rowsFromTableText(table)
		allRows = append(allRows, rows...)
		diags = append(diags, rowDiags...)
	}

	for i := range allRows {
		allRows[i].Ticker = normalizeCryptoSymbol(allRows[i].Ticker)
	}
	allRows = collapseDuplicateTickers(allRows, func(r domain.ExtractedRow) string { return r.Ticker })
	return allRows, diags
}

// rowsFromTableText applies the Daily-parser row rule to OCR'd table text:
// first row is the header, header-role matching same as the HTML path.
func rowsFromTableText(table ocr.TableText) ([]domain.ExtractedRow, []domain.Diagnostic) {
	if len(table) < 2 {
		return nil, nil
	}
	roles := map[int]headerRole{}
	for idx, cell := range table[0] {
		roles[idx] = classifyHeader(cell)
	}
	rows := make([]tableRow, 0, len(table)-1)
	for _, raw := range table[1:] {
		rows = append(rows, tableRow{cells: raw})
	}
	return rowsFromTable(domain.CategoryDigitalAssets, roles, rows)
}
