package parser

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"jax-trading-assistant/marketwire/internal/domain"
)

// headerRole classifies a table header cell.
type headerRole int

const (
	roleUnknown headerRole = iota
	roleTicker
	roleBuy
	roleSell
	roleSentiment
)

func classifyHeader(text string) headerRole {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.ReplaceAll(t, " trade", "")
	switch {
	case strings.Contains(t, "ticker"):
		return roleTicker
	case strings.Contains(t, "buy"):
		return roleBuy
	case strings.Contains(t, "sell"):
		return roleSell
	case strings.Contains(t, "sentiment"), strings.Contains(t, "bias"), strings.Contains(t, "direction"):
		return roleSentiment
	default:
		return roleUnknown
	}
}

// tableRow is one parsed <tr>: ordered cell text plus the raw style
// attribute of the ticker cell, if any, for background-color inference.
type tableRow struct {
	cells       []string
	tickerStyle string
}

// findCandidateTable walks the HTML document looking for the first <table>
// whose header row contains Ticker, Buy, and Sell columns.
func findCandidateTable(doc *html.Node) (headerRoles map[int]headerRole, rows []tableRow, found bool) {
	var table *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "table" {
			if roles, ok := tableHeaderRoles(n); ok {
				table = n
				headerRoles = roles
				found = true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if !found {
		return nil, nil, false
	}
	rows = extractRows(table)
	return headerRoles, rows, true
}

// tableHeaderRoles scans a table's first row for column roles and reports
// whether it contains at least Ticker, Buy, and Sell.
func tableHeaderRoles(table *html.Node) (map[int]headerRole, bool) {
	headerRow := firstRow(table)
	if headerRow == nil {
		return nil, false
	}
	roles := map[int]headerRole{}
	idx := 0
	seen := map[headerRole]bool{}
	for c := headerRow.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "th" && c.Data != "td") {
			continue
		}
		role := classifyHeader(textContent(c))
		roles[idx] = role
		seen[role] = true
		idx++
	}
	if seen[roleTicker] && seen[roleBuy] && seen[roleSell] {
		return roles, true
	}
	return nil, false
}

func firstRow(table *html.Node) *html.Node {
	var tr *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if tr != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "tr" {
			tr = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return tr
}

// extractRows returns every <tr> in the table after the header row.
func extractRows(table *html.Node) []tableRow {
	var trs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			trs = append(trs, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	if len(trs) <= 1 {
		return nil
	}

	rows := make([]tableRow, 0, len(trs)-1)
	for _, tr := range trs[1:] {
		var row tableRow
		cellIdx := 0
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
				continue
			}
			text := strings.TrimSpace(textContent(c))
			row.cells = append(row.cells, text)
			if cellIdx == 0 {
				row.tickerStyle = attr(c, "style")
			}
			cellIdx++
		}
		if len(row.cells) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// rowsFromTable converts raw table rows into ExtractedRow values given the
// header-role map. Rows with fewer than three populated cells are skipped
// without a diagnostic; rows with a non-parsable ticker/price or invalid
// thresholds are skipped with a diagnostic.
func rowsFromTable(category domain.Category, roles map[int]headerRole, rows []tableRow) ([]domain.ExtractedRow, []domain.Diagnostic) {
	var out []domain.ExtractedRow
	var diags []domain.Diagnostic

	for _, row := range rows {
		populated := 0
		for _, c := range row.cells {
			if strings.TrimSpace(c) != "" {
				populated++
			}
		}
		if populated < 3 {
			continue
		}

		var rawTicker, rawSentiment string
		var buy, sell decimal.Decimal
		var haveBuy, haveSell bool
		var buyErr, sellErr error

		for idx, cell := range row.cells {
			switch roles[idx] {
			case roleTicker:
				rawTicker = cell
			case roleSentiment:
				rawSentiment = cell
			case roleBuy:
				buy, buyErr = cleanNumeric(cell)
				haveBuy = buyErr == nil
			case roleSell:
				sell, sellErr = cleanNumeric(cell)
				haveSell = sellErr == nil
			}
		}

		// Sentiment glyphs beside the ticker ("MSFT ▲") are dropped from the
		// symbol; resolveSentiment still reads them from row.cells.
		ticker := domain.NormalizeTicker(strings.Map(func(r rune) rune {
			if _, ok := sentimentGlyphs[r]; ok {
				return -1
			}
			return r
		}, rawTicker))
		if !domain.ValidTicker(ticker) {
			diags = append(diags, domain.Diagnostic{Category: category, Stage: "parse", Ticker: rawTicker, Message: "invalid ticker"})
			continue
		}
		if !haveBuy || !haveSell {
			diags = append(diags, domain.Diagnostic{Category: category, Stage: "parse", Ticker: ticker, Message: "unparsable buy/sell price"})
			continue
		}

		sentiment := resolveSentiment(rawSentiment, row.tickerStyle, row.cells)
		if sentiment == "" {
			sentiment = string(domain.Neutral)
			diags = append(diags, domain.Diagnostic{Category: category, Stage: "parse", Ticker: ticker, Message: "sentiment inference failed, defaulted to NEUTRAL"})
		}

		// Threshold-ordering violations are dropped here, not left for the
		// store: ReplaceCategory is all-or-nothing, so one bad row reaching
		// it would abort the whole category's replace.
		if buy.IsNegative() || sell.IsNegative() {
			diags = append(diags, domain.Diagnostic{Category: category, Stage: "parse", Ticker: ticker, Message: "negative trade threshold"})
			continue
		}
		if buy.Equal(sell) {
			diags = append(diags, domain.Diagnostic{Category: category, Stage: "parse", Ticker: ticker, Message: "buy_trade equals sell_trade"})
			continue
		}
		if domain.Sentiment(sentiment) != domain.Bearish && !buy.LessThan(sell) {
			diags = append(diags, domain.Diagnostic{Category: category, Stage: "parse", Ticker: ticker, Message: "buy_trade must be below sell_trade for " + sentiment + " rows"})
			continue
		}

		out = append(out, domain.ExtractedRow{
			Ticker:    ticker,
			Sentiment: domain.Sentiment(sentiment),
			BuyTrade:  buy,
			SellTrade: sell,
			RawName:   rawTicker,
		})
	}

	out = collapseDuplicateTickers(out, func(r domain.ExtractedRow) string { return r.Ticker })
	return out, diags
}

// resolveSentiment applies the sentiment-inference fallback order: dedicated
// column, background-color heuristic, glyph, else "".
func resolveSentiment(dedicated, tickerStyle string, cells []string) string {
	if s := strings.ToUpper(strings.TrimSpace(dedicated)); s == "BULLISH" || s == "BEARISH" || s == "NEUTRAL" {
		return s
	}
	if s := inferSentimentFromBackground(tickerStyle); s != "" {
		return s
	}
	for _, c := range cells {
		if s := inferSentimentFromGlyph(c); s != "" {
			return s
		}
	}
	return ""
}
