package parser

import (
	"context"
	"testing"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/ocr"
	"jax-trading-assistant/marketwire/internal/source"
	"jax-trading-assistant/marketwire/internal/testsupport"
)

func TestTableParser_Daily(t *testing.T) {
	htmlDoc := `<html><body><table>
		<tr><th>Ticker</th><th>Buy Trade</th><th>Sell Trade</th><th>Sentiment</th></tr>
		<tr><td>AAPL</td><td>$190.00</td><td>$210.00</td><td>BULLISH</td></tr>
		<tr><td>TSLA</td><td>250.50</td><td>300.00</td><td>BEARISH</td></tr>
		<tr><td></td><td></td><td></td><td></td></tr>
	</table></body></html>`

	p := NewDailyParser()
	rows, diags := p.Parse(context.Background(), source.Message{HTMLParts: []string{htmlDoc}})

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d (diags=%v)", len(rows), diags)
	}
	if rows[0].Ticker != "AAPL" || rows[0].Sentiment != domain.Bullish {
		t.Errorf("row0 = %+v", rows[0])
	}
	if rows[1].Ticker != "TSLA" || rows[1].Sentiment != domain.Bearish {
		t.Errorf("row1 = %+v", rows[1])
	}
}

func TestTableParser_Daily_Golden(t *testing.T) {
	htmlDoc := `<html><body><table>
		<tr><th>Ticker</th><th>Buy Trade</th><th>Sell Trade</th><th>Sentiment</th></tr>
		<tr><td>AAPL</td><td>$190.00</td><td>$210.00</td><td>BULLISH</td></tr>
		<tr><td>TSLA</td><td>250.50</td><td>300.00</td><td>BEARISH</td></tr>
	</table></body></html>`

	p := NewDailyParser()
	rows, _ := p.Parse(context.Background(), source.Message{HTMLParts: []string{htmlDoc}})
	testsupport.Golden(t, "daily_rows", rows)
}

func TestTableParser_DropsInvertedBullishThresholds(t *testing.T) {
	htmlDoc := `<html><body><table>
		<tr><th>Ticker</th><th>Buy</th><th>Sell</th><th>Sentiment</th></tr>
		<tr><td>AAPL</td><td>210.00</td><td>190.00</td><td>BULLISH</td></tr>
		<tr><td>TSLA</td><td>250.00</td><td>200.00</td><td>BEARISH</td></tr>
	</table></body></html>`

	p := NewDailyParser()
	rows, diags := p.Parse(context.Background(), source.Message{HTMLParts: []string{htmlDoc}})

	// The inverted BULLISH row is dropped with a diagnostic; the inverted
	// BEARISH row is legitimate publisher data and survives.
	if len(rows) != 1 || rows[0].Ticker != "TSLA" {
		t.Fatalf("expected only the BEARISH row to survive, got %+v", rows)
	}
	found := false
	for _, d := range diags {
		if d.Ticker == "AAPL" && d.Stage == "parse" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a parse diagnostic for the dropped AAPL row, got %v", diags)
	}
}

func TestTableParser_DropsEqualThresholds(t *testing.T) {
	htmlDoc := `<html><body><table>
		<tr><th>Ticker</th><th>Buy</th><th>Sell</th><th>Sentiment</th></tr>
		<tr><td>NVDA</td><td>100.00</td><td>100.00</td><td>BEARISH</td></tr>
	</table></body></html>`

	p := NewDailyParser()
	rows, diags := p.Parse(context.Background(), source.Message{HTMLParts: []string{htmlDoc}})
	if len(rows) != 0 {
		t.Fatalf("expected equal thresholds to be dropped as a data error, got %+v", rows)
	}
	if len(diags) == 0 {
		t.Error("expected a diagnostic for the equal-threshold row")
	}
}

func TestTableParser_SentimentGlyphFallback(t *testing.T) {
	htmlDoc := `<html><body><table>
		<tr><th>Ticker</th><th>Buy</th><th>Sell</th></tr>
		<tr><td>MSFT ▲</td><td>300</td><td>350</td></tr>
	</table></body></html>`

	p := NewDailyParser()
	rows, _ := p.Parse(context.Background(), source.Message{HTMLParts: []string{htmlDoc}})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Sentiment != domain.Bullish {
		t.Errorf("expected BULLISH from glyph fallback, got %s", rows[0].Sentiment)
	}
}

func TestTableParser_DuplicateTickerKeepsLast(t *testing.T) {
	htmlDoc := `<html><body><table>
		<tr><th>Ticker</th><th>Buy</th><th>Sell</th><th>Sentiment</th></tr>
		<tr><td>NVDA</td><td>100</td><td>120</td><td>NEUTRAL</td></tr>
		<tr><td>NVDA</td><td>105</td><td>125</td><td>BULLISH</td></tr>
	</table></body></html>`

	p := NewDailyParser()
	rows, _ := p.Parse(context.Background(), source.Message{HTMLParts: []string{htmlDoc}})
	if len(rows) != 1 {
		t.Fatalf("expected duplicate collapse to 1 row, got %d", len(rows))
	}
	if rows[0].Sentiment != domain.Bullish {
		t.Errorf("expected last occurrence (BULLISH) to win, got %s", rows[0].Sentiment)
	}
}

type fakeOCR struct {
	tables map[int]ocr.TableText
}

func (f *fakeOCR) OCR(ctx context.Context, image []byte, hint string) (ocr.TableText, error) {
	idx := int(image[0])
	return f.tables[idx], nil
}

func TestCryptoParser_FixedIndicesAndNormalization(t *testing.T) {
	fake := &fakeOCR{tables: map[int]ocr.TableText{
		6: {
			{"Ticker", "Buy", "Sell", "Sentiment"},
			{"BTC", "60000", "65000", "BULLISH"},
		},
		14: {
			{"Ticker", "Buy", "Sell", "Sentiment"},
			{"ETH", "3000", "3500", "BEARISH"},
		},
	}}
	p := NewCryptoParser(fake)

	msg := source.Message{InlineImages: []source.Image{
		{Index: 6, Data: []byte{6}},
		{Index: 14, Data: []byte{14}},
	}}

	rows, _ := p.Parse(context.Background(), msg)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Ticker != "BTC-USD" {
		t.Errorf("expected BTC normalized to BTC-USD, got %s", rows[0].Ticker)
	}
	if rows[1].Ticker != "ETH-USD" {
		t.Errorf("expected ETH normalized to ETH-USD, got %s", rows[1].Ticker)
	}
}

func TestCryptoParser_MissingImageRecordsDiagnostic(t *testing.T) {
	fake := &fakeOCR{tables: map[int]ocr.TableText{}}
	p := NewCryptoParser(fake)
	msg := source.Message{InlineImages: []source.Image{{Index: 6, Data: []byte{6}}}}

	_, diags := p.Parse(context.Background(), msg)
	found := false
	for _, d := range diags {
		if d.Stage == "ocr" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a diagnostic for the missing image at index 14, got %v", diags)
	}
}
