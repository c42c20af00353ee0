// Package domain holds the plain types shared across the extract-reconcile-
// evaluate pipeline: Stock, ExtractedRow, Alert, SessionRun, and the
// sentiment matrix that drives the Alert Evaluator.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is a newsletter source grouping. It determines parser, schedule,
// and the scope of a replace operation.
type Category string

const (
	CategoryDaily         Category = "daily"
	CategoryDigitalAssets Category = "digitalassets"
	CategoryETFs          Category = "etfs"
	CategoryIdeas         Category = "ideas"
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{CategoryDaily, CategoryDigitalAssets, CategoryETFs, CategoryIdeas}

func (c Category) Valid() bool {
	switch c {
	case CategoryDaily, CategoryDigitalAssets, CategoryETFs, CategoryIdeas:
		return true
	default:
		return false
	}
}

// Sentiment is the directional bias a publisher assigns to a ticker.
type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

func (s Sentiment) Valid() bool {
	switch s {
	case Bullish, Bearish, Neutral:
		return true
	default:
		return false
	}
}

// Session is an intraday evaluation epoch.
type Session string

const (
	SessionPre  Session = "PRE"
	SessionAM   Session = "AM"
	SessionMid  Session = "MID"
	SessionPM   Session = "PM"
	SessionPost Session = "POST"
)

// AlertKind is the directional action a triggered alert recommends.
type AlertKind string

const (
	Buy   AlertKind = "BUY"
	Sell  AlertKind = "SELL"
	Short AlertKind = "SHORT"
	Cover AlertKind = "COVER"
)

// tickerPattern is the store's ticker identity shape: uppercase symbol,
// 1-20 chars, letters/digits/dot/dash only.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,20}$`)

// NormalizeTicker upper-cases and trims a raw ticker string.
func NormalizeTicker(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidTicker reports whether a normalized ticker matches the store's
// identity pattern.
func ValidTicker(ticker string) bool {
	return tickerPattern.MatchString(ticker)
}

// Stock is the authoritative, persisted entity: one row per (ticker,
// category). Price fields are nullable until the Price Fetcher has written
// at least one quote.
type Stock struct {
	Ticker            string
	Category          Category
	Sentiment         Sentiment
	BuyTrade          decimal.Decimal
	SellTrade         decimal.Decimal
	AMPrice           *decimal.Decimal
	PMPrice           *decimal.Decimal
	LastPriceUpdate   *time.Time
	ContractDescriptor []byte // opaque JSON blob, owned by the contract resolver
	ContractResolved  bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks a Stock row before it is written by a replace operation:
// a well-formed ticker, known category and sentiment, non-negative
// thresholds, and buy_trade < sell_trade for every sentiment except BEARISH
// (the publisher is allowed to invert bearish thresholds).
func (s Stock) Validate() error {
	ticker := NormalizeTicker(s.Ticker)
	if !ValidTicker(ticker) {
		return fmt.Errorf("%w: ticker %q", ErrInvalidTicker, s.Ticker)
	}
	if !s.Category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvalidCategory, s.Category)
	}
	if !s.Sentiment.Valid() {
		return fmt.Errorf("%w: sentiment %q", ErrInvalidSentiment, s.Sentiment)
	}
	if s.BuyTrade.IsNegative() || s.SellTrade.IsNegative() {
		return fmt.Errorf("%w: negative trade threshold for %s", ErrInvalidThreshold, ticker)
	}
	if s.Sentiment != Bearish && !s.BuyTrade.LessThan(s.SellTrade) {
		return fmt.Errorf("%w: %s requires buy_trade < sell_trade for sentiment %s", ErrInvalidThreshold, ticker, s.Sentiment)
	}
	return nil
}

// ReadyForEvaluation reports whether the row carries what the Alert
// Evaluator needs: a valid sentiment and at least one positive threshold (a
// row whose buy and sell thresholds are both zero is not ready). Price
// fields are checked separately per session by the evaluator.
func (s Stock) ReadyForEvaluation() bool {
	return s.Sentiment.Valid() && (s.BuyTrade.IsPositive() || s.SellTrade.IsPositive())
}

// ExtractedRow is transient parser output; it has no store identity and
// feeds category-scoped reconciliation.
type ExtractedRow struct {
	Ticker    string
	Sentiment Sentiment
	BuyTrade  decimal.Decimal
	SellTrade decimal.Decimal
	RawName   string
}

// Alert is an append-only, in-session record of a triggered notification.
type Alert struct {
	ID          string
	Ticker      string
	Category    Category
	Kind        AlertKind
	Price       decimal.Decimal
	Threshold   decimal.Decimal
	Sentiment   Sentiment
	Session     Session
	TradingDay  time.Time
	GeneratedAt time.Time
}

// DedupKey is the uniqueness key for Alert deduplication.
type DedupKey struct {
	Ticker     string
	Category   Category
	Kind       AlertKind
	Session    Session
	TradingDay string // YYYY-MM-DD, exchange-local
}

// Key computes the Alert's dedup key.
func (a Alert) Key() DedupKey {
	return DedupKey{
		Ticker:     a.Ticker,
		Category:   a.Category,
		Kind:       a.Kind,
		Session:    a.Session,
		TradingDay: a.TradingDay.Format("2006-01-02"),
	}
}

// SessionRun records scheduler-level observability and idempotency state
// for one job execution.
type SessionRun struct {
	ID           string
	Session      Session
	TradingDay   time.Time
	StartedAt    time.Time
	FinishedAt   *time.Time
	StocksPriced int
	AlertsFired  int
	Err          string
}

// Diagnostic is a lightweight, non-fatal record attached to an extraction
// or fetch step when a row/image/ticker is dropped or degraded.
type Diagnostic struct {
	Category Category
	Stage    string // "parse", "ocr", "price_fetch"
	Ticker   string
	Message  string
	At       time.Time
}
