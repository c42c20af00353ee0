// Package evaluator implements the Alert Evaluator: matches priced stocks
// against the sentiment matrix in internal/domain and deduplicates fired
// alerts for the lifetime of a trading day.
package evaluator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"jax-trading-assistant/marketwire/internal/domain"
)

// Evaluator matches priced stocks against the sentiment matrix and returns
// the alerts that should fire for this session, after deduplication.
type Evaluator interface {
	Evaluate(ctx context.Context, stocks []domain.Stock, session domain.Session, tradingDay time.Time) []domain.Alert
}

// DedupEvaluator is the production Evaluator. Its dedup set is scoped to a
// single trading day: on a new trading day the whole map is replaced rather
// than incrementally evicted, since dedup is process-lifetime-scoped, not
// persisted.
type DedupEvaluator struct {
	mu         sync.Mutex
	tradingDay string
	seen       map[domain.DedupKey]struct{}
	now        func() time.Time
}

// New builds a DedupEvaluator on the system clock.
func New() *DedupEvaluator {
	return NewWithNow(time.Now)
}

// NewWithNow builds a DedupEvaluator whose GeneratedAt stamps come from
// now. Tests inject a testsupport clock here for determinism.
func NewWithNow(now func() time.Time) *DedupEvaluator {
	return &DedupEvaluator{
		seen: make(map[domain.DedupKey]struct{}),
		now:  now,
	}
}

// Evaluate matches every ready stock against the sentiment matrix for the
// given session, drops any alert already fired for that ticker/category/
// kind/session/trading-day, and returns the rest sorted by
// (kind, category, ticker).
func (e *DedupEvaluator) Evaluate(ctx context.Context, stocks []domain.Stock, session domain.Session, tradingDay time.Time) []domain.Alert {
	dayKey := tradingDay.Format("2006-01-02")

	e.mu.Lock()
	if dayKey != e.tradingDay {
		e.tradingDay = dayKey
		e.seen = make(map[domain.DedupKey]struct{})
	}
	e.mu.Unlock()

	var fired []domain.Alert
	for _, stock := range stocks {
		select {
		case <-ctx.Done():
			return sortAlerts(fired)
		default:
		}
		if !stock.ReadyForEvaluation() {
			continue
		}
		price, ok := priceFor(stock, session)
		if !ok {
			continue
		}
		for _, rule := range domain.MatchRules(stock, price) {
			alert := domain.Alert{
				ID:          uuid.NewString(),
				Ticker:      stock.Ticker,
				Category:    stock.Category,
				Kind:        rule.Kind,
				Price:       price,
				Threshold:   thresholdFor(rule, stock),
				Sentiment:   stock.Sentiment,
				Session:     session,
				TradingDay:  tradingDay,
				GeneratedAt: e.now(),
			}
			if e.markSeen(alert.Key()) {
				fired = append(fired, alert)
			}
		}
	}
	return sortAlerts(fired)
}

// markSeen reports whether this is the first time key has fired, recording
// it if so.
func (e *DedupEvaluator) markSeen(key domain.DedupKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seen[key]; ok {
		return false
	}
	e.seen[key] = struct{}{}
	return true
}

// priceFor selects the session's price field. Only AM and PM sessions carry
// a priced snapshot; any other session has nothing to evaluate against.
func priceFor(stock domain.Stock, session domain.Session) (decimal.Decimal, bool) {
	switch session {
	case domain.SessionAM:
		if stock.AMPrice == nil {
			return decimal.Decimal{}, false
		}
		return *stock.AMPrice, true
	case domain.SessionPM:
		if stock.PMPrice == nil {
			return decimal.Decimal{}, false
		}
		return *stock.PMPrice, true
	default:
		return decimal.Decimal{}, false
	}
}

// thresholdFor reads the rule's target threshold off of stock. Duplicated
// from the unexported logic in domain.Rule since Field is the only exported
// hook the matrix gives callers.
func thresholdFor(rule domain.Rule, stock domain.Stock) decimal.Decimal {
	if rule.Field == domain.FieldBuyTrade {
		return stock.BuyTrade
	}
	return stock.SellTrade
}

func sortAlerts(alerts []domain.Alert) []domain.Alert {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Ticker < b.Ticker
	})
	return alerts
}
