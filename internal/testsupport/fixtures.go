package testsupport

import (
	"time"

	"github.com/shopspring/decimal"

	"jax-trading-assistant/marketwire/internal/domain"
)

// Dec parses a literal into a decimal.Decimal, panicking on malformed test
// fixtures (a test-only convenience, never used outside _test.go files).
func Dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("testsupport.Dec: " + err.Error())
	}
	return d
}

// NewStock builds a minimal valid Stock fixture, overridable field by field.
func NewStock(ticker string, category domain.Category, sentiment domain.Sentiment, buy, sell string) domain.Stock {
	return domain.Stock{
		Ticker:    ticker,
		Category:  category,
		Sentiment: sentiment,
		BuyTrade:  Dec(buy),
		SellTrade: Dec(sell),
	}
}

// WithAMPrice returns a copy of s with AMPrice set.
func WithAMPrice(s domain.Stock, price string, at time.Time) domain.Stock {
	p := Dec(price)
	s.AMPrice = &p
	s.LastPriceUpdate = &at
	return s
}

// WithPMPrice returns a copy of s with PMPrice set.
func WithPMPrice(s domain.Stock, price string, at time.Time) domain.Stock {
	p := Dec(price)
	s.PMPrice = &p
	s.LastPriceUpdate = &at
	return s
}
