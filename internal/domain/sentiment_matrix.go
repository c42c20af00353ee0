package domain

import "github.com/shopspring/decimal"

// Compare is the comparison operator a sentiment-matrix Rule applies
// between the latest price and a threshold field.
type Compare string

const (
	LE Compare = "<=" // price <= threshold
	GE Compare = ">=" // price >= threshold
)

// Field selects which Stock threshold a Rule compares against.
type Field string

const (
	FieldBuyTrade  Field = "buy_trade"
	FieldSellTrade Field = "sell_trade"
)

// Rule is one row of the sentiment matrix, expressed as data so that policy
// changes don't require code edits. NEUTRAL is treated identically to
// BULLISH.
type Rule struct {
	Sentiments []Sentiment
	Compare    Compare
	Field      Field
	Kind       AlertKind
}

// SentimentMatrix maps (sentiment, price vs threshold) to an alert kind.
// Order matters only for documentation; the evaluator checks every rule
// independently (a row may legitimately fire more than one alert when
// BEARISH has buy_trade >= sell_trade).
var SentimentMatrix = []Rule{
	{Sentiments: []Sentiment{Bullish, Neutral}, Compare: LE, Field: FieldBuyTrade, Kind: Buy},
	{Sentiments: []Sentiment{Bullish, Neutral}, Compare: GE, Field: FieldSellTrade, Kind: Sell},
	{Sentiments: []Sentiment{Bearish}, Compare: GE, Field: FieldSellTrade, Kind: Short},
	{Sentiments: []Sentiment{Bearish}, Compare: LE, Field: FieldBuyTrade, Kind: Cover},
}

func (r Rule) appliesTo(s Sentiment) bool {
	for _, want := range r.Sentiments {
		if want == s {
			return true
		}
	}
	return false
}

func (r Rule) threshold(stock Stock) decimal.Decimal {
	if r.Field == FieldBuyTrade {
		return stock.BuyTrade
	}
	return stock.SellTrade
}

func (r Rule) fires(price decimal.Decimal, threshold decimal.Decimal) bool {
	switch r.Compare {
	case LE:
		return price.LessThanOrEqual(threshold)
	case GE:
		return price.GreaterThanOrEqual(threshold)
	default:
		return false
	}
}

// MatchRules returns every sentiment-matrix rule that fires for the given
// stock at the given price. Multiple rules can fire for the same row only
// when BEARISH has buy_trade >= sell_trade.
func MatchRules(stock Stock, price decimal.Decimal) []Rule {
	var fired []Rule
	for _, rule := range SentimentMatrix {
		if !rule.appliesTo(stock.Sentiment) {
			continue
		}
		if rule.fires(price, rule.threshold(stock)) {
			fired = append(fired, rule)
		}
	}
	return fired
}
