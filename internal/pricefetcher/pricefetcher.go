// Package pricefetcher implements the Price Fetcher: a bounded-concurrency
// snapshot-quote client over a single Interactive Brokers gateway
// connection, with a pacing gate between request submissions and a
// Last -> Bid/Ask-midpoint fallback chain per ticker.
package pricefetcher

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gofinance/ib"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"jax-trading-assistant/marketwire/internal/contractresolver"
	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/obslog"
)

// Quote is a single resolved price, tagged with which fallback tier produced
// it ("last", "close", or "mid").
type Quote struct {
	Last   decimal.Decimal
	Source string
	At     time.Time
}

// PriceRequest is one ticker to fetch a snapshot quote for.
type PriceRequest struct {
	Ticker   string
	Category domain.Category
}

// QuoteOrError is a FetchPrices result slot: exactly one of Quote or Err is
// set. A broker error for one ticker never aborts the rest of the batch.
type QuoteOrError struct {
	Quote Quote
	Err   error
}

// PriceFetcher fetches snapshot quotes for a batch of tickers in one
// session pass.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, requests []PriceRequest, session domain.Session) (map[string]QuoteOrError, error)
}

// Config holds the IB Gateway connection parameters.
type Config struct {
	Host        string
	Port        int
	ClientID    int
	Parallelism int
	PacingDelay time.Duration
	PerCallWait time.Duration
}

// DefaultConfig returns the production defaults: 8-way fan-out, 500ms
// pacing between request submissions, 5s per-ticker deadline.
func DefaultConfig(host string, port, clientID int) Config {
	return Config{
		Host:        host,
		Port:        port,
		ClientID:    clientID,
		Parallelism: 8,
		PacingDelay: 500 * time.Millisecond,
		PerCallWait: 5 * time.Second,
	}
}

// IBPriceFetcher wraps a single gofinance/ib.Engine connection, opened once
// per FetchPrices batch so the scheduler can retry a failed gateway
// without holding a stale engine across sessions.
type IBPriceFetcher struct {
	cfg      Config
	resolver contractresolver.Resolver
}

// New builds an IBPriceFetcher.
func New(cfg Config, resolver contractresolver.Resolver) *IBPriceFetcher {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.PacingDelay <= 0 {
		cfg.PacingDelay = 500 * time.Millisecond
	}
	if cfg.PerCallWait <= 0 {
		cfg.PerCallWait = 5 * time.Second
	}
	return &IBPriceFetcher{cfg: cfg, resolver: resolver}
}

// FetchPrices connects once, fetches a snapshot quote per request under
// bounded concurrency and a pacing gate, and disconnects. If the gateway
// connection itself fails, every request in the batch comes back tagged
// with ErrBrokerUnavailable and no per-ticker calls are attempted.
func (f *IBPriceFetcher) FetchPrices(ctx context.Context, requests []PriceRequest, session domain.Session) (map[string]QuoteOrError, error) {
	results := make(map[string]QuoteOrError, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	engine, err := ib.NewEngine(ib.EngineOptions{
		Gateway: fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port),
		Client:  int64(f.cfg.ClientID),
	})
	if err != nil {
		for _, req := range requests {
			results[req.Ticker] = QuoteOrError{Err: fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)}
		}
		return results, nil
	}
	defer engine.Stop()

	var mu sync.Mutex
	pacer := time.NewTicker(f.cfg.PacingDelay)
	defer pacer.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.cfg.Parallelism)

	for i, req := range requests {
		req := req
		if i > 0 {
			select {
			case <-pacer.C:
			case <-groupCtx.Done():
			}
		}

		group.Go(func() error {
			quote, err := f.fetchOne(groupCtx, engine, req)
			mu.Lock()
			if err != nil {
				results[req.Ticker] = QuoteOrError{Err: err}
			} else {
				results[req.Ticker] = QuoteOrError{Quote: quote}
			}
			mu.Unlock()
			return nil
		})
	}

	_ = group.Wait()
	return results, nil
}

func (f *IBPriceFetcher) fetchOne(ctx context.Context, engine *ib.Engine, req PriceRequest) (Quote, error) {
	descriptor, err := f.resolver.Resolve(ctx, req.Ticker, req.Category)
	if err != nil {
		return Quote{}, fmt.Errorf("resolve contract for %s: %w", req.Ticker, err)
	}

	contract := ib.Contract{
		Symbol:       req.Ticker,
		SecurityType: securityType(descriptor.Kind),
		Exchange:     descriptor.Exchange,
		Currency:     descriptor.Currency,
	}

	mgr, err := ib.NewInstrumentManager(engine, contract)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: instrument manager for %s: %v", domain.ErrBrokerUnavailable, req.Ticker, err)
	}
	defer mgr.Close()

	deadline, cancel := context.WithTimeout(ctx, f.cfg.PerCallWait)
	defer cancel()

	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-deadline.Done():
			q, ok := resolveQuote(mgr)
			if !ok {
				return Quote{}, fmt.Errorf("%w: no usable tick for %s", domain.ErrNoQuote, req.Ticker)
			}
			return q, nil
		case <-poll.C:
			if q, ok := resolveQuote(mgr); ok {
				return q, nil
			}
		}
	}
}

func securityType(kind contractresolver.InstrumentKind) string {
	switch kind {
	case contractresolver.KindCrypto:
		return "CRYPTO"
	case contractresolver.KindFuture:
		return "FUT"
	default:
		return "STK"
	}
}

// tickSource is the subset of the instrument manager the fallback chain
// reads, split out so the chain is testable without a live gateway.
type tickSource interface {
	Last() float64
	Bid() float64
	Ask() float64
}

func usablePrice(p float64) bool {
	return p > 0 && !math.IsNaN(p)
}

var closeTierOnce sync.Once

// closePrice is the prior-close tier of the fallback chain. The
// gofinance/ib instrument manager surfaces only last/bid/ask ticks; its
// Close method is connection cleanup, not a prior-close accessor. So with
// this client the tier is always empty, and a NaN/zero last degrades
// straight to the bid/ask midpoint. The tier stays in the chain so the
// degrade order last -> close -> midpoint is explicit and a client that
// does expose close slots in without reordering; the gap is logged once
// per process.
func closePrice(tickSource) (float64, bool) {
	closeTierOnce.Do(func() {
		obslog.Warn(context.Background(), "pricefetcher.close_tier_unavailable", map[string]any{
			"reason": "broker client exposes no prior-close field; degrading last -> bid/ask midpoint",
		})
	})
	return 0, false
}

// resolveQuote applies the fallback chain to the manager's current book:
// last trade, prior close, bid/ask midpoint.
func resolveQuote(v tickSource) (Quote, bool) {
	if last := v.Last(); usablePrice(last) {
		return Quote{Last: decimal.NewFromFloat(last), Source: "last", At: time.Now()}, true
	}
	if prior, ok := closePrice(v); ok && usablePrice(prior) {
		return Quote{Last: decimal.NewFromFloat(prior), Source: "close", At: time.Now()}, true
	}
	bid, ask := v.Bid(), v.Ask()
	if usablePrice(bid) && usablePrice(ask) {
		return Quote{Last: decimal.NewFromFloat((bid + ask) / 2), Source: "mid", At: time.Now()}, true
	}
	return Quote{}, false
}
