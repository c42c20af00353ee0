// Package contractresolver implements the Contract Resolver: classifies a
// (ticker, category) pair into an instrument kind and routing descriptor,
// with a Redis read-through cache in front of the Store's persistent
// contract-cache column.
package contractresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/store"
)

// InstrumentKind is the broker-routing classification of a ticker.
type InstrumentKind string

const (
	KindStock  InstrumentKind = "STOCK"
	KindETF    InstrumentKind = "ETF"
	KindCrypto InstrumentKind = "CRYPTO"
	KindFuture InstrumentKind = "FUTURE"
	KindIndex  InstrumentKind = "INDEX"
)

// ContractDescriptor is the routing information the Price Fetcher needs to
// request a snapshot quote for a ticker.
type ContractDescriptor struct {
	Kind     InstrumentKind
	Exchange string
	Currency string
	Variant  string
}

// Resolver classifies (ticker, category) into a ContractDescriptor.
type Resolver interface {
	Resolve(ctx context.Context, ticker string, category domain.Category) (ContractDescriptor, error)
}

// overrideMap is the explicit exception table, checked before any
// category-default or heuristic classification.
var overrideMap = map[string]ContractDescriptor{
	"MSTR":    {Kind: KindStock, Exchange: "SMART", Currency: "USD", Variant: "MSTR"},
	"BTC-USD": {Kind: KindCrypto, Exchange: "PAXOS", Currency: "USD", Variant: "BTC-USD"},
}

// categoryDefaults maps a category to its default instrument kind, absent
// an override.
var categoryDefaults = map[domain.Category]InstrumentKind{
	domain.CategoryETFs:          KindETF,
	domain.CategoryDigitalAssets: KindCrypto,
}

// CachingResolver is the production Resolver: Redis read-through in front
// of the Store's persistent descriptor column.
type CachingResolver struct {
	redis *redis.Client
	store store.Store
	ttl   time.Duration
}

// New builds a CachingResolver. ttl is the Redis hot-path cache lifetime
// (the persistent cache in Store has no TTL; it's invalidated only by a
// category replace).
func New(redisClient *redis.Client, st store.Store, ttl time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachingResolver{redis: redisClient, store: st, ttl: ttl}
}

func cacheKey(category domain.Category, ticker string) string {
	return fmt.Sprintf("resolver:%s:%s", category, ticker)
}

// Resolve classifies ticker, checking the Redis cache, then the Store's
// persistent cache, then computing fresh and writing back to both.
func (r *CachingResolver) Resolve(ctx context.Context, ticker string, category domain.Category) (ContractDescriptor, error) {
	key := cacheKey(category, ticker)

	if data, err := r.redis.Get(ctx, key).Bytes(); err == nil {
		var descriptor ContractDescriptor
		if jsonErr := json.Unmarshal(data, &descriptor); jsonErr == nil {
			return descriptor, nil
		}
	}

	if stored, ok, err := r.store.GetContract(ctx, ticker, category); err == nil && ok {
		descriptor := fromStoreDescriptor(stored)
		r.writeRedisCache(ctx, key, descriptor)
		return descriptor, nil
	}

	descriptor := classify(ticker, category)
	r.writeRedisCache(ctx, key, descriptor)
	if err := r.store.CacheContract(ctx, ticker, category, toStoreDescriptor(descriptor)); err != nil {
		return descriptor, fmt.Errorf("%w: persist descriptor: %v", domain.ErrStoreError, err)
	}
	return descriptor, nil
}

func (r *CachingResolver) writeRedisCache(ctx context.Context, key string, descriptor ContractDescriptor) {
	data, err := json.Marshal(descriptor)
	if err != nil {
		return
	}
	_ = r.redis.Set(ctx, key, data, r.ttl).Err()
}

func fromStoreDescriptor(d store.ContractDescriptor) ContractDescriptor {
	return ContractDescriptor{Kind: InstrumentKind(d.Kind), Exchange: d.Exchange, Currency: d.Currency, Variant: d.Variant}
}

func toStoreDescriptor(d ContractDescriptor) store.ContractDescriptor {
	return store.ContractDescriptor{Kind: string(d.Kind), Exchange: d.Exchange, Currency: d.Currency, Variant: d.Variant}
}

// classify applies the resolution order: override map, category default,
// symbol-pattern heuristics.
func classify(ticker string, category domain.Category) ContractDescriptor {
	if d, ok := overrideMap[ticker]; ok {
		return d
	}

	if kind, ok := categoryDefaults[category]; ok {
		if !(category == domain.CategoryDigitalAssets && looksLikeStock(ticker)) {
			return descriptorFor(kind, ticker)
		}
	}

	switch {
	case strings.HasSuffix(ticker, "-USD") || strings.HasSuffix(ticker, "-USDT"):
		return descriptorFor(KindCrypto, ticker)
	case len(ticker) <= 5 && category == domain.CategoryETFs:
		return descriptorFor(KindETF, ticker)
	default:
		return descriptorFor(KindStock, ticker)
	}
}

// looksLikeStock catches explicit equity tickers that appear under
// digitalassets without an override entry (defensive secondary check;
// overrideMap is expected to carry the real exceptions).
func looksLikeStock(ticker string) bool {
	return !strings.Contains(ticker, "-") && len(ticker) > 5
}

func descriptorFor(kind InstrumentKind, ticker string) ContractDescriptor {
	switch kind {
	case KindCrypto:
		return ContractDescriptor{Kind: KindCrypto, Exchange: "PAXOS", Currency: "USD", Variant: ticker}
	case KindETF:
		return ContractDescriptor{Kind: KindETF, Exchange: "SMART", Currency: "USD", Variant: ticker}
	default:
		return ContractDescriptor{Kind: kind, Exchange: "SMART", Currency: "USD", Variant: ticker}
	}
}
