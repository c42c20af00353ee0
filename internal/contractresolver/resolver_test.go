package contractresolver

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/store"
)

func TestClassify_OverrideMapWinsOverCategoryDefault(t *testing.T) {
	d := classify("MSTR", domain.CategoryDigitalAssets)
	if d.Kind != KindStock {
		t.Errorf("expected MSTR override to force STOCK even under digitalassets, got %s", d.Kind)
	}
}

func TestClassify_CategoryDefault(t *testing.T) {
	d := classify("SPY", domain.CategoryETFs)
	if d.Kind != KindETF {
		t.Errorf("expected ETF category default, got %s", d.Kind)
	}
}

func TestClassify_SuffixHeuristic(t *testing.T) {
	d := classify("SOL-USD", domain.CategoryDaily)
	if d.Kind != KindCrypto {
		t.Errorf("expected -USD suffix to classify as CRYPTO, got %s", d.Kind)
	}
}

func TestClassify_DefaultsToStock(t *testing.T) {
	d := classify("AAPL", domain.CategoryDaily)
	if d.Kind != KindStock {
		t.Errorf("expected STOCK default, got %s", d.Kind)
	}
}

type fakeStore struct {
	store.Store
	descriptors map[string]store.ContractDescriptor
	cached      []string
}

func (f *fakeStore) GetContract(ctx context.Context, ticker string, category domain.Category) (store.ContractDescriptor, bool, error) {
	d, ok := f.descriptors[ticker]
	return d, ok, nil
}

func (f *fakeStore) CacheContract(ctx context.Context, ticker string, category domain.Category, descriptor store.ContractDescriptor) error {
	f.cached = append(f.cached, ticker)
	return nil
}

func TestResolve_FallsBackToStoreThenComputesFresh(t *testing.T) {
	// Point at an address nothing listens on so the Redis hot-path cache
	// always misses and every call exercises the Store fallback.
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer rc.Close()

	fs := &fakeStore{descriptors: map[string]store.ContractDescriptor{
		"QQQ": {Kind: "ETF", Exchange: "SMART", Currency: "USD", Variant: "QQQ"},
	}}
	r := New(rc, fs, time.Minute)

	d, err := r.Resolve(context.Background(), "QQQ", domain.CategoryETFs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Kind != KindETF {
		t.Errorf("expected ETF from store cache, got %s", d.Kind)
	}

	d2, err := r.Resolve(context.Background(), "AAPL", domain.CategoryDaily)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d2.Kind != KindStock {
		t.Errorf("expected fresh classification STOCK, got %s", d2.Kind)
	}
	found := false
	for _, ticker := range fs.cached {
		if ticker == "AAPL" {
			found = true
		}
	}
	if !found {
		t.Error("expected fresh classification to be persisted via CacheContract")
	}
}
