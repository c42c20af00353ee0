package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"jax-trading-assistant/marketwire/internal/calendar"
	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/extractor"
	"jax-trading-assistant/marketwire/internal/pricefetcher"
	"jax-trading-assistant/marketwire/internal/store"
	"jax-trading-assistant/marketwire/internal/testsupport"
)

// testInstant is a Wednesday during AM session hours in New York.
var testInstant = time.Date(2026, 7, 29, 14, 45, 0, 0, time.UTC)

type fakeStore struct {
	active   []domain.Stock
	priced   []string
	runs     []domain.SessionRun
	listErr  error
	priceErr error
}

func (f *fakeStore) ReplaceCategory(ctx context.Context, category domain.Category, rows []domain.ExtractedRow) (store.ReconciliationDelta, error) {
	return store.ReconciliationDelta{}, nil
}

func (f *fakeStore) DiffCategory(ctx context.Context, category domain.Category, rows []domain.ExtractedRow) (store.ReconciliationDelta, error) {
	return store.ReconciliationDelta{}, nil
}

func (f *fakeStore) ListActive(ctx context.Context, filter *store.ListFilter) ([]domain.Stock, error) {
	return f.active, f.listErr
}

func (f *fakeStore) UpdatePrice(ctx context.Context, ticker string, category domain.Category, session domain.Session, price decimal.Decimal, at time.Time) error {
	if f.priceErr != nil {
		return f.priceErr
	}
	f.priced = append(f.priced, ticker)
	return nil
}

func (f *fakeStore) CacheContract(ctx context.Context, ticker string, category domain.Category, descriptor store.ContractDescriptor) error {
	return nil
}

func (f *fakeStore) GetContract(ctx context.Context, ticker string, category domain.Category) (store.ContractDescriptor, bool, error) {
	return store.ContractDescriptor{}, false, nil
}

func (f *fakeStore) RecordSessionRun(ctx context.Context, run domain.SessionRun) error {
	f.runs = append(f.runs, run)
	return nil
}

type fakeFetcher struct {
	quotes map[string]pricefetcher.QuoteOrError
	err    error
}

func (f *fakeFetcher) FetchPrices(ctx context.Context, requests []pricefetcher.PriceRequest, session domain.Session) (map[string]pricefetcher.QuoteOrError, error) {
	return f.quotes, f.err
}

type fakeEvaluator struct {
	alerts []domain.Alert
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, stocks []domain.Stock, session domain.Session, tradingDay time.Time) []domain.Alert {
	return f.alerts
}

type fakeNotifier struct {
	notified [][]domain.Alert
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, alerts []domain.Alert, session domain.Session, tradingDay time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.notified = append(f.notified, alerts)
	return nil
}

type fakeOrchestrator struct {
	results []extractor.CategoryResult
	ran     [][]domain.Category
}

func (f *fakeOrchestrator) Run(ctx context.Context, categories []domain.Category, window time.Duration, mode extractor.RunMode) ([]extractor.CategoryResult, error) {
	f.ran = append(f.ran, categories)
	return f.results, nil
}

func activeStock(ticker string) domain.Stock {
	return domain.Stock{
		Ticker:    ticker,
		Category:  domain.CategoryDaily,
		Sentiment: domain.Bullish,
		BuyTrade:  decimal.NewFromInt(100),
		SellTrade: decimal.NewFromInt(120),
	}
}

func newTestScheduler(st *fakeStore, pf *fakeFetcher, ev *fakeEvaluator, nt *fakeNotifier, orch extractor.Orchestrator) *Scheduler {
	return New(Config{
		Calendar:         calendar.New(),
		Orchestrator:     orch,
		PriceFetcher:     pf,
		Evaluator:        ev,
		Notifier:         nt,
		Store:            st,
		WeeklyCategories: []domain.Category{domain.CategoryETFs, domain.CategoryIdeas},
		DailyCategories:  []domain.Category{domain.CategoryDaily, domain.CategoryDigitalAssets},
		ExtractionTime:   JobSpec{Hour: 9, Minute: 0},
		AMTime:           JobSpec{Hour: 10, Minute: 45},
		PMTime:           JobSpec{Hour: 14, Minute: 30},
		Now:              testsupport.FixedClock{T: testInstant}.Now,
	})
}

func TestRunSession_PricesThenEvaluatesThenNotifies(t *testing.T) {
	quote := pricefetcher.Quote{Last: decimal.NewFromInt(99), Source: "last", At: time.Now()}
	st := &fakeStore{active: []domain.Stock{activeStock("AAPL")}}
	pf := &fakeFetcher{quotes: map[string]pricefetcher.QuoteOrError{"AAPL": {Quote: quote}}}
	ev := &fakeEvaluator{alerts: []domain.Alert{{Ticker: "AAPL", Kind: domain.Buy}}}
	nt := &fakeNotifier{}

	s := newTestScheduler(st, pf, ev, nt, &fakeOrchestrator{})
	run, err := s.RunSession(context.Background(), domain.SessionAM)
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	if run.StocksPriced != 1 {
		t.Errorf("expected 1 stock priced, got %d", run.StocksPriced)
	}
	if run.AlertsFired != 1 {
		t.Errorf("expected 1 alert fired, got %d", run.AlertsFired)
	}
	if len(nt.notified) != 1 {
		t.Errorf("expected one digest dispatch, got %d", len(nt.notified))
	}
	if len(st.runs) != 1 || st.runs[0].FinishedAt == nil {
		t.Errorf("expected a finished SessionRun recorded, got %+v", st.runs)
	}
	if !run.StartedAt.Equal(testInstant) {
		t.Errorf("expected StartedAt from the injected clock, got %s", run.StartedAt)
	}
	if run.TradingDay.Day() != 29 {
		t.Errorf("expected the July 29 trading day, got %s", run.TradingDay)
	}
}

func TestRunSession_PerTickerFetchFailureIsNotFatal(t *testing.T) {
	st := &fakeStore{active: []domain.Stock{activeStock("AAPL"), activeStock("TSLA")}}
	pf := &fakeFetcher{quotes: map[string]pricefetcher.QuoteOrError{
		"AAPL": {Quote: pricefetcher.Quote{Last: decimal.NewFromInt(99), At: time.Now()}},
		"TSLA": {Err: domain.ErrNoQuote},
	}}
	nt := &fakeNotifier{}

	s := newTestScheduler(st, pf, &fakeEvaluator{}, nt, &fakeOrchestrator{})
	run, err := s.RunSession(context.Background(), domain.SessionAM)
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	if run.StocksPriced != 1 {
		t.Errorf("expected only the successful quote written, got %d", run.StocksPriced)
	}
}

func TestRunSession_MailFailureMarksRunFailed(t *testing.T) {
	st := &fakeStore{active: []domain.Stock{activeStock("AAPL")}}
	pf := &fakeFetcher{quotes: map[string]pricefetcher.QuoteOrError{
		"AAPL": {Quote: pricefetcher.Quote{Last: decimal.NewFromInt(99), At: time.Now()}},
	}}
	ev := &fakeEvaluator{alerts: []domain.Alert{{Ticker: "AAPL", Kind: domain.Buy}}}
	nt := &fakeNotifier{err: errors.New("smtp down")}

	s := newTestScheduler(st, pf, ev, nt, &fakeOrchestrator{})
	_, err := s.RunSession(context.Background(), domain.SessionAM)
	if !errors.Is(err, domain.ErrMailError) {
		t.Fatalf("expected ErrMailError, got %v", err)
	}
	if len(st.runs) != 1 || st.runs[0].Err == "" {
		t.Errorf("expected the SessionRun to record the failure, got %+v", st.runs)
	}
}

func TestRunExtraction_RecordsRun(t *testing.T) {
	st := &fakeStore{}
	orch := &fakeOrchestrator{results: []extractor.CategoryResult{{Category: domain.CategoryDaily, RowCount: 3}}}

	s := newTestScheduler(st, &fakeFetcher{}, &fakeEvaluator{}, &fakeNotifier{}, orch)
	run, err := s.RunExtraction(context.Background(), []domain.Category{domain.CategoryDaily})
	if err != nil {
		t.Fatalf("RunExtraction: %v", err)
	}
	if run.FinishedAt == nil {
		t.Error("expected FinishedAt set")
	}
	if len(orch.ran) != 1 || orch.ran[0][0] != domain.CategoryDaily {
		t.Errorf("expected the orchestrator run with daily, got %+v", orch.ran)
	}
	if len(st.runs) != 1 {
		t.Errorf("expected a SessionRun recorded, got %d", len(st.runs))
	}
}
