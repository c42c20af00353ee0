// Package scheduler wires the extraction, AM-session, and PM-session jobs
// into three robfig/cron entries, each gated by the NYSE market calendar
// and guarded by a per-job mutex so the same job never double-fires.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"jax-trading-assistant/marketwire/internal/calendar"
	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/evaluator"
	"jax-trading-assistant/marketwire/internal/extractor"
	"jax-trading-assistant/marketwire/internal/notifier"
	"jax-trading-assistant/marketwire/internal/obslog"
	"jax-trading-assistant/marketwire/internal/pricefetcher"
	"jax-trading-assistant/marketwire/internal/store"
)

// jobTimeout is the job-level deadline that aborts a run and marks it
// failed.
const jobTimeout = 20 * time.Minute

// extractionWindow is the Extractor Orchestrator's lookback window for the
// morning extraction job.
const extractionWindow = 72 * time.Hour

// sessionExtraction is the free-form SessionRun label for extraction jobs,
// which aren't scoped to an AM/PM session.
const sessionExtraction domain.Session = "EXTRACT"

// Scheduler wires the Extractor Orchestrator, Price Fetcher, Alert
// Evaluator, and Notifier into three cron-triggered jobs.
type Scheduler struct {
	cal       *calendar.Calendar
	cron      *cron.Cron
	orch      extractor.Orchestrator
	prices    pricefetcher.PriceFetcher
	evaluator evaluator.Evaluator
	notify    notifier.Notifier
	store     store.Store
	now       func() time.Time

	weeklyCategories []domain.Category
	dailyCategories  []domain.Category

	extractionMu sync.Mutex
	amMu         sync.Mutex
	pmMu         sync.Mutex
}

// Config bundles the wired components and the category split: the first
// market day of the ISO week gets the weekly categories too.
type Config struct {
	Calendar         *calendar.Calendar
	Orchestrator     extractor.Orchestrator
	PriceFetcher     pricefetcher.PriceFetcher
	Evaluator        evaluator.Evaluator
	Notifier         notifier.Notifier
	Store            store.Store
	WeeklyCategories []domain.Category
	DailyCategories  []domain.Category
	ExtractionTime   JobSpec
	AMTime           JobSpec
	PMTime           JobSpec

	// Now defaults to time.Now; tests inject a testsupport clock for
	// deterministic trading days and run timestamps.
	Now func() time.Time
}

// JobSpec is an hour:minute time-of-day trigger.
type JobSpec struct {
	Hour   int
	Minute int
}

// New builds a Scheduler from cfg. The three cron jobs are registered but
// not started until Start is called.
func New(cfg Config) *Scheduler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{
		cal:              cfg.Calendar,
		cron:             cron.New(cron.WithLocation(cfg.Calendar.Location())),
		orch:             cfg.Orchestrator,
		prices:           cfg.PriceFetcher,
		evaluator:        cfg.Evaluator,
		notify:           cfg.Notifier,
		store:            cfg.Store,
		now:              now,
		weeklyCategories: cfg.WeeklyCategories,
		dailyCategories:  cfg.DailyCategories,
	}

	spec := func(js JobSpec) string { return fmt.Sprintf("%d %d * * 1-5", js.Minute, js.Hour) }

	s.cron.AddFunc(spec(cfg.ExtractionTime), func() { s.onExtractionTick(context.Background()) })
	s.cron.AddFunc(spec(cfg.AMTime), func() { s.onSessionTick(context.Background(), domain.SessionAM) })
	s.cron.AddFunc(spec(cfg.PMTime), func() { s.onSessionTick(context.Background(), domain.SessionPM) })

	return s
}

// Start begins the cron scheduler. Cancelling ctx stops it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

func (s *Scheduler) onExtractionTick(ctx context.Context) {
	now := s.now().In(s.cal.Location())
	if !s.cal.IsMarketDay(now) {
		return
	}
	categories := s.dailyCategories
	firstOfWeek := s.cal.FirstMarketDayOfWeek(now)
	if sameDate(now, firstOfWeek) {
		categories = append(append([]domain.Category{}, s.dailyCategories...), s.weeklyCategories...)
	}
	if _, err := s.RunExtraction(ctx, categories); err != nil {
		obslog.Error(ctx, "scheduler.extraction_failed", err, nil)
	}
}

func (s *Scheduler) onSessionTick(ctx context.Context, session domain.Session) {
	now := s.now().In(s.cal.Location())
	if !s.cal.IsMarketDay(now) {
		return
	}
	if _, err := s.RunSession(ctx, session); err != nil {
		obslog.Error(ctx, "scheduler.session_failed", err, map[string]any{"session": string(session)})
	}
}

// RunExtraction runs the Extractor Orchestrator in commit mode with a
// 72-hour lookback window over categories, guarded by the extraction job's
// mutex and a 20-minute deadline. A SessionRun is recorded regardless of
// outcome.
func (s *Scheduler) RunExtraction(ctx context.Context, categories []domain.Category) (domain.SessionRun, error) {
	s.extractionMu.Lock()
	defer s.extractionMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	tradingDay, _ := s.cal.Today(s.now())
	run := domain.SessionRun{
		ID:         uuid.NewString(),
		Session:    sessionExtraction,
		TradingDay: tradingDay,
		StartedAt:  s.now(),
	}

	results, err := s.orch.Run(ctx, categories, extractionWindow, extractor.ModeCommit)
	finished := s.now()
	run.FinishedAt = &finished
	if err != nil {
		run.Err = err.Error()
	} else {
		for _, r := range results {
			if r.Err != nil && run.Err == "" {
				run.Err = fmt.Sprintf("%s: %v", r.Category, r.Err)
			}
		}
	}

	if recordErr := s.store.RecordSessionRun(ctx, run); recordErr != nil {
		obslog.Error(ctx, "scheduler.record_session_run_failed", recordErr, nil)
	}
	return run, err
}

// RunSession runs the Price Fetcher, then the Alert Evaluator, then the
// Notifier for session, guarded by that session's job mutex and a
// 20-minute deadline. Price-fetch writes for the session fully commit
// before evaluation begins.
func (s *Scheduler) RunSession(ctx context.Context, session domain.Session) (domain.SessionRun, error) {
	mu := s.sessionMutex(session)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	tradingDay, _ := s.cal.Today(s.now())
	run := domain.SessionRun{
		ID:         uuid.NewString(),
		Session:    session,
		TradingDay: tradingDay,
		StartedAt:  s.now(),
	}

	active, err := s.store.ListActive(ctx, nil)
	if err != nil {
		return s.finishSessionRun(ctx, run, fmt.Errorf("%w: list active: %v", domain.ErrStoreError, err))
	}

	requests := make([]pricefetcher.PriceRequest, 0, len(active))
	for _, stock := range active {
		requests = append(requests, pricefetcher.PriceRequest{Ticker: stock.Ticker, Category: stock.Category})
	}

	quotes, err := s.prices.FetchPrices(ctx, requests, session)
	if err != nil {
		return s.finishSessionRun(ctx, run, fmt.Errorf("%w: fetch prices: %v", domain.ErrBrokerUnavailable, err))
	}

	priced := 0
	for _, stock := range active {
		result, ok := quotes[stock.Ticker]
		if !ok || result.Err != nil {
			continue
		}
		if writeErr := s.store.UpdatePrice(ctx, stock.Ticker, stock.Category, session, result.Quote.Last, result.Quote.At); writeErr != nil {
			obslog.Error(ctx, "scheduler.update_price_failed", writeErr, map[string]any{"ticker": stock.Ticker})
			continue
		}
		priced++
	}
	run.StocksPriced = priced

	refreshed, err := s.store.ListActive(ctx, nil)
	if err != nil {
		return s.finishSessionRun(ctx, run, fmt.Errorf("%w: re-list active: %v", domain.ErrStoreError, err))
	}

	alerts := s.evaluator.Evaluate(ctx, refreshed, session, tradingDay)
	run.AlertsFired = len(alerts)

	if err := s.notify.Notify(ctx, alerts, session, tradingDay); err != nil {
		return s.finishSessionRun(ctx, run, fmt.Errorf("%w: %v", domain.ErrMailError, err))
	}

	return s.finishSessionRun(ctx, run, nil)
}

func (s *Scheduler) finishSessionRun(ctx context.Context, run domain.SessionRun, runErr error) (domain.SessionRun, error) {
	finished := s.now()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Err = runErr.Error()
	}
	if err := s.store.RecordSessionRun(ctx, run); err != nil {
		obslog.Error(ctx, "scheduler.record_session_run_failed", err, nil)
	}
	return run, runErr
}

func (s *Scheduler) sessionMutex(session domain.Session) *sync.Mutex {
	if session == domain.SessionPM {
		return &s.pmMu
	}
	return &s.amMu
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
