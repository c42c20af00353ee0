// Command marketwire is the newsletter-to-alert workflow runner: it wires
// the market calendar, newsletter source, OCR adapter, parsers, extractor,
// store, contract resolver, price fetcher, alert evaluator, and notifier
// into the three scheduled jobs (morning extraction, AM session, PM
// session). Configuration is env-driven; shutdown is signal-driven.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"jax-trading-assistant/marketwire/internal/calendar"
	"jax-trading-assistant/marketwire/internal/config"
	"jax-trading-assistant/marketwire/internal/contractresolver"
	"jax-trading-assistant/marketwire/internal/dbpool"
	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/evaluator"
	"jax-trading-assistant/marketwire/internal/extractor"
	"jax-trading-assistant/marketwire/internal/mailtransport"
	"jax-trading-assistant/marketwire/internal/notifier"
	"jax-trading-assistant/marketwire/internal/obslog"
	"jax-trading-assistant/marketwire/internal/ocr"
	"jax-trading-assistant/marketwire/internal/parser"
	"jax-trading-assistant/marketwire/internal/pricefetcher"
	"jax-trading-assistant/marketwire/internal/scheduler"
	"jax-trading-assistant/marketwire/internal/source"
	"jax-trading-assistant/marketwire/internal/store"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

// Workflow-runner exit codes.
const (
	exitOK                = 0
	exitOtherFailure      = 1
	exitNoMessage         = 2
	exitBrokerUnavailable = 3
	exitStoreError        = 4
	exitMailError         = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = obslog.WithRunInfo(ctx, obslog.RunInfo{RunID: uuid.NewString()})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		obslog.Info(ctx, "marketwire.shutdown_signal", nil)
		cancel()
	}()

	log.Printf("starting marketwire v%s (built: %s) mode=%s", version, buildTime, cfg.Mode)

	if cfg.Mode == config.ModeTest {
		return runTestMode(ctx, cfg)
	}

	db, err := dbpool.Connect(ctx, dbpool.DefaultConfig(cfg.DatabaseDSN))
	if err != nil {
		log.Printf("database connect failed: %v", err)
		return exitStoreError
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Printf("migrate failed: %v", err)
		return exitStoreError
	}
	st := store.New(db)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer redisClient.Close()
	resolver := contractresolver.New(redisClient, st, 5*time.Minute)

	gmailSvc, err := gmail.NewService(ctx, option.WithCredentialsFile(cfg.SourceCredentialsPath))
	if err != nil {
		log.Printf("gmail client init failed: %v", err)
		return exitOtherFailure
	}
	newsletterSource := source.NewGmailSource(gmailSvc, "me")

	ocrProvider := ocr.NewHTTPProvider("https://ocr.internal/v1/extract", cfg.OCRAPIKey)

	parsers := map[domain.Category]extractor.Parser{
		domain.CategoryDaily:         parser.NewDailyParser(),
		domain.CategoryDigitalAssets: parser.NewCryptoParser(ocrProvider, 6, 14),
		domain.CategoryETFs:          parser.NewETFParser(),
		domain.CategoryIdeas:         parser.NewIdeasParser(),
	}

	orch := extractor.New(newsletterSource, parsers, st, cfg.RuntimeParallelism)

	priceCfg := pricefetcher.DefaultConfig(cfg.BrokerHost, cfg.BrokerPort, cfg.BrokerClientID)
	priceCfg.Parallelism = cfg.RuntimeParallelism
	priceCfg.PacingDelay = time.Duration(cfg.RuntimeBrokerSpacingMs) * time.Millisecond
	prices := pricefetcher.New(priceCfg, resolver)

	eval := evaluator.New()

	transport := mailtransport.New(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPassword)
	notify := notifier.New(transport, cfg.MailFrom, cfg.MailTo)

	cal := calendar.New()

	sched := scheduler.New(scheduler.Config{
		Calendar:         cal,
		Orchestrator:     orch,
		PriceFetcher:     prices,
		Evaluator:        eval,
		Notifier:         notify,
		Store:            st,
		WeeklyCategories: cfg.CategoriesWeekly,
		DailyCategories:  cfg.CategoriesDaily,
		ExtractionTime:   mustJobSpec(cfg.ScheduleExtractionTime),
		AMTime:           mustJobSpec(cfg.ScheduleAMTime),
		PMTime:           mustJobSpec(cfg.SchedulePMTime),
	})

	if err := sched.Start(ctx); err != nil {
		log.Printf("scheduler start failed: %v", err)
		return exitOtherFailure
	}

	log.Println("marketwire scheduler running")
	<-ctx.Done()
	log.Println("marketwire shutting down")
	return exitOK
}

// runTestMode short-circuits before any external adapter is constructed,
// for local dry runs.
func runTestMode(ctx context.Context, cfg *config.Config) int {
	log.Printf("marketwire test mode: no external adapters wired, categories_daily=%v categories_weekly=%v", cfg.CategoriesDaily, cfg.CategoriesWeekly)
	obslog.Info(ctx, "marketwire.test_mode", nil)
	return exitOK
}

// mustJobSpec parses an "HH:MM" time-of-day string into a scheduler.JobSpec.
// Config.Validate has already rejected malformed schedule strings, so a
// parse failure here means a default slipped through unvalidated.
func mustJobSpec(hhmm string) scheduler.JobSpec {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		panic(fmt.Sprintf("marketwire: invalid schedule time %q: %v", hhmm, err))
	}
	return scheduler.JobSpec{Hour: hour, Minute: minute}
}
