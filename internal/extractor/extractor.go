// Package extractor implements the Extractor Orchestrator: it fans the run
// out into per-category jobs, drives the Source Adapter and Parsers, and
// commits through the Store. Categories are fully isolated; one category's
// failure never aborts another's.
package extractor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/obslog"
	"jax-trading-assistant/marketwire/internal/source"
	"jax-trading-assistant/marketwire/internal/store"
)

// RunMode selects whether a run mutates the Store or only reports a delta.
type RunMode string

const (
	ModeCommit   RunMode = "commit"
	ModeValidate RunMode = "validate"
)

// SubjectQueries maps each category to the subject fragment the publisher
// puts on that newsletter.
var SubjectQueries = map[domain.Category]string{
	domain.CategoryDaily:         "RISK RANGE",
	domain.CategoryDigitalAssets: "CRYPTO QUANT",
	domain.CategoryETFs:         `"ETF Pro Plus - Levels"`,
	domain.CategoryIdeas:        "Investing Ideas Newsletter",
}

// CategoryResult summarizes one category's extraction attempt.
type CategoryResult struct {
	Category         domain.Category
	MatchedMessageID string
	RowCount         int
	Delta            store.ReconciliationDelta
	Err              error
}

// Orchestrator runs the extraction pipeline across a set of categories.
type Orchestrator interface {
	Run(ctx context.Context, categories []domain.Category, window time.Duration, mode RunMode) ([]CategoryResult, error)
}

// MessageSource abstracts the subset of source.Source the orchestrator
// needs, so callers can wire category-specific source instances.
type MessageSource interface {
	ListMessages(ctx context.Context, subjectQuery string, since, until time.Time) ([]string, error)
	Fetch(ctx context.Context, id string) (source.Message, error)
}

// PipelineOrchestrator is the production Orchestrator.
type PipelineOrchestrator struct {
	Source      MessageSource
	Parsers     map[domain.Category]Parser
	Store       store.Store
	Parallelism int
}

// Parser is the narrow interface the orchestrator depends on (matches
// internal/parser.Parser, redeclared here so the orchestrator does not
// import the parser package; internal/parser satisfies it structurally).
type Parser interface {
	Parse(ctx context.Context, msg source.Message) ([]domain.ExtractedRow, []domain.Diagnostic)
}

// New builds a PipelineOrchestrator. parallelism <= 0 defaults to 4.
func New(src MessageSource, parsers map[domain.Category]Parser, st store.Store, parallelism int) *PipelineOrchestrator {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &PipelineOrchestrator{Source: src, Parsers: parsers, Store: st, Parallelism: parallelism}
}

// Run executes the pipeline over categories, per-category isolated: a
// failure in one category never aborts another's processing or mutation.
func (o *PipelineOrchestrator) Run(ctx context.Context, categories []domain.Category, window time.Duration, mode RunMode) ([]CategoryResult, error) {
	results := make([]CategoryResult, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Parallelism)

	for i, category := range categories {
		i, category := i, category
		g.Go(func() error {
			results[i] = o.runCategory(gctx, category, window, mode)
			return nil // per-category errors are captured in the result, never abort siblings
		})
	}
	_ = g.Wait() // the inner Go funcs never return an error themselves

	sort.Slice(results, func(i, j int) bool { return results[i].Category < results[j].Category })
	return results, nil
}

func (o *PipelineOrchestrator) runCategory(ctx context.Context, category domain.Category, window time.Duration, mode RunMode) CategoryResult {
	result := CategoryResult{Category: category}

	query, ok := SubjectQueries[category]
	if !ok {
		result.Err = fmt.Errorf("%w: no subject query configured for category %s", domain.ErrConfigError, category)
		return result
	}

	until := timeNow()
	since := until.Add(-window)

	ids, err := o.Source.ListMessages(ctx, query, since, until)
	if err != nil {
		obslog.Error(ctx, "extractor.list_messages_failed", err, map[string]any{"category": string(category)})
		result.Err = err
		return result
	}
	if len(ids) == 0 {
		result.Err = domain.ErrNoMessage
		return result
	}

	msg, err := fetchMostRecent(ctx, o.Source, ids)
	if err != nil {
		result.Err = err
		return result
	}
	result.MatchedMessageID = msg.ID

	parser, ok := o.Parsers[category]
	if !ok {
		result.Err = fmt.Errorf("%w: no parser configured for category %s", domain.ErrConfigError, category)
		return result
	}

	rows, diags := parser.Parse(ctx, msg)
	for _, d := range diags {
		obslog.Event(ctx, "warn", "extractor.parse_diagnostic", map[string]any{
			"category": string(d.Category), "stage": d.Stage, "ticker": d.Ticker, "message": d.Message,
		})
	}
	result.RowCount = len(rows)

	switch mode {
	case ModeCommit:
		delta, err := o.Store.ReplaceCategory(ctx, category, rows)
		if err != nil {
			result.Err = fmt.Errorf("%w: %v", domain.ErrStoreError, err)
			return result
		}
		result.Delta = delta
	case ModeValidate:
		delta, err := o.Store.DiffCategory(ctx, category, rows)
		if err != nil {
			result.Err = fmt.Errorf("%w: %v", domain.ErrStoreError, err)
			return result
		}
		result.Delta = delta
	}

	return result
}

// fetchMostRecent fetches every candidate message and returns the one with
// the latest Date header.
func fetchMostRecent(ctx context.Context, src MessageSource, ids []string) (source.Message, error) {
	var latest source.Message
	var found bool
	for _, id := range ids {
		msg, err := src.Fetch(ctx, id)
		if err != nil {
			continue
		}
		if !found || msg.Date.After(latest.Date) {
			latest = msg
			found = true
		}
	}
	if !found {
		return source.Message{}, domain.ErrNoMessage
	}
	return latest, nil
}

// timeNow is a package-level indirection so tests needing determinism can
// swap it; production code always uses wall-clock time.
var timeNow = time.Now
