// Package store implements the Postgres-backed ticker table: category-
// scoped atomic replace, price updates, the contract-resolution cache, and
// session-run bookkeeping. Uses database/sql over the pgx/v5 stdlib driver
// (see internal/dbpool for connection pooling).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/shopspring/decimal"

	"jax-trading-assistant/marketwire/internal/domain"
)

// ReconciliationDelta reports the effect of a category-scoped replace (or,
// in validate mode, the effect a replace *would* have).
type ReconciliationDelta struct {
	Added   []string
	Removed []string
	Changed []string
}

// ListFilter narrows ListActive's result set.
type ListFilter struct {
	Category *domain.Category
	Session  *domain.Session
}

// ContractDescriptor is the cached contract-resolution result for a ticker.
type ContractDescriptor struct {
	Kind     string `json:"kind"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Variant  string `json:"variant"`
}

// Store is the ticker table's full contract. DiffCategory is the read-only
// sibling of ReplaceCategory, backing the Extractor Orchestrator's
// validate mode.
type Store interface {
	ReplaceCategory(ctx context.Context, category domain.Category, rows []domain.ExtractedRow) (ReconciliationDelta, error)
	DiffCategory(ctx context.Context, category domain.Category, rows []domain.ExtractedRow) (ReconciliationDelta, error)
	ListActive(ctx context.Context, filter *ListFilter) ([]domain.Stock, error)
	UpdatePrice(ctx context.Context, ticker string, category domain.Category, session domain.Session, price decimal.Decimal, at time.Time) error
	CacheContract(ctx context.Context, ticker string, category domain.Category, descriptor ContractDescriptor) error
	GetContract(ctx context.Context, ticker string, category domain.Category) (ContractDescriptor, bool, error)
	RecordSessionRun(ctx context.Context, run domain.SessionRun) error
}

// PostgresStore is the production Store, over an already-connected
// *sql.DB (see internal/dbpool.Connect).
type PostgresStore struct {
	db *sql.DB
}

// New builds a PostgresStore.
func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// categoryLockKey derives a stable advisory-lock key from a category name.
func categoryLockKey(category domain.Category) int64 {
	h := fnv.New64a()
	h.Write([]byte(category))
	return int64(h.Sum64())
}

// ReplaceCategory deletes every row with category and inserts rows, inside
// one transaction guarded by a category-scoped Postgres advisory lock so
// concurrent replaces of different categories never block each other.
// Rows in other categories are untouched.
func (s *PostgresStore) ReplaceCategory(ctx context.Context, category domain.Category, rows []domain.ExtractedRow) (ReconciliationDelta, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReconciliationDelta{}, fmt.Errorf("%w: begin tx: %v", domain.ErrStoreError, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, categoryLockKey(category)); err != nil {
		return ReconciliationDelta{}, fmt.Errorf("%w: advisory lock: %v", domain.ErrStoreError, err)
	}

	existing, err := queryTickers(ctx, tx, category)
	if err != nil {
		return ReconciliationDelta{}, fmt.Errorf("%w: query existing: %v", domain.ErrStoreError, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stocks WHERE category = $1`, category); err != nil {
		return ReconciliationDelta{}, fmt.Errorf("%w: delete category: %v", domain.ErrStoreError, err)
	}

	now := time.Now().UTC()
	for _, row := range rows {
		stock := domain.Stock{
			Ticker:    row.Ticker,
			Category:  category,
			Sentiment: row.Sentiment,
			BuyTrade:  row.BuyTrade,
			SellTrade: row.SellTrade,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := stock.Validate(); err != nil {
			return ReconciliationDelta{}, fmt.Errorf("%w: row %s: %v", domain.ErrStoreError, row.Ticker, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stocks (ticker, category, sentiment, buy_trade, sell_trade, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (ticker, category) DO UPDATE SET
				sentiment = EXCLUDED.sentiment,
				buy_trade = EXCLUDED.buy_trade,
				sell_trade = EXCLUDED.sell_trade,
				updated_at = EXCLUDED.updated_at
		`, stock.Ticker, stock.Category, stock.Sentiment, stock.BuyTrade, stock.SellTrade, stock.CreatedAt, stock.UpdatedAt)
		if err != nil {
			return ReconciliationDelta{}, fmt.Errorf("%w: insert row %s: %v", domain.ErrStoreError, row.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ReconciliationDelta{}, fmt.Errorf("%w: commit: %v", domain.ErrStoreError, err)
	}

	return diffTickers(existing, rows), nil
}

// DiffCategory reports what ReplaceCategory would change, without
// mutating the store.
func (s *PostgresStore) DiffCategory(ctx context.Context, category domain.Category, rows []domain.ExtractedRow) (ReconciliationDelta, error) {
	dbRows, err := s.db.QueryContext(ctx, `SELECT ticker FROM stocks WHERE category = $1`, category)
	if err != nil {
		return ReconciliationDelta{}, fmt.Errorf("%w: %v", domain.ErrStoreError, err)
	}
	defer dbRows.Close()

	existing, err := collectTickers(dbRows)
	if err != nil {
		return ReconciliationDelta{}, fmt.Errorf("%w: %v", domain.ErrStoreError, err)
	}
	return diffTickers(existing, rows), nil
}

type queryRower interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryTickers(ctx context.Context, q queryRower, category domain.Category) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT ticker FROM stocks WHERE category = $1`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickers(rows)
}

func collectTickers(rows *sql.Rows) ([]string, error) {
	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

func diffTickers(existing []string, rows []domain.ExtractedRow) ReconciliationDelta {
	existingSet := make(map[string]bool, len(existing))
	for _, t := range existing {
		existingSet[t] = true
	}
	newSet := make(map[string]bool, len(rows))
	for _, r := range rows {
		newSet[r.Ticker] = true
	}

	var delta ReconciliationDelta
	for _, r := range rows {
		if existingSet[r.Ticker] {
			delta.Changed = append(delta.Changed, r.Ticker)
		} else {
			delta.Added = append(delta.Added, r.Ticker)
		}
	}
	for _, t := range existing {
		if !newSet[t] {
			delta.Removed = append(delta.Removed, t)
		}
	}
	return delta
}

// ListActive returns stocks with a sentiment and at least one positive
// threshold (buy_trade > 0 OR sell_trade > 0). Only filter.Category narrows
// the result; filter.Session is not applied.
func (s *PostgresStore) ListActive(ctx context.Context, filter *ListFilter) ([]domain.Stock, error) {
	query := `
		SELECT ticker, category, sentiment, buy_trade, sell_trade, am_price, pm_price,
		       last_price_update, contract_descriptor, contract_resolved, created_at, updated_at
		FROM stocks
		WHERE sentiment IS NOT NULL AND (buy_trade > 0 OR sell_trade > 0)
	`
	args := []any{}
	if filter != nil && filter.Category != nil {
		args = append(args, *filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreError, err)
	}
	defer rows.Close()

	var stocks []domain.Stock
	for rows.Next() {
		var st domain.Stock
		if err := rows.Scan(&st.Ticker, &st.Category, &st.Sentiment, &st.BuyTrade, &st.SellTrade,
			&st.AMPrice, &st.PMPrice, &st.LastPriceUpdate, &st.ContractDescriptor, &st.ContractResolved,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStoreError, err)
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

// UpdatePrice writes the session's price field. A write must strictly
// advance last_price_update; that is enforced in the WHERE clause rather
// than a read-then-write race.
func (s *PostgresStore) UpdatePrice(ctx context.Context, ticker string, category domain.Category, session domain.Session, price decimal.Decimal, at time.Time) error {
	var column string
	switch session {
	case domain.SessionAM:
		column = "am_price"
	case domain.SessionPM:
		column = "pm_price"
	default:
		return fmt.Errorf("%w: update_price requires AM or PM session, got %s", domain.ErrConfigError, session)
	}

	query := fmt.Sprintf(`
		UPDATE stocks SET %s = $1, last_price_update = $2, updated_at = $2
		WHERE ticker = $3 AND category = $4 AND (last_price_update IS NULL OR $2 > last_price_update)
	`, column)

	_, err := s.db.ExecContext(ctx, query, price, at, ticker, category)
	if err != nil {
		return fmt.Errorf("%w: update_price: %v", domain.ErrStoreError, err)
	}
	// A zero-rows-affected result means the write was stale and was
	// correctly skipped; that is not an error condition.
	return nil
}

// CacheContract persists a resolved contract descriptor for (ticker, category).
func (s *PostgresStore) CacheContract(ctx context.Context, ticker string, category domain.Category, descriptor ContractDescriptor) error {
	payload, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("%w: marshal descriptor: %v", domain.ErrStoreError, err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE stocks SET contract_descriptor = $1, contract_resolved = true
		WHERE ticker = $2 AND category = $3
	`, payload, ticker, category)
	if err != nil {
		return fmt.Errorf("%w: cache_contract: %v", domain.ErrStoreError, err)
	}
	return nil
}

// GetContract reads back a cached contract descriptor, if resolved.
func (s *PostgresStore) GetContract(ctx context.Context, ticker string, category domain.Category) (ContractDescriptor, bool, error) {
	var payload []byte
	var resolved bool
	err := s.db.QueryRowContext(ctx, `
		SELECT contract_descriptor, contract_resolved FROM stocks WHERE ticker = $1 AND category = $2
	`, ticker, category).Scan(&payload, &resolved)
	if err == sql.ErrNoRows {
		return ContractDescriptor{}, false, nil
	}
	if err != nil {
		return ContractDescriptor{}, false, fmt.Errorf("%w: get_contract: %v", domain.ErrStoreError, err)
	}
	if !resolved || len(payload) == 0 {
		return ContractDescriptor{}, false, nil
	}
	var descriptor ContractDescriptor
	if err := json.Unmarshal(payload, &descriptor); err != nil {
		return ContractDescriptor{}, false, fmt.Errorf("%w: unmarshal descriptor: %v", domain.ErrStoreError, err)
	}
	return descriptor, true, nil
}

// RecordSessionRun persists a scheduler run's summary for observability and
// rerun idempotency checks.
func (s *PostgresStore) RecordSessionRun(ctx context.Context, run domain.SessionRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_runs (id, session, trading_day, started_at, finished_at, stocks_priced, alerts_fired, err)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			stocks_priced = EXCLUDED.stocks_priced,
			alerts_fired = EXCLUDED.alerts_fired,
			err = EXCLUDED.err
	`, run.ID, run.Session, run.TradingDay, run.StartedAt, run.FinishedAt, run.StocksPriced, run.AlertsFired, run.Err)
	if err != nil {
		return fmt.Errorf("%w: record_session_run: %v", domain.ErrStoreError, err)
	}
	return nil
}
