package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/testsupport"
)

func TestReplaceCategory_DeleteThenInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ticker FROM stocks WHERE category = $1")).
		WithArgs(domain.CategoryDaily).
		WillReturnRows(sqlmock.NewRows([]string{"ticker"}).AddRow("OLD"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM stocks WHERE category = $1")).
		WithArgs(domain.CategoryDaily).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stocks")).
		WithArgs("AAPL", domain.CategoryDaily, domain.Bullish, testsupport.Dec("190.00"), testsupport.Dec("210.00"), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	delta, err := s.ReplaceCategory(context.Background(), domain.CategoryDaily, []domain.ExtractedRow{
		{Ticker: "AAPL", Sentiment: domain.Bullish, BuyTrade: testsupport.Dec("190.00"), SellTrade: testsupport.Dec("210.00")},
	})
	if err != nil {
		t.Fatalf("ReplaceCategory: %v", err)
	}
	if len(delta.Added) != 1 || delta.Added[0] != "AAPL" {
		t.Errorf("expected AAPL added, got %+v", delta)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != "OLD" {
		t.Errorf("expected OLD removed, got %+v", delta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceCategory_RollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ticker FROM stocks WHERE category = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"ticker"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM stocks WHERE category = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stocks")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err = s.ReplaceCategory(context.Background(), domain.CategoryDaily, []domain.ExtractedRow{
		{Ticker: "AAPL", Sentiment: domain.Bullish, BuyTrade: testsupport.Dec("190.00"), SellTrade: testsupport.Dec("210.00")},
	})
	if err == nil {
		t.Fatal("expected error from failed insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdatePrice_StaleWriteSkippedIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stocks SET am_price")).
		WillReturnResult(sqlmock.NewResult(0, 0)) // zero rows affected: stale write

	err = s.UpdatePrice(context.Background(), "AAPL", domain.CategoryDaily, domain.SessionAM, testsupport.Dec("195.00"), time.Now())
	if err != nil {
		t.Errorf("stale write should not surface as an error, got %v", err)
	}
}

func TestUpdatePrice_RejectsNonPriceSession(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	err = s.UpdatePrice(context.Background(), "AAPL", domain.CategoryDaily, domain.SessionMid, testsupport.Dec("1"), time.Now())
	if err == nil {
		t.Fatal("expected error for a non AM/PM session")
	}
}
