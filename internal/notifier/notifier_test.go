package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/testsupport"
)

type fakeTransport struct {
	sent    []Message
	failN   int
	calls   int
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("transient dispatch failure")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func alert(ticker string, kind domain.AlertKind) domain.Alert {
	return domain.Alert{
		Ticker:     ticker,
		Category:   domain.CategoryDaily,
		Kind:       kind,
		Price:      testsupport.Dec("100.00"),
		Threshold:  testsupport.Dec("100.00"),
		Sentiment:  domain.Bullish,
		Session:    domain.SessionAM,
		TradingDay: time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC),
	}
}

func TestNotify_EmptyAlertsSendsNothing(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, "alerts@example.com", []string{"trader@example.com"})

	if err := n.Notify(context.Background(), nil, domain.SessionAM, time.Now()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(ft.sent) != 0 {
		t.Errorf("expected no dispatch for an empty alert list, got %d", len(ft.sent))
	}
}

func TestNotify_RendersSubjectAndBody(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, "alerts@example.com", []string{"trader@example.com"})

	err := n.Notify(context.Background(), []domain.Alert{alert("AAPL", domain.Buy)}, domain.SessionAM, time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected one dispatched message, got %d", len(ft.sent))
	}
	msg := ft.sent[0]
	if msg.Subject != "[AM] 1 alerts - 2026-07-29" {
		t.Errorf("unexpected subject: %q", msg.Subject)
	}
	if !strings.Contains(msg.Plain, "AAPL") || !strings.Contains(msg.HTML, "AAPL") {
		t.Errorf("expected both parts to mention AAPL, got plain=%q html=%q", msg.Plain, msg.HTML)
	}
}

func TestNotify_RetriesOnceThenSurfacesError(t *testing.T) {
	ft := &fakeTransport{failN: 2}
	n := New(ft, "alerts@example.com", []string{"trader@example.com"})

	err := n.Notify(context.Background(), []domain.Alert{alert("AAPL", domain.Buy)}, domain.SessionAM, time.Now())
	if err == nil {
		t.Fatal("expected an error after both attempts fail")
	}
	if ft.calls != 2 {
		t.Errorf("expected exactly one retry (2 total calls), got %d", ft.calls)
	}
}

func TestNotify_SucceedsOnRetry(t *testing.T) {
	ft := &fakeTransport{failN: 1}
	n := New(ft, "alerts@example.com", []string{"trader@example.com"})

	err := n.Notify(context.Background(), []domain.Alert{alert("AAPL", domain.Buy)}, domain.SessionAM, time.Now())
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if len(ft.sent) != 1 {
		t.Errorf("expected the message dispatched on the retry, got %d", len(ft.sent))
	}
}
