package mailtransport

import (
	"context"
	"strings"
	"testing"

	"jax-trading-assistant/marketwire/internal/notifier"
)

func TestSend_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New("127.0.0.1", 2525, "", "")
	err := tr.Send(ctx, notifier.Message{From: "a@example.com", To: []string{"b@example.com"}, Subject: "test"})
	if err == nil {
		t.Fatal("expected an error for an already-cancelled context")
	}
}

func TestBuildMultipart_IncludesBothParts(t *testing.T) {
	msg := notifier.Message{
		From:    "alerts@example.com",
		To:      []string{"trader@example.com"},
		Subject: "[AM] 1 alerts - 2026-07-29",
		Plain:   "BUY AAPL",
		HTML:    "<b>BUY AAPL</b>",
	}
	body := string(buildMultipart(msg))

	for _, want := range []string{"BUY AAPL", "<b>BUY AAPL</b>", "multipart/alternative", "trader@example.com"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected multipart body to contain %q", want)
		}
	}
}
