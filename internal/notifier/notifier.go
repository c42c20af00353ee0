// Package notifier renders a session's fired alerts into a plain+HTML
// digest and dispatches it through an injected MailTransport. An empty
// alert list produces no email.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"sort"
	texttemplate "text/template"
	"time"

	"jax-trading-assistant/marketwire/internal/domain"
)

// Message is one rendered digest, ready for dispatch.
type Message struct {
	To      []string
	From    string
	Subject string
	Plain   string
	HTML    string
}

// MailTransport sends a rendered Message. SMTP mechanics live behind this
// interface, in internal/mailtransport.
type MailTransport interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier renders and dispatches a session's alert digest.
type Notifier interface {
	Notify(ctx context.Context, alerts []domain.Alert, session domain.Session, tradingDay time.Time) error
}

// DigestNotifier is the production Notifier.
type DigestNotifier struct {
	transport MailTransport
	from      string
	to        []string
}

// New builds a DigestNotifier.
func New(transport MailTransport, from string, to []string) *DigestNotifier {
	return &DigestNotifier{transport: transport, from: from, to: to}
}

// digestData is the template execution context.
type digestData struct {
	Session    domain.Session
	TradingDay string
	Count      int
	Alerts     []domain.Alert
}

var plainTemplate = texttemplate.Must(texttemplate.New("digest.txt").Parse(
	`{{.Count}} alert(s) for {{.Session}} on {{.TradingDay}}

{{range .Alerts -}}
{{.Kind}} {{.Ticker}} ({{.Category}}) @ {{.Price}} vs threshold {{.Threshold}} [{{.Sentiment}}]
{{end -}}
`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("digest.html").Parse(
	`<html><body>
<h2>{{.Count}} alert(s) for {{.Session}} on {{.TradingDay}}</h2>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Kind</th><th>Ticker</th><th>Category</th><th>Price</th><th>Threshold</th><th>Sentiment</th></tr>
{{range .Alerts -}}
<tr><td>{{.Kind}}</td><td>{{.Ticker}}</td><td>{{.Category}}</td><td>{{.Price}}</td><td>{{.Threshold}}</td><td>{{.Sentiment}}</td></tr>
{{end -}}
</table>
</body></html>
`))

// Notify renders and sends the digest for alerts. An empty alert list
// produces no email. Dispatch is retried once; a second failure surfaces
// the error to the caller.
func (n *DigestNotifier) Notify(ctx context.Context, alerts []domain.Alert, session domain.Session, tradingDay time.Time) error {
	if len(alerts) == 0 {
		return nil
	}

	sorted := make([]domain.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Ticker < b.Ticker
	})

	data := digestData{
		Session:    session,
		TradingDay: tradingDay.Format("2006-01-02"),
		Count:      len(sorted),
		Alerts:     sorted,
	}

	var plainBuf, htmlBuf bytes.Buffer
	if err := plainTemplate.Execute(&plainBuf, data); err != nil {
		return fmt.Errorf("%w: render plain digest: %v", domain.ErrMailError, err)
	}
	if err := htmlTemplate.Execute(&htmlBuf, data); err != nil {
		return fmt.Errorf("%w: render html digest: %v", domain.ErrMailError, err)
	}

	msg := Message{
		To:      n.to,
		From:    n.from,
		Subject: fmt.Sprintf("[%s] %d alerts - %s", session, len(sorted), data.TradingDay),
		Plain:   plainBuf.String(),
		HTML:    htmlBuf.String(),
	}

	if err := n.transport.Send(ctx, msg); err != nil {
		if err2 := n.transport.Send(ctx, msg); err2 != nil {
			return fmt.Errorf("%w: %v", domain.ErrMailError, err2)
		}
	}
	return nil
}
