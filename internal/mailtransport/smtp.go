// Package mailtransport is a minimal net/smtp adapter behind the
// notifier.MailTransport interface.
package mailtransport

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"jax-trading-assistant/marketwire/internal/notifier"
)

// SMTPTransport sends a notifier.Message over SMTP with STARTTLS/PLAIN auth,
// matching the host/port/user/password surface of internal/config.Config.
type SMTPTransport struct {
	host     string
	port     int
	user     string
	password string
}

// New builds an SMTPTransport.
func New(host string, port int, user, password string) *SMTPTransport {
	return &SMTPTransport{host: host, port: port, user: user, password: password}
}

// Send dials the configured SMTP host and delivers msg as a multipart
// plain+HTML email. The dispatch deadline is the caller's
// responsibility via ctx; net/smtp has no native context support, so Send
// returns promptly on auth/dial errors and relies on the caller's ctx
// deadline having already elapsed before Send is invoked for a timed-out run.
func (t *SMTPTransport) Send(ctx context.Context, msg notifier.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	var auth smtp.Auth
	if t.user != "" {
		auth = smtp.PlainAuth("", t.user, t.password, t.host)
	}

	body := buildMultipart(msg)
	if err := smtp.SendMail(addr, auth, msg.From, msg.To, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMultipart(msg notifier.Message) []byte {
	const boundary = "newsletter-worker-digest-boundary"
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Plain)
	b.WriteString("\r\n\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
