// Package source lists and fetches publisher newsletter emails over the
// Gmail API and normalizes them: HTML bodies, inline images in MIME-tree
// order, and attachments. Transient transport failures are absorbed by a
// circuit breaker plus exponential-backoff retry before surfacing as
// ErrSourceUnavailable.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/resilience"
)

// Image is one inline image found in a message, in the order its MIME part
// appears in a depth-first traversal of the message tree.
type Image struct {
	Index int
	Data  []byte
	MIME  string
}

// Attachment is a non-inline file attached to the message.
type Attachment struct {
	Filename string
	Data     []byte
	MIME     string
}

// Message is the normalized shape the Extractor Orchestrator consumes,
// independent of the Gmail wire format.
type Message struct {
	ID           string
	Subject      string
	Date         time.Time
	HTMLParts    []string
	InlineImages []Image
	Attachments  []Attachment
}

// Source lists and fetches newsletter messages for a category.
type Source interface {
	ListMessages(ctx context.Context, subjectQuery string, since, until time.Time) ([]string, error)
	Fetch(ctx context.Context, id string) (Message, error)
}

// Retry schedule for transient Gmail transport failures.
const (
	retryInitial  = 500 * time.Millisecond
	retryCap      = 8 * time.Second
	retryAttempts = 4
)

// GmailSource is the production Source backed by the Gmail API, with every
// call wrapped in a circuit breaker and exponential-backoff retry.
type GmailSource struct {
	svc     *gmail.UsersMessagesService
	breaker *resilience.CircuitBreaker
	userID  string
}

// NewGmailSource builds a GmailSource over an already-authenticated Gmail
// service. Credential loading (service account / OAuth) is the caller's
// responsibility.
func NewGmailSource(svc *gmail.Service, userID string) *GmailSource {
	if userID == "" {
		userID = "me"
	}
	return &GmailSource{
		svc:     svc.Users.Messages,
		breaker: resilience.New(resilience.DefaultConfig("newsletter-source")),
		userID:  userID,
	}
}

// categoryQuery builds the Gmail search query for a category, scoping by
// subject text and an after:/before: date window at Gmail's YYYY/MM/DD day
// precision.
func categoryQuery(subjectQuery string, since, until time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "subject:(%s)", subjectQuery)
	fmt.Fprintf(&b, " after:%s", since.Format("2006/01/02"))
	fmt.Fprintf(&b, " before:%s", until.Format("2006/01/02"))
	return b.String()
}

// ListMessages returns message IDs matching subjectQuery within [since, until).
func (s *GmailSource) ListMessages(ctx context.Context, subjectQuery string, since, until time.Time) ([]string, error) {
	query := categoryQuery(subjectQuery, since, until)

	var ids []string
	err := resilience.Retry(ctx, retryInitial, retryCap, retryAttempts, func() error {
		return s.breaker.ExecuteCtx(ctx, func(ctx context.Context) error {
			ids = ids[:0]
			pageToken := ""
			for {
				call := s.svc.List(s.userID).Q(query).Context(ctx)
				if pageToken != "" {
					call = call.PageToken(pageToken)
				}
				resp, err := call.Do()
				if err != nil {
					return fmt.Errorf("%w: list messages: %v", domain.ErrSourceUnavailable, err)
				}
				for _, m := range resp.Messages {
					ids = append(ids, m.Id)
				}
				if resp.NextPageToken == "" {
					return nil
				}
				pageToken = resp.NextPageToken
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no messages matched %q", domain.ErrNoMessage, query)
	}
	return ids, nil
}

// Fetch retrieves and normalizes one message by ID.
func (s *GmailSource) Fetch(ctx context.Context, id string) (Message, error) {
	var raw *gmail.Message
	err := resilience.Retry(ctx, retryInitial, retryCap, retryAttempts, func() error {
		return s.breaker.ExecuteCtx(ctx, func(ctx context.Context) error {
			m, err := s.svc.Get(s.userID, id).Format("full").Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("%w: fetch message %s: %v", domain.ErrSourceUnavailable, id, err)
			}
			raw = m
			return nil
		})
	})
	if err != nil {
		return Message{}, err
	}
	return normalize(raw), nil
}

func normalize(raw *gmail.Message) Message {
	msg := Message{ID: raw.Id}
	if raw.Payload != nil {
		for _, h := range raw.Payload.Headers {
			if strings.EqualFold(h.Name, "Subject") {
				msg.Subject = h.Value
			}
		}
	}
	if raw.InternalDate != 0 {
		msg.Date = time.UnixMilli(raw.InternalDate)
	}

	idx := 0
	if raw.Payload != nil {
		walkParts(raw.Payload, &msg, &idx)
	}
	return msg
}

// walkParts does a depth-first traversal of the MIME tree, collecting HTML
// bodies and giving every inline image a stable positional index in
// traversal order (the contract category parsers depend on this ordering
// to map images to specific table rows).
func walkParts(part *gmail.MessagePart, msg *Message, idx *int) {
	switch {
	case part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "":
		if data, err := decodeBase64URL(part.Body.Data); err == nil {
			msg.HTMLParts = append(msg.HTMLParts, string(data))
		}
	case strings.HasPrefix(part.MimeType, "image/") && part.Body != nil && part.Body.Data != "":
		if data, err := decodeBase64URL(part.Body.Data); err == nil {
			msg.InlineImages = append(msg.InlineImages, Image{Index: *idx, Data: data, MIME: part.MimeType})
		}
		*idx++
	case part.Filename != "" && part.Body != nil && part.Body.Data != "":
		if data, err := decodeBase64URL(part.Body.Data); err == nil {
			msg.Attachments = append(msg.Attachments, Attachment{Filename: part.Filename, Data: data, MIME: part.MimeType})
		}
	}

	for _, sub := range part.Parts {
		walkParts(sub, msg, idx)
	}
}

func decodeBase64URL(data string) ([]byte, error) {
	return base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
}
