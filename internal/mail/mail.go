// Package mail wraps Gmail behind a narrow interface.
package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const userID = "me"

// Message is an inbox entry.
type Message struct {
	ID      string
	Snippet string
	Subject string
	From    string
}

// Draft is an outgoing message awaiting delivery.
type Draft struct {
	To      string
	Subject string
	Body    string
	Cc      string
	Bcc     string
}

// SendResult identifies a delivered message.
type SendResult struct {
	ID       string
	ThreadID string
}

// Mailer is the collaborator used by the read-mail action and draft confirmation.
type Mailer interface {
	ListInbox(ctx context.Context, max int) ([]Message, error)
	Send(ctx context.Context, d Draft) (SendResult, error)
}

var ErrInvalidDraft = errors.New("draft requires recipient, subject and body")

// Gmail talks to the Gmail v1 API.
type Gmail struct {
	svc     *gmail.Service
	timeout time.Duration
	from    string
}

// NewGmail builds the adapter. from is optional; Gmail fills in the
// authenticated address when it is empty.
func NewGmail(ctx context.Context, from string, timeout time.Duration, opts ...option.ClientOption) (*Gmail, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Gmail{svc: svc, timeout: timeout, from: from}, nil
}

func (g *Gmail) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

func (g *Gmail) ListInbox(ctx context.Context, max int) ([]Message, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if max <= 0 {
		max = 10
	}
	list, err := g.svc.Users.Messages.List(userID).
		LabelIds("INBOX").
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}

	out := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := g.svc.Users.Messages.Get(userID, ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", ref.Id, err)
		}
		m := Message{ID: ref.Id, Snippet: msg.Snippet}
		if msg.Payload != nil {
			for _, h := range msg.Payload.Headers {
				switch {
				case strings.EqualFold(h.Name, "Subject"):
					m.Subject = h.Value
				case strings.EqualFold(h.Name, "From"):
					m.From = h.Value
				}
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *Gmail) Send(ctx context.Context, d Draft) (SendResult, error) {
	raw, err := BuildRFC822(g.from, d)
	if err != nil {
		return SendResult{}, err
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	sent, err := g.svc.Users.Messages.Send(userID, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return SendResult{ID: sent.Id, ThreadID: sent.ThreadId}, nil
}
