package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/icaroo-oliveira/HermesAI/internal/llm"
	"github.com/icaroo-oliveira/HermesAI/internal/mail"
	"github.com/icaroo-oliveira/HermesAI/internal/session"
)

// ReadMail summarizes the most recent inbox messages.
type ReadMail struct {
	deps Deps
}

func (a *ReadMail) Run(ctx context.Context, st *session.State) string {
	d := a.deps
	if d.Mailer == nil {
		return msgMailOff
	}

	msgs, err := d.Mailer.ListInbox(ctx, inboxLimit)
	if err != nil {
		d.Logger.Warn("list inbox failed", zap.Error(err))
		return fmt.Sprintf("Failed to fetch emails: %v", err)
	}
	if len(msgs) == 0 {
		return msgNoEmails
	}

	summaries := make([]session.EmailSummary, 0, len(msgs))
	for _, m := range msgs {
		subject := strings.TrimSpace(m.Snippet)
		if subject == "" {
			subject = noSubject
		}
		summaries = append(summaries, session.EmailSummary{Subject: subject, Sender: unknownSender, ID: m.ID})
	}
	email := ensureEmail(st)
	email.Emails = summaries

	var sb strings.Builder
	sb.WriteString("Email subjects found:")
	for _, s := range summaries {
		sb.WriteString("\n- ")
		sb.WriteString(s.Subject)
	}
	return sb.String()
}

// SendMail drafts an email and asks for confirmation. Delivery happens only
// when the draft is confirmed out of band.
type SendMail struct {
	deps Deps
}

type draftFields struct {
	To      addressList `json:"to"`
	Subject string      `json:"subject"`
	Body    string      `json:"body"`
	Cc      addressList `json:"cc"`
	Bcc     addressList `json:"bcc"`
}

// addressList decodes a single string or an array of strings.
type addressList []string

func (l *addressList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = cleanAddresses(many)
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return nil
	}
	*l = cleanAddresses(strings.FieldsFunc(one, func(r rune) bool { return r == ',' || r == ';' }))
	return nil
}

func cleanAddresses(in []string) addressList {
	out := make(addressList, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (a *SendMail) Run(ctx context.Context, st *session.State) string {
	d := a.deps
	if d.Mailer == nil {
		return msgMailOff
	}
	if d.Reasoner == nil {
		return msgReasonerOff
	}

	raw, err := d.Reasoner.Ask(ctx, draftPrompt(st.Input), st.History)
	if err != nil {
		d.Logger.Warn("draft extraction failed", zap.Error(err))
		return fmt.Sprintf("%s (%v)", msgDraftClarify, err)
	}

	var fields draftFields
	if err := llm.ExtractJSON(raw, &fields); err != nil {
		return msgDraftClarify
	}
	if len(fields.To) == 0 || strings.TrimSpace(fields.Subject) == "" || strings.TrimSpace(fields.Body) == "" {
		return msgDraftClarify
	}

	draft := &session.Draft{
		ID:        d.NewID(),
		To:        strings.Join(fields.To, ", "),
		Subject:   strings.TrimSpace(fields.Subject),
		Body:      strings.TrimSpace(fields.Body),
		Cc:        fields.Cc,
		Bcc:       fields.Bcc,
		CreatedAt: d.now(),
	}
	ensureEmail(st).Pending = draft
	return DraftPreview(draft)
}

// DraftPreview renders the confirmation request for a pending draft.
func DraftPreview(d *session.Draft) string {
	var sb strings.Builder
	sb.WriteString("Please review this email before I send it:\n")
	fmt.Fprintf(&sb, "To: %s\n", d.To)
	if len(d.Cc) > 0 {
		fmt.Fprintf(&sb, "Cc: %s\n", strings.Join(d.Cc, ", "))
	}
	if len(d.Bcc) > 0 {
		fmt.Fprintf(&sb, "Bcc: %s\n", strings.Join(d.Bcc, ", "))
	}
	fmt.Fprintf(&sb, "Subject: %s\n\n%s\n\n", d.Subject, d.Body)
	sb.WriteString("Confirm to send it or cancel to discard it.")
	return sb.String()
}

// ToMail converts a confirmed draft for the mailer.
func ToMail(d *session.Draft) mail.Draft {
	return mail.Draft{
		To:      d.To,
		Subject: d.Subject,
		Body:    d.Body,
		Cc:      strings.Join(d.Cc, ", "),
		Bcc:     strings.Join(d.Bcc, ", "),
	}
}

func ensureEmail(st *session.State) *session.EmailScratch {
	if st.Scratch.Email == nil {
		st.Scratch.Email = &session.EmailScratch{}
	}
	return st.Scratch.Email
}
