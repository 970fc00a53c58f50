package bus

import "time"

// Kind distinguishes ordinary chat text from draft confirmation signals.
type Kind string

const (
	KindMessage Kind = "message"
	KindConfirm Kind = "confirm"
	KindCancel  Kind = "cancel"
)

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Kind      Kind
	DraftID   string // set for KindConfirm and KindCancel
	Timestamp time.Time
	Metadata  map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// IsSignal reports whether the message answers a pending draft instead of
// starting a new turn.
func (m *InboundMessage) IsSignal() bool {
	return m.Kind == KindConfirm || m.Kind == KindCancel
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	DraftID  string // non-empty when the reply awaits a confirm or cancel
	Metadata map[string]any
}
