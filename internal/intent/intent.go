// Package intent defines the action vocabulary and turns classifier output
// into an ordered intent queue.
package intent

import (
	"regexp"
	"strings"
)

type Intent string

const (
	None       Intent = ""
	Schedule   Intent = "SCHEDULE"
	ReadMail   Intent = "READ_MAIL"
	SendMail   Intent = "SEND_MAIL"
	ListEvents Intent = "LIST_EVENTS"
	WebSearch  Intent = "WEB_SEARCH"
	Converse   Intent = "CONVERSE"
)

// All lists the vocabulary in prompt order.
var All = []Intent{Schedule, ReadMail, SendMail, ListEvents, WebSearch, Converse}

// aliases accepts the labels of the Portuguese prompt alongside the canonical ones.
var aliases = map[string]Intent{
	"SCHEDULE":       Schedule,
	"READ_MAIL":      ReadMail,
	"SEND_MAIL":      SendMail,
	"LIST_EVENTS":    ListEvents,
	"WEB_SEARCH":     WebSearch,
	"CONVERSE":       Converse,
	"AGENDAR":        Schedule,
	"EMAIL":          ReadMail,
	"ENVIAR_EMAIL":   SendMail,
	"LISTAR_EVENTOS": ListEvents,
	"BUSCAR_WEB":     WebSearch,
	"CONVERSAR":      Converse,
}

var separators = regexp.MustCompile(`[,\n]+`)

func (i Intent) String() string {
	if i == None {
		return "NONE"
	}
	return string(i)
}

// Valid reports whether i is in the vocabulary.
func (i Intent) Valid() bool {
	_, ok := aliases[string(i)]
	return ok && i != None
}

// Lookup maps a single label, canonical or alias, to its intent.
func Lookup(label string) (Intent, bool) {
	in, ok := aliases[strings.ToUpper(strings.TrimSpace(label))]
	return in, ok
}

// Parse splits raw classifier output on commas and newlines and keeps the
// recognised labels in emitted order. Anything else is dropped.
func Parse(raw string) []Intent {
	var out []Intent
	for _, tok := range separators.Split(raw, -1) {
		if in, ok := Lookup(tok); ok {
			out = append(out, in)
		}
	}
	return out
}
