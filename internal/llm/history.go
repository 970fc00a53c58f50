package llm

import "strings"

// FormatHistory renders a history as "User:"/"Assistant:" lines.
func FormatHistory(history []Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString(msg.Role + ": ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// WithHistory prefixes prompt with the rendered history, separated by a
// blank line. An empty history returns prompt unchanged.
func WithHistory(prompt string, history []Message) string {
	if len(history) == 0 {
		return prompt
	}
	return FormatHistory(history) + "\n" + prompt
}
