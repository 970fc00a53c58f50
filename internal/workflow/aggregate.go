package workflow

import "strings"

// Aggregate merges the outputs of one turn into a single reply, separating
// them with a blank line. With no outputs it falls back to last.
func Aggregate(outputs []string, last string) string {
	if len(outputs) == 0 {
		return last
	}
	return strings.Join(outputs, "\n\n")
}
