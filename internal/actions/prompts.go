package actions

import (
	"fmt"
	"strings"
	"time"
)

func schedulePrompt(text string, now time.Time) string {
	return fmt.Sprintf(`Extract the event the user wants to schedule from the text below. Reply only with JSON using the keys:
- title (short event title)
- start (ISO 8601 local date and time, e.g. 2025-07-15T14:00:00)
- duration_minutes (integer, optional)
If the year is not given, use %d. Today is %s.

Examples:
"Dentist on 2025-07-14 at 14h"
Answer: {"title": "Dentist", "start": "2025-07-14T14:00:00"}

"Meeting with Ana on 2025-07-15 at 10:30 for 90 minutes"
Answer: {"title": "Meeting with Ana", "start": "2025-07-15T10:30:00", "duration_minutes": 90}

Text: %s
`, now.Year(), now.Format("2006-01-02 (Monday)"), text)
}

func periodPrompt(text string, now time.Time) string {
	return fmt.Sprintf(`Extract the start and end dates of the period of events mentioned in the text below. Reply only with JSON using the keys:
- data_inicial (ISO 8601, e.g. 2025-07-15T00:00:00)
- data_final (ISO 8601, e.g. 2025-07-20T23:59:59, optional)
If there is no end date, return only data_inicial. If no date is mentioned, return {}.
If the year is not given, use %d. Today is %s.
If the text asks only about a single day, use only that day as the period.

Examples:
"What are my commitments on 2025-07-14?"
Answer: {"data_inicial": "2025-07-14T00:00:00"}

"What are my commitments from 2025-07-13 to 2025-07-18?"
Answer: {"data_inicial": "2025-07-13T00:00:00", "data_final": "2025-07-18T23:59:59"}

Text: %s
`, now.Year(), now.Format("2006-01-02 (Monday)"), text)
}

func draftPrompt(text string) string {
	return `Extract the email the user wants to send from the text below. Reply only with JSON using the keys:
- to (recipient address, or several separated by commas)
- subject
- body (the full message to send, written from the user's request)
- cc (optional)
- bcc (optional)
Leave a key empty when the text does not provide it. Do not invent addresses.

Text: ` + text + "\n"
}

func conversePrompt(input, memoryContext, webResults string) string {
	var sb strings.Builder
	sb.WriteString("You are Hermes, a personal assistant with long-term memory.\n\n")
	if memoryContext != "" {
		sb.WriteString("RELEVANT MEMORIES:\n")
		sb.WriteString(memoryContext)
		sb.WriteString("\n")
	}
	if webResults != "" {
		sb.WriteString("LATEST WEB SEARCH RESULTS:\n")
		sb.WriteString(webResults)
		sb.WriteString("\n\n")
	}
	sb.WriteString(`INSTRUCTIONS:
1. Check the memories and the conversation history for relevant information.
2. If the user asks about something already mentioned, answer from memory and say that you remember.
3. If the user shares something for the first time, acknowledge it normally without pretending you knew it.
4. If you don't know something, be honest and ask for more details.
5. Be natural and conversational, and reply in the user's language.

USER MESSAGE: `)
	sb.WriteString(input)
	sb.WriteString("\n")
	return sb.String()
}
