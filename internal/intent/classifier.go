package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/icaroo-oliveira/HermesAI/internal/llm"
)

// Classifier asks the reasoner which actions a message requests.
type Classifier struct {
	Reasoner llm.Reasoner
}

func NewClassifier(r llm.Reasoner) *Classifier {
	return &Classifier{Reasoner: r}
}

// Classify returns the ordered intents for text. An empty result means the
// message could not be classified.
func (c *Classifier) Classify(ctx context.Context, text string, history []llm.Message) ([]Intent, error) {
	raw, err := c.Reasoner.Ask(ctx, DecisionPrompt(text), history)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return Parse(raw), nil
}

const decisionPrompt = `You are Hermes, a personal assistant. Decide which actions, if any, the user's message requests. The possible actions are:

- SCHEDULE: the user asks to book, add or change an appointment, event or meeting.
- READ_MAIL: the user asks to read, fetch or list e-mails.
- SEND_MAIL: the user asks to send, write or mail a message to someone.
- LIST_EVENTS: the user asks to see commitments, the agenda, past or upcoming events.
- WEB_SEARCH: the user asks for outside information such as news, facts, research or weather.
- CONVERSE: the user is chatting, commenting, joking, asking something rhetorical or makes no clear request.

RULES:
- Consider the tone, the intent and the recent conversation.
- If the user asks to repeat, show again or recall something already done (links found, an event booked, e-mails read), answer CONVERSE instead of running the tool again.
- Only choose SCHEDULE, READ_MAIL, SEND_MAIL, LIST_EVENTS or WEB_SEARCH for a clear and explicit new request.
- SCHEDULE only when the user asks to book, schedule, create an event or be reminded at a specific date and time.
- With several requests, return every relevant action, comma separated, in the order they appear in the message.
- Reply only with the action keywords, comma separated, with no explanation.
- Do not invent actions. When unsure, prefer CONVERSE.

Examples:
User: "Show me again the links about the match"
Answer: CONVERSE

User: "Tell me when the team plays and book a meeting at 3pm tomorrow"
Answer: WEB_SEARCH, SCHEDULE

User: "List my commitments for today and show my e-mails"
Answer: LIST_EVENTS, READ_MAIL

User: "Remind me to buy bread tomorrow at 10am"
Answer: SCHEDULE

User: "I will buy bread tomorrow"
Answer: CONVERSE

User: "What's the weather tomorrow?"
Answer: WEB_SEARCH

User: "Send an e-mail to joao@example.com with subject 'Meeting' saying 'See you tomorrow'"
Answer: SEND_MAIL

User: "Tell me a joke and show my agenda for today"
Answer: CONVERSE, LIST_EVENTS

User: "Good morning!"
Answer: CONVERSE

User: "My name is João"
Answer: CONVERSE

User message: `

// DecisionPrompt builds the classification prompt for one message.
func DecisionPrompt(text string) string {
	return decisionPrompt + strings.TrimSpace(text) + "\n"
}
