package actions

const (
	msgScheduleClarify = "I couldn't extract the event details. Please tell me the title, date and time again."
	msgConflict        = "There is already a commitment at that time. Please choose another time."
	msgNoCommitments   = "You have no commitments for the requested period."
	msgPeriodClarify   = "I couldn't understand the requested period. Please give me the dates again."
	msgNoEmails        = "No emails found in the inbox."
	msgDraftClarify    = "To send an email I need the recipient, the subject and the message. Please provide all three."
	msgNoResults       = "No results found."
	msgCalendarOff     = "The calendar is not configured."
	msgMailOff         = "Email is not configured."
	msgSearchOff       = "Web search is not configured."
	msgReasonerOff     = "The language model is not configured."

	unknownSender = "(unknown sender)"
	noSubject     = "(no subject)"
	untitled      = "(untitled)"
	defaultTitle  = "Event"

	defaultDurationMinutes = 60
	inboxLimit             = 10
	searchResultLimit      = 3
)
