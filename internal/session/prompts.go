package session

import (
	"strings"
)

const baseInstructions = `You are a professional, warm counselor speaking with a client in an
ongoing text conversation. Respond with empathy, reflect what the client
says, and ask gentle open questions. Keep replies short enough to read
comfortably in a chat window. Never diagnose, never prescribe, and if
the client appears to be in danger, encourage them to contact local
emergency services.`

// reminderNotice is appended to the system context on overtime turns so
// the model softly suggests wrapping up without cutting the client off.
const reminderNotice = `The session has run past its suggested length. Without interrupting the
client's current thought, gently acknowledge the time and suggest moving
toward a natural close, offering to continue another day.`

// openingTrigger is the fixed synthetic message used to generate the
// counselor's opening greeting when a session starts.
const openingTrigger = "The client has just joined the session. Greet them and invite them to share what is on their mind."

// fallbackReply is returned to the client when the agent call fails
// during a turn; the turn itself still counts.
const fallbackReply = "I'm sorry, I'm having some trouble on my end right now. Please give me a moment and try again."

const (
	noCounselorPrompt = "(no counselor assigned)"
	noUserBackground  = "(the client has not completed intake yet)"
	loadFailedText    = "(personalization unavailable)"
)

// BuildSystemContext assembles the system context for one agent call
// from explicit parts. reminder is empty on non-overtime turns.
func BuildSystemContext(baseText, counselorPrompt, userBackground, reminder string) string {
	var b strings.Builder
	b.WriteString(baseText)
	b.WriteString("\n\n## Counselor style\n\n")
	b.WriteString(counselorPrompt)
	b.WriteString("\n\n## Current client situation\n\n")
	b.WriteString(userBackground)
	if reminder != "" {
		b.WriteString("\n\n## Session time management\n\n")
		b.WriteString(reminder)
	}
	return b.String()
}
