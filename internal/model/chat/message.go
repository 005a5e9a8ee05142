package chat

import "strings"

// Role tags who authored a turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

const (
	// PendingText is shown in place of a bot reply while the completion is in flight.
	PendingText = "Generating response..."
	// FallbackText replaces a completion that carried no usable text.
	FallbackText = "No response received."
	// FailureText replaces the pending reply when the completion call failed.
	FailureText = "Sorry, something went wrong while generating a response."
)

// Message is one turn in a transcript. Its position in the transcript is its identity.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserMessage builds a user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// BotMessage builds a bot turn.
func BotMessage(text string) Message {
	return Message{Role: RoleBot, Text: text}
}

// Pending reports whether m is the in-flight placeholder.
func (m Message) Pending() bool {
	return m.Role == RoleBot && m.Text == PendingText
}

// Valid reports whether m may be written to a transcript store.
func (m Message) Valid() bool {
	if m.Role != RoleUser && m.Role != RoleBot {
		return false
	}
	if strings.TrimSpace(m.Text) == "" {
		return false
	}
	return !m.Pending()
}
