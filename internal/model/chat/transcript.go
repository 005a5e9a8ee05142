package chat

import (
	"strings"
	"time"
)

// DefaultTitle labels transcripts created without a first message.
const DefaultTitle = "New Chat"

const titleWords = 5

// Transcript is one persisted conversation owned by a single identity.
type Transcript struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// Summary is the chat list view of a transcript.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary drops the message body.
func (t Transcript) Summary() Summary {
	return Summary{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt}
}

// TitleFrom derives a title from the first few words of text.
func TitleFrom(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return DefaultTitle
	}
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	return strings.Join(words, " ")
}
