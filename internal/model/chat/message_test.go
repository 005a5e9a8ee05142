package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageValid(t *testing.T) {
	assert.True(t, UserMessage("hello").Valid())
	assert.True(t, BotMessage(FallbackText).Valid())
	assert.False(t, BotMessage(PendingText).Valid())
	assert.False(t, UserMessage("   ").Valid())
	assert.False(t, Message{Role: "system", Text: "x"}.Valid())
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, DefaultTitle, TitleFrom("  "))
	assert.Equal(t, "Hello", TitleFrom("Hello"))
	assert.Equal(t, "one two three four five", TitleFrom("one two  three four five six seven"))
}
