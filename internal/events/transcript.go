package events

import (
	"time"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
)

// TranscriptAppended is published after an exchange was persisted.
type TranscriptAppended struct {
	TranscriptID string         `json:"transcriptId"`
	Owner        string         `json:"owner"`
	Messages     []chat.Message `json:"messages"`
	At           time.Time      `json:"at"`
}
