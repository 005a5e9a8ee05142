package conversation

import (
	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
)

// State is the phase of a conversation's submit cycle.
type State int

const (
	Idle State = iota
	AwaitingCompletion
	Persisting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCompletion:
		return "awaiting_completion"
	case Persisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// next enforces Idle -> AwaitingCompletion -> Persisting -> Idle.
func (s State) next() State {
	switch s {
	case Idle:
		return AwaitingCompletion
	case AwaitingCompletion:
		return Persisting
	default:
		return Idle
	}
}

// Status summarises how a Submit ended.
type Status string

const (
	// StatusDiscarded means the input was blank and nothing happened.
	StatusDiscarded Status = "discarded"
	// StatusCompleted means a reply (or the fallback text) was shown and persisted.
	StatusCompleted Status = "completed"
	// StatusFailed means the completion call failed; the failure text was shown and persisted.
	StatusFailed Status = "failed"
	// StatusUnsaved means the exchange is shown but could not be persisted.
	StatusUnsaved Status = "unsaved"
)

// Outcome is the result of one Submit.
type Outcome struct {
	Status Status
	User   chat.Message
	Bot    chat.Message
	// Err holds the completion or store failure behind StatusFailed / StatusUnsaved.
	Err error
}

// View is a snapshot of the in-memory transcript.
type View struct {
	TranscriptID string         `json:"transcriptId"`
	State        State          `json:"state"`
	Messages     []chat.Message `json:"messages"`
	// Unsaved lists indexes into Messages that the store never received.
	Unsaved []int `json:"unsaved,omitempty"`
}

// Busy reports whether a submit is in flight.
func (v View) Busy() bool {
	return v.State != Idle
}
