// Package transcript persists conversations as ordered, append-only message sequences.
package transcript

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
)

var (
	ErrNotFound       = errors.New("transcript not found")
	ErrInvalidMessage = errors.New("message cannot be persisted")
	ErrOwnerRequired  = errors.New("transcript owner is required")
)

// Store is the document store holding one record per conversation.
type Store interface {
	// Create assigns an id (and createdAt when zero) and stores t.
	Create(ctx context.Context, t chat.Transcript) (chat.Transcript, error)
	// Get returns the transcript or ErrNotFound.
	Get(ctx context.Context, id string) (chat.Transcript, error)
	// Append adds msgs to the end of the transcript in one atomic write.
	Append(ctx context.Context, id string, msgs ...chat.Message) error
	// ListByOwner returns the owner's transcripts, newest first.
	ListByOwner(ctx context.Context, owner string) ([]chat.Transcript, error)
	// Rename updates the title of a transcript owned by owner.
	Rename(ctx context.Context, id, owner, title string) error
	Close()
}

func validate(msgs []chat.Message) error {
	for i, m := range msgs {
		if !m.Valid() {
			return errors.Wrapf(ErrInvalidMessage, "message %d (role=%q)", i, m.Role)
		}
	}
	return nil
}
