package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
)

// MemoryStore keeps transcripts in process memory. Suitable for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string]chat.Transcript
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transcripts: make(map[string]chat.Transcript)}
}

func (s *MemoryStore) Create(_ context.Context, t chat.Transcript) (chat.Transcript, error) {
	if t.Owner == "" {
		return chat.Transcript{}, ErrOwnerRequired
	}
	if err := validate(t.Messages); err != nil {
		return chat.Transcript{}, err
	}

	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Messages = cloneMessages(t.Messages)

	s.mu.Lock()
	s.transcripts[t.ID] = t
	s.mu.Unlock()

	return copyTranscript(t), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (chat.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transcripts[id]
	if !ok {
		return chat.Transcript{}, ErrNotFound
	}
	return copyTranscript(t), nil
}

func (s *MemoryStore) Append(_ context.Context, id string, msgs ...chat.Message) error {
	if err := validate(msgs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[id]
	if !ok {
		return ErrNotFound
	}
	t.Messages = append(t.Messages, msgs...)
	s.transcripts[id] = t
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner string) ([]chat.Transcript, error) {
	s.mu.RLock()
	out := make([]chat.Transcript, 0)
	for _, t := range s.transcripts {
		if t.Owner == owner {
			out = append(out, copyTranscript(t))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Rename(_ context.Context, id, owner, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[id]
	if !ok || t.Owner != owner {
		return ErrNotFound
	}
	t.Title = title
	s.transcripts[id] = t
	return nil
}

func (s *MemoryStore) Close() {}

func copyTranscript(t chat.Transcript) chat.Transcript {
	t.Messages = cloneMessages(t.Messages)
	return t
}

func cloneMessages(msgs []chat.Message) []chat.Message {
	copied := make([]chat.Message, len(msgs))
	copy(copied, msgs)
	return copied
}
