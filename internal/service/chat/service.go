package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/gemchat/backend/internal/logging"
	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/store/transcript"
)

var (
	ErrIdentityRequired   = errors.New("an authenticated identity is required")
	ErrTitleRequired      = errors.New("title is required")
	ErrTranscriptNotFound = errors.New("transcript not found")
)

// Service lists, creates, renames and loads the transcripts of one owner at a time.
type Service struct {
	store  transcript.Store
	logger zerolog.Logger
}

// NewService wraps store.
func NewService(store transcript.Store) *Service {
	return &Service{store: store, logger: logging.Component("chats")}
}

// List returns the owner's transcripts, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]chat.Transcript, error) {
	if owner == "" {
		return nil, ErrIdentityRequired
	}

	list, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("list chats failed")
		return nil, errors.Wrap(err, "list chats")
	}

	// The store filters by owner; anything else is dropped rather than leaked.
	out := list[:0]
	for _, t := range list {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	return out, nil
}

// Create provisions an empty transcript titled "New Chat".
func (s *Service) Create(ctx context.Context, owner string) (chat.Transcript, error) {
	return s.create(ctx, owner, chat.DefaultTitle, nil)
}

// CreateWithMessages provisions a transcript seeded with messages, titled after firstText.
func (s *Service) CreateWithMessages(ctx context.Context, owner, firstText string, messages []chat.Message) (chat.Transcript, error) {
	return s.create(ctx, owner, chat.TitleFrom(firstText), messages)
}

func (s *Service) create(ctx context.Context, owner, title string, messages []chat.Message) (chat.Transcript, error) {
	if owner == "" {
		return chat.Transcript{}, ErrIdentityRequired
	}

	created, err := s.store.Create(ctx, chat.Transcript{
		Title:    title,
		Owner:    owner,
		Messages: messages,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("create chat failed")
		return chat.Transcript{}, errors.Wrap(err, "create chat")
	}

	s.logger.Info().Str("chat_id", created.ID).Str("owner", owner).Msg("chat created")
	return created, nil
}

// Rename changes only the title. The store is left untouched when title is blank.
func (s *Service) Rename(ctx context.Context, owner, id, title string) error {
	if owner == "" {
		return ErrIdentityRequired
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrTitleRequired
	}

	err := s.store.Rename(ctx, id, owner, title)
	if errors.Is(err, transcript.ErrNotFound) {
		return ErrTranscriptNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", id).Msg("rename chat failed")
		return errors.Wrap(err, "rename chat")
	}
	return nil
}

// Get returns the transcript if it exists and belongs to owner.
func (s *Service) Get(ctx context.Context, owner, id string) (chat.Transcript, error) {
	if owner == "" {
		return chat.Transcript{}, ErrIdentityRequired
	}

	t, err := s.store.Get(ctx, id)
	if errors.Is(err, transcript.ErrNotFound) {
		return chat.Transcript{}, ErrTranscriptNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Str("chat_id", id).Msg("load chat failed")
		return chat.Transcript{}, errors.Wrap(err, "load chat")
	}
	if t.Owner != owner {
		return chat.Transcript{}, ErrTranscriptNotFound
	}
	return t, nil
}

// Load returns the persisted messages of a transcript. A transcript that does not
// exist, or belongs to someone else, yields ErrTranscriptNotFound; an existing
// empty transcript yields an empty slice.
func (s *Service) Load(ctx context.Context, owner, id string) ([]chat.Message, error) {
	t, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if t.Messages == nil {
		return []chat.Message{}, nil
	}
	return t.Messages, nil
}
