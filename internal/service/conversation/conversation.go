// Package conversation runs the submit cycle of a chat: show the user's text and a
// pending reply, ask the completion service, swap the pending reply for the answer,
// then persist the pair.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/gemchat/backend/internal/events"
	"github.com/zhouzirui/gemchat/backend/internal/logging"
	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/service/completion"
	"github.com/zhouzirui/gemchat/backend/internal/store/transcript"
)

// ErrBusy is returned by Submit while another submit on the same conversation is in flight.
var ErrBusy = errors.New("a message is already being processed")

const watchBuffer = 8

// Deps are the collaborators of a conversation. Bus may be nil.
type Deps struct {
	Completer completion.Completer
	Store     transcript.Store
	Bus       *events.Bus
}

// Conversation is the in-memory view of one transcript plus its submit state machine.
type Conversation struct {
	id     string
	owner  string
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	messages []chat.Message
	unsaved  []int
	watchers map[uint64]chan View
	nextID   uint64
}

// New builds a conversation over the already persisted history.
func New(id, owner string, history []chat.Message, deps Deps) *Conversation {
	messages := make([]chat.Message, len(history))
	copy(messages, history)
	return &Conversation{
		id:       id,
		owner:    owner,
		deps:     deps,
		logger:   logging.Component("conversation").With().Str("chat_id", id).Logger(),
		messages: messages,
		watchers: make(map[uint64]chan View),
	}
}

// ID returns the transcript id.
func (c *Conversation) ID() string { return c.id }

// Owner returns the identity that owns the transcript.
func (c *Conversation) Owner() string { return c.owner }

// Snapshot returns the current view.
func (c *Conversation) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Submit turns text into a persisted user/bot pair. Blank text is discarded without
// side effects. The completion call and the store write are not cancelled when ctx is.
func (c *Conversation) Submit(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{Status: StatusDiscarded}, nil
	}

	user := chat.UserMessage(text)

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	c.advanceLocked()
	c.messages = append(c.messages, user, chat.BotMessage(chat.PendingText))
	slot := len(c.messages) - 1
	c.broadcastLocked()
	c.mu.Unlock()

	// Navigating away must not abort the request or the write that follows it.
	detached := context.WithoutCancel(ctx)

	started := time.Now()
	reply, callErr := c.deps.Completer.Complete(detached, text)
	bot := chat.BotMessage(resolveReply(reply, callErr))
	if callErr != nil {
		c.logger.Error().Err(callErr).Dur("elapsed", time.Since(started)).Msg("completion failed")
	} else {
		c.logger.Debug().Dur("elapsed", time.Since(started)).Int("length", len(bot.Text)).Msg("completion resolved")
	}

	c.mu.Lock()
	c.messages[slot] = bot
	c.advanceLocked()
	c.broadcastLocked()
	c.mu.Unlock()

	storeErr := c.deps.Store.Append(detached, c.id, user, bot)

	c.mu.Lock()
	if storeErr != nil {
		c.unsaved = append(c.unsaved, slot-1, slot)
	}
	c.advanceLocked()
	c.broadcastLocked()
	c.mu.Unlock()

	outcome := Outcome{Status: StatusCompleted, User: user, Bot: bot}
	switch {
	case storeErr != nil:
		c.logger.Error().Err(storeErr).Msg("failed to persist exchange")
		outcome.Status = StatusUnsaved
		outcome.Err = errors.Wrap(storeErr, "persist exchange")
	case callErr != nil:
		outcome.Status = StatusFailed
		outcome.Err = errors.Wrap(callErr, "completion")
	}

	if storeErr == nil {
		c.publishAppended(user, bot)
	}
	return outcome, nil
}

// resolveReply picks the text that replaces the pending reply. It is never the pending text.
func resolveReply(reply string, err error) string {
	if err != nil {
		return chat.FailureText
	}
	if strings.TrimSpace(reply) == "" || reply == chat.PendingText {
		return chat.FallbackText
	}
	return reply
}

func (c *Conversation) advanceLocked() {
	c.state = c.state.next()
}

func (c *Conversation) viewLocked() View {
	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	view := View{TranscriptID: c.id, State: c.state, Messages: messages}
	if len(c.unsaved) > 0 {
		view.Unsaved = append([]int(nil), c.unsaved...)
	}
	return view
}

// Watch streams view snapshots, starting with the current one. Slow readers only
// miss intermediate snapshots, never the latest. stop closes the channel.
func (c *Conversation) Watch() (<-chan View, func()) {
	ch := make(chan View, watchBuffer)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	ch <- c.viewLocked()
	c.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			close(ch)
			c.mu.Unlock()
		})
	}
	return ch, stop
}

func (c *Conversation) broadcastLocked() {
	if len(c.watchers) == 0 {
		return
	}
	view := c.viewLocked()
	for _, ch := range c.watchers {
		select {
		case ch <- view:
			continue
		default:
		}
		// Full: drop the oldest pending snapshot to make room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}

func (c *Conversation) publishAppended(user, bot chat.Message) {
	if c.deps.Bus == nil {
		return
	}
	err := c.deps.Bus.PublishJSON(events.TopicTranscriptAppended, events.TranscriptAppended{
		TranscriptID: c.id,
		Owner:        c.owner,
		Messages:     []chat.Message{user, bot},
		At:           time.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to publish transcript event")
	}
}
