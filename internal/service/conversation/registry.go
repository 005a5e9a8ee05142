package conversation

import (
	"context"
	"sync"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/gemchat/backend/internal/service/chat"
)

// Loader fetches the persisted history of a transcript owned by owner.
type Loader interface {
	Load(ctx context.Context, owner, id string) ([]chat.Message, error)
}

type entry struct {
	conv *Conversation
	refs int
}

// Registry hands out one shared Conversation per transcript so every caller
// observes the same view and the same busy state.
type Registry struct {
	loader Loader
	deps   Deps

	mu   sync.Mutex
	open map[string]*entry
}

// NewRegistry builds a registry loading history through loader.
func NewRegistry(loader Loader, deps Deps) *Registry {
	return &Registry{loader: loader, deps: deps, open: make(map[string]*entry)}
}

// Acquire returns the conversation for id, loading it on first use. The caller
// must call release once done with it; the conversation is dropped from memory
// after the last release.
func (r *Registry) Acquire(ctx context.Context, owner, id string) (*Conversation, func(), error) {
	if owner == "" {
		return nil, nil, chatservice.ErrIdentityRequired
	}

	if conv, release, ok := r.retain(owner, id); ok {
		return conv, release, nil
	} else if conv != nil {
		return nil, nil, chatservice.ErrTranscriptNotFound
	}

	history, err := r.loader.Load(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	e, ok := r.open[id]
	if !ok {
		e = &entry{conv: New(id, owner, history, r.deps)}
		r.open[id] = e
	}
	if e.conv.owner != owner {
		r.mu.Unlock()
		return nil, nil, chatservice.ErrTranscriptNotFound
	}
	e.refs++
	r.mu.Unlock()

	return e.conv, r.releaser(id, e), nil
}

// retain bumps an already open conversation. A non-nil conversation with ok=false
// means it exists but belongs to another owner.
func (r *Registry) retain(owner, id string) (*Conversation, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.open[id]
	if !ok {
		return nil, nil, false
	}
	if e.conv.owner != owner {
		return e.conv, nil, false
	}
	e.refs++
	return e.conv, r.releaser(id, e), true
}

func (r *Registry) releaser(id string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.refs--
			if e.refs <= 0 && r.open[id] == e {
				delete(r.open, id)
			}
		})
	}
}

// Len reports how many conversations are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
