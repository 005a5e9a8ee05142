// Package auth issues identities for email/password and anonymous sessions.
package auth

import (
	"context"
	"encoding/json"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/gemchat/backend/internal/events"
	"github.com/zhouzirui/gemchat/backend/internal/logging"
	"github.com/zhouzirui/gemchat/backend/internal/model/identity"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

var (
	ErrInvalidEmail  = errors.New("invalid email")
	ErrWeakPassword  = errors.New("password must be at least 6 characters")
	ErrEmailInUse    = errors.New("email already in use")
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrInvalidToken  = errors.New("invalid or expired session token")
)

// Session binds a bearer token to an identity.
type Session struct {
	Token    string            `json:"token"`
	Identity identity.Identity `json:"identity"`
}

type account struct {
	uid  string
	hash []byte
}

// Provider keeps accounts and sessions in memory and announces every
// sign-in and sign-out on the event bus.
type Provider struct {
	mu       sync.RWMutex
	accounts map[string]account
	sessions map[string]identity.Identity

	bus    *events.Bus
	cost   int
	logger zerolog.Logger
}

// NewProvider creates a provider publishing changes on bus.
func NewProvider(bus *events.Bus) *Provider {
	return &Provider{
		accounts: make(map[string]account),
		sessions: make(map[string]identity.Identity),
		bus:      bus,
		cost:     bcrypt.DefaultCost,
		logger:   logging.Component("auth"),
	}
}

// SignUp registers a new email/password account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(password) < MinPasswordLength {
		return Session{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Session{}, errors.Wrap(err, "hash password")
	}

	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return Session{}, ErrEmailInUse
	}
	acct := account{uid: uuid.NewString(), hash: hash}
	p.accounts[email] = acct
	p.mu.Unlock()

	return p.startSession(ctx, identity.Identity{UID: acct.uid, Email: email})
}

// SignIn checks the password of an existing account.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}

	p.mu.RLock()
	acct, ok := p.accounts[email]
	p.mu.RUnlock()
	if !ok {
		return Session{}, ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return Session{}, ErrWrongPassword
	}

	return p.startSession(ctx, identity.Identity{UID: acct.uid, Email: email})
}

// SignInAnonymously issues a fresh anonymous identity.
func (p *Provider) SignInAnonymously(ctx context.Context) (Session, error) {
	return p.startSession(ctx, identity.Identity{UID: uuid.NewString(), Anonymous: true})
}

// SignOut ends the session bound to token.
func (p *Provider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	id, ok := p.sessions[token]
	delete(p.sessions, token)
	p.mu.Unlock()
	if !ok {
		return ErrInvalidToken
	}

	p.logger.Info().Str("uid", id.UID).Msg("signed out")
	p.publish(identity.Change{Token: token, Kind: identity.SignedOut})
	return nil
}

// Resolve returns the identity bound to token.
func (p *Provider) Resolve(_ context.Context, token string) (identity.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.sessions[token]
	if !ok {
		return identity.Identity{}, ErrInvalidToken
	}
	return id, nil
}

func (p *Provider) startSession(_ context.Context, id identity.Identity) (Session, error) {
	token := uuid.NewString()

	p.mu.Lock()
	p.sessions[token] = id
	p.mu.Unlock()

	p.logger.Info().Str("uid", id.UID).Bool("anonymous", id.Anonymous).Msg("signed in")
	p.publish(identity.Change{Token: token, Kind: identity.SignedIn, Identity: &id})
	return Session{Token: token, Identity: id}, nil
}

// changeEnvelope carries the token, which identity.Change keeps out of its JSON form.
type changeEnvelope struct {
	Token    string              `json:"token"`
	Kind     identity.ChangeKind `json:"kind"`
	Identity *identity.Identity  `json:"identity"`
}

func (p *Provider) publish(change identity.Change) {
	if p.bus == nil {
		return
	}
	err := p.bus.PublishJSON(events.TopicIdentityChanged, changeEnvelope{
		Token:    change.Token,
		Kind:     change.Kind,
		Identity: change.Identity,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to publish identity change")
	}
}

// Subscribe streams the identity of token: the current state first, then every change.
// The channel is closed when ctx is cancelled.
func (p *Provider) Subscribe(ctx context.Context, token string) (<-chan identity.Change, error) {
	if p.bus == nil {
		return nil, errors.New("identity changes are not published")
	}

	msgs, err := p.bus.Subscribe(ctx, events.TopicIdentityChanged)
	if err != nil {
		return nil, err
	}

	current := identity.Change{Token: token, Kind: identity.Current}
	if id, err := p.Resolve(ctx, token); err == nil {
		current.Identity = &id
	}

	out := make(chan identity.Change, 16)
	out <- current

	go func() {
		defer close(out)
		for msg := range msgs {
			var env changeEnvelope
			decodeErr := json.Unmarshal(msg.Payload, &env)
			msg.Ack()
			if decodeErr != nil {
				p.logger.Warn().Err(decodeErr).Msg("dropping malformed identity change")
				continue
			}
			if env.Token != token {
				continue
			}

			select {
			case out <- identity.Change{Token: env.Token, Kind: env.Kind, Identity: env.Identity}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
