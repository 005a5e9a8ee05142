// Package completion talks to the external text generation services.
package completion

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zhouzirui/gemchat/backend/internal/config"
)

// ErrNotConfigured is returned by New when the selected provider lacks credentials.
var ErrNotConfigured = errors.New("completion provider not configured")

// Completer turns a prompt into generated text. An empty string with a nil error
// means the service answered without usable text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the Completer selected by cfg.Provider.
func New(ctx context.Context, cfg config.CompletionConfig) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		if !cfg.Gemini.Enabled() {
			return nil, errors.Wrap(ErrNotConfigured, "GEMINI_API_KEY is empty")
		}
		return NewGeminiClient(ctx, cfg.Gemini, cfg.Timeout)
	case config.ProviderArk:
		if !cfg.Ark.Enabled() {
			return nil, errors.Wrap(ErrNotConfigured, "ark credentials or Model missing")
		}
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "create ark chat model")
		}
		return NewArkClient(chatModel, cfg.Timeout), nil
	case config.ProviderOpenAI:
		if !cfg.OpenAI.Enabled() {
			return nil, errors.Wrap(ErrNotConfigured, "OPENAI_API_KEY is empty")
		}
		return NewOpenAIClient(cfg.OpenAI, cfg.Timeout), nil
	default:
		return nil, errors.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
