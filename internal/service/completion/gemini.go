package completion

import (
	"context"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/zhouzirui/gemchat/backend/internal/config"
)

// GeminiClient calls generateContent through the Generative Language client.
type GeminiClient struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	apiKey  string
	timeout time.Duration
}

// NewGeminiClient builds a client for cfg. An empty BaseURL keeps the public endpoint.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig, timeout time.Duration) (*GeminiClient, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(cfg.BaseURL, "/")))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiClient{
		client:  client,
		model:   client.GenerativeModel(cfg.Model),
		apiKey:  cfg.APIKey,
		timeout: timeout,
	}, nil
}

// Complete sends prompt as a single user content and returns the first candidate's text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			log.Warn().Str("component", "gemini").Str("reason", blocked.Error()).Msg("response blocked")
			return "", nil
		}
		return "", c.redact(errors.Wrap(err, "generate content"))
	}

	text := firstText(resp)
	log.Debug().Str("component", "gemini").Int("candidates", len(resp.Candidates)).Int("length", len(text)).Msg("completion received")
	return text, nil
}

// Close releases the underlying connections.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// redact strips the API key from transport errors, which may quote the request URL.
func (c *GeminiClient) redact(err error) error {
	if c.apiKey == "" || !strings.Contains(err.Error(), c.apiKey) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), c.apiKey, "[redacted]"))
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text)
		}
	}
	return ""
}
