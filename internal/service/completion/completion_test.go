package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemchat/backend/internal/config"
)

const geminiKey = "gemini-secret-key"

type geminiRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

func newGeminiServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		key := r.Header.Get("x-goog-api-key")
		if key == "" {
			key = r.URL.Query().Get("key")
		}
		assert.Equal(t, geminiKey, key)

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 1)
		prompts = append(prompts, req.Contents[0].Parts[0].Text)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func geminiFor(t *testing.T, baseURL string) *GeminiClient {
	t.Helper()
	client, err := NewGeminiClient(context.Background(),
		config.GeminiConfig{APIKey: geminiKey, Model: "gemini-test", BaseURL: baseURL}, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGeminiCompleteReturnsFirstCandidate(t *testing.T) {
	srv, prompts := newGeminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi there"},{"text":"ignored"}]}},{"content":{"parts":[{"text":"second"}]}}]}`)

	text, err := geminiFor(t, srv.URL).Complete(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, []string{"Hello"}, *prompts)
}

func TestGeminiCompleteWithoutUsableText(t *testing.T) {
	bodies := map[string]string{
		"no candidates": `{"candidates":[]}`,
		"missing field": `{}`,
		"no parts":      `{"candidates":[{"content":{"role":"model","parts":[]}}]}`,
		"no content":    `{"candidates":[{"index":0}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv, _ := newGeminiServer(t, http.StatusOK, body)
			text, err := geminiFor(t, srv.URL).Complete(context.Background(), "Hello")
			require.NoError(t, err)
			assert.Empty(t, text)
		})
	}
}

func TestGeminiCompleteFailures(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv, _ := newGeminiServer(t, http.StatusBadRequest, `{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`)
		_, err := geminiFor(t, srv.URL).Complete(context.Background(), "Hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("malformed json", func(t *testing.T) {
		srv, _ := newGeminiServer(t, http.StatusOK, `{"candidates":[`)
		_, err := geminiFor(t, srv.URL).Complete(context.Background(), "Hello")
		assert.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		client := geminiFor(t, srv.URL)
		srv.Close()
		_, err := client.Complete(context.Background(), "Hello")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), geminiKey)
	})
}

func TestGeminiErrorsNeverCarryTheKey(t *testing.T) {
	client := &GeminiClient{apiKey: geminiKey}
	err := client.redact(errors.New(`Post "http://host/v1beta/models/m:generateContent?key=` + geminiKey + `": dial tcp: refused`))
	assert.NotContains(t, err.Error(), geminiKey)
	assert.Contains(t, err.Error(), "[redacted]")

	plain := errors.New("dial tcp: refused")
	assert.Same(t, plain, client.redact(plain))
}

type fakeChatModel struct {
	reply  *schema.Message
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestArkClientComplete(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("Hi there", nil)}
	client := NewArkClient(fake, 0)

	text, err := client.Complete(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	require.Len(t, fake.inputs, 1)
	require.Len(t, fake.inputs[0], 1)
	assert.Equal(t, schema.User, fake.inputs[0][0].Role)
	assert.Equal(t, "Hello", fake.inputs[0][0].Content)
}

func TestArkClientError(t *testing.T) {
	client := NewArkClient(&fakeChatModel{err: errors.New("ark down")}, 0)
	_, err := client.Complete(context.Background(), "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ark down")
}

type fakeOpenAI struct {
	resp openai.ChatCompletionResponse
	err  error
	req  openai.ChatCompletionRequest
}

func (f *fakeOpenAI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAIClientComplete(t *testing.T) {
	fake := &fakeOpenAI{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "Hi there"}}},
	}}
	client := &OpenAIClient{client: fake, model: "gpt-test"}

	text, err := client.Complete(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, "gpt-test", fake.req.Model)
	require.Len(t, fake.req.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, fake.req.Messages[0].Role)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	client := &OpenAIClient{client: &fakeOpenAI{}, model: "gpt-test"}
	text, err := client.Complete(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestNewRequiresCredentials(t *testing.T) {
	for _, provider := range []string{config.ProviderGemini, config.ProviderArk, config.ProviderOpenAI} {
		_, err := New(context.Background(), config.CompletionConfig{Provider: provider})
		assert.ErrorIs(t, err, ErrNotConfigured, provider)
	}

	_, err := New(context.Background(), config.CompletionConfig{Provider: "bard"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bard"))
}

func TestNewBuildsGemini(t *testing.T) {
	c, err := New(context.Background(), config.CompletionConfig{
		Provider: config.ProviderGemini,
		Gemini:   config.GeminiConfig{APIKey: "k", Model: "m", BaseURL: "http://example.invalid"},
	})
	require.NoError(t, err)
	require.IsType(t, &GeminiClient{}, c)
	assert.NoError(t, c.(*GeminiClient).Close())
}
