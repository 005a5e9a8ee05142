package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemchat/backend/internal/middleware"
	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/model/identity"
	chatservice "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/internal/store/transcript"
)

type tokenResolver map[string]identity.Identity

func (t tokenResolver) Resolve(_ context.Context, token string) (identity.Identity, error) {
	id, ok := t[token]
	if !ok {
		return identity.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *transcript.MemoryStore) {
	t.Helper()
	store := transcript.NewMemoryStore()
	handler := New(chatservice.NewService(store))

	resolver := tokenResolver{
		"alice-token": {UID: "alice"},
		"bob-token":   {UID: "bob"},
	}
	r := chi.NewRouter()
	r.Group(func(protected chi.Router) {
		protected.Use(middleware.Authenticate(resolver))
		handler.RegisterRoutes(protected)
	})
	return r, store
}

func do(r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateBlankChat(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/chats", "alice-token", nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created chat.Transcript
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, chat.DefaultTitle, created.Title)
	assert.Equal(t, "alice", created.Owner)
	assert.Empty(t, created.Messages)
}

func TestCreateSeededChat(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/chats", "alice-token", map[string]interface{}{
		"messages": []chat.Message{
			chat.UserMessage("what is the tallest mountain on earth"),
			chat.BotMessage("Mount Everest."),
		},
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var created chat.Transcript
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "what is the tallest mountain", created.Title)
	assert.Len(t, created.Messages, 2)
}

func TestCreateRejectsPlaceholder(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/chats", "alice-token", map[string]interface{}{
		"text":     "hello",
		"messages": []chat.Message{chat.BotMessage(chat.PendingText)},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListIsScopedToOwner(t *testing.T) {
	r, _ := setupRouter(t)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/chats", "alice-token", nil).Code)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/chats", "alice-token", nil).Code)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/chats", "bob-token", nil).Code)

	resp := do(r, http.MethodGet, "/chats", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var list []chat.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestListRequiresToken(t *testing.T) {
	r, _ := setupRouter(t)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/chats", "", nil).Code)
}

func TestRename(t *testing.T) {
	r, store := setupRouter(t)
	created, err := store.Create(context.Background(), chat.Transcript{Title: chat.DefaultTitle, Owner: "alice"})
	require.NoError(t, err)

	resp := do(r, http.MethodPatch, "/chats/"+created.ID, "alice-token", map[string]string{"title": "  Trip plans "})
	require.Equal(t, http.StatusOK, resp.Code)

	var summary chat.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, "Trip plans", summary.Title)

	stored, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip plans", stored.Title)
}

func TestRenameBlankTitle(t *testing.T) {
	r, store := setupRouter(t)
	created, err := store.Create(context.Background(), chat.Transcript{Title: chat.DefaultTitle, Owner: "alice"})
	require.NoError(t, err)

	resp := do(r, http.MethodPatch, "/chats/"+created.ID, "alice-token", map[string]string{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	stored, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultTitle, stored.Title)
}

func TestRenameForeignChat(t *testing.T) {
	r, store := setupRouter(t)
	created, err := store.Create(context.Background(), chat.Transcript{Title: chat.DefaultTitle, Owner: "alice"})
	require.NoError(t, err)

	resp := do(r, http.MethodPatch, "/chats/"+created.ID, "bob-token", map[string]string{"title": "mine now"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMessages(t *testing.T) {
	r, store := setupRouter(t)
	ctx := context.Background()
	created, err := store.Create(ctx, chat.Transcript{Title: chat.DefaultTitle, Owner: "alice"})
	require.NoError(t, err)

	resp := do(r, http.MethodGet, "/chats/"+created.ID+"/messages", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"messages":[]}`, resp.Body.String())

	require.NoError(t, store.Append(ctx, created.ID, chat.UserMessage("Hello"), chat.BotMessage("Hi there")))

	resp = do(r, http.MethodGet, "/chats/"+created.ID+"/messages", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"messages":[{"role":"user","text":"Hello"},{"role":"bot","text":"Hi there"}]}`, resp.Body.String())
}

func TestMessagesNotFound(t *testing.T) {
	r, store := setupRouter(t)
	created, err := store.Create(context.Background(), chat.Transcript{Title: chat.DefaultTitle, Owner: "alice"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/chats/missing/messages", "alice-token", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/chats/"+created.ID+"/messages", "bob-token", nil).Code)
}
