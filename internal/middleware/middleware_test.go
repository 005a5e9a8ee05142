package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/gemchat/backend/internal/model/identity"
)

type staticResolver map[string]identity.Identity

func (s staticResolver) Resolve(_ context.Context, token string) (identity.Identity, error) {
	id, ok := s[token]
	if !ok {
		return identity.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

func TestAuthenticate(t *testing.T) {
	resolver := staticResolver{"good": {UID: "u1"}}
	var seen identity.Identity
	var seenToken string
	handler := Authenticate(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
		seenToken = TokenFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer good", "", http.StatusOK},
		{"lowercase scheme", "bearer good", "", http.StatusOK},
		{"query token", "", "?access_token=good", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"unknown", "Bearer bad", "", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = identity.Identity{}
			req := httptest.NewRequest(http.MethodGet, "/x"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "u1", seen.UID)
				assert.Equal(t, "good", seenToken)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/chats", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAccessLogRedactsToken(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var seenToken string
	handler := AccessLog(&logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenToken = r.URL.Query().Get("access_token")
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chats/c1/ws?access_token=SESSION-TOKEN-XYZ&lang=en", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "SESSION-TOKEN-XYZ", seenToken)
	assert.Equal(t, "/api/chats/c1/ws?access_token=SESSION-TOKEN-XYZ&lang=en", req.RequestURI)
	assert.NotContains(t, buf.String(), "SESSION-TOKEN-XYZ")
	assert.Contains(t, buf.String(), "/api/chats/c1/ws?access_token=REDACTED&lang=en")
	assert.Contains(t, buf.String(), "204")
}

func TestAccessLogKeepsPlainRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := AccessLog(&logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Contains(t, buf.String(), "GET http://example.com/api/health")
	assert.NotContains(t, buf.String(), "REDACTED")
}
