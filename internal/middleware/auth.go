package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/gemchat/backend/internal/model/identity"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

// Resolver maps a session token to its identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (identity.Identity, error)
}

type ctxKey int

// tokenParam carries the session token for clients that cannot set headers.
const tokenParam = "access_token"

const (
	identityKey ctxKey = iota
	tokenKey
)

// Authenticate rejects requests without a valid session token with 401. The token is
// read from "Authorization: Bearer <token>" or, for WebSocket and SSE clients, the
// access_token query parameter.
func Authenticate(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.RespondError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid session token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the identity attached by Authenticate.
func IdentityFrom(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityKey).(identity.Identity)
	return id, ok
}

// TokenFrom returns the session token attached by Authenticate.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get(tokenParam))
}
