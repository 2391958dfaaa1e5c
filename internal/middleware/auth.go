// Package middleware holds the HTTP middleware shared across routes.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/marsdhp/sme-interview/backend/internal/token"
	"github.com/marsdhp/sme-interview/backend/pkg/utils"
)

type contextKey string

// tokenNameKey carries the authenticated token's name through the request
// context so handlers can attribute work to a credential.
const tokenNameKey contextKey = "token_name"

// TokenName returns the authenticated token name from the request context,
// or "" when the request was not authenticated.
func TokenName(ctx context.Context) string {
	name, _ := ctx.Value(tokenNameKey).(string)
	return name
}

// Auth validates the bearer token on every request. Tokens are accepted as
// "Authorization: Bearer <token>" or in the X-Access-Token header. When
// required is false the middleware passes everything through, which is the
// development mode.
func Auth(tokens *token.Store, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}

			value := bearerToken(r)
			if value == "" {
				utils.RespondError(w, http.StatusUnauthorized, "missing access token")
				return
			}

			t, err := tokens.Validate(value)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid access token")
				return
			}

			ctx := context.WithValue(r.Context(), tokenNameKey, t.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Access-Token"))
}
