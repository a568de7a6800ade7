// Package guard holds the HTTP middleware that authenticates callers from
// access or refresh tokens and authorizes them by permission.
package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/utafrali/authservice/internal/auth"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/middleware"
)

type contextKey int

const (
	claimsKey contextKey = iota
	rawTokenKey
)

// ClaimsFromContext returns the validated claims stored by Access or Refresh.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok && c != nil
}

// RawTokenFromContext returns the token string the claims were parsed from.
func RawTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(rawTokenKey).(string)
	return s
}

// WithClaims stores claims and the raw token in ctx.
func WithClaims(ctx context.Context, claims *auth.Claims, raw string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, rawTokenKey, raw)
}

// TokenParser validates tokens of a given kind.
type TokenParser interface {
	Parse(kind auth.Kind, token string) (*auth.Claims, error)
}

// Access authenticates the caller from an "Authorization: Bearer" access token.
func Access(tokens TokenParser) func(http.Handler) http.Handler {
	return authenticate(tokens, auth.KindAccess, middleware.BearerToken)
}

// Refresh authenticates the caller from a refresh token sent as a bearer
// token or, failing that, in the named cookie. Access tokens are rejected.
func Refresh(tokens TokenParser, cookieName string) func(http.Handler) http.Handler {
	extract := middleware.BearerToken
	if cookieName != "" {
		extract = middleware.FirstToken(middleware.BearerToken, middleware.CookieToken(cookieName))
	}
	return authenticate(tokens, auth.KindRefresh, extract)
}

func authenticate(tokens TokenParser, kind auth.Kind, extract middleware.TokenExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extract(r)
			if raw == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing "+string(kind)+" token"), nil)
				return
			}

			claims, err := tokens.Parse(kind, raw)
			if err != nil {
				msg := "invalid " + string(kind) + " token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = string(kind) + " token expired"
				}
				httputil.WriteError(w, r, apperrors.InvalidToken(msg), nil)
				return
			}

			r = middleware.Enrich(r, claims.Subject)
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims, raw)))
		})
	}
}
