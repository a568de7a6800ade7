package middleware

import (
	"net/http"
	"strings"
)

// TokenExtractor pulls a raw credential from a request. It returns "" when the
// request carries none.
type TokenExtractor func(r *http.Request) string

// BearerToken reads the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CookieToken returns an extractor reading the named cookie.
func CookieToken(name string) TokenExtractor {
	return func(r *http.Request) string {
		c, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return c.Value
	}
}

// FirstToken tries each extractor in order and returns the first non-empty result.
func FirstToken(extractors ...TokenExtractor) TokenExtractor {
	return func(r *http.Request) string {
		for _, extract := range extractors {
			if tok := extract(r); tok != "" {
				return tok
			}
		}
		return ""
	}
}
