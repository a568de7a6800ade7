package http

import (
	"net/http"

	"github.com/utafrali/authservice/internal/domain"
)

// Guard selects the authentication a route requires.
type Guard int

const (
	// GuardNone leaves the route public.
	GuardNone Guard = iota
	// GuardAccess requires a valid access token.
	GuardAccess
	// GuardRefresh requires a valid refresh token.
	GuardRefresh
)

func (g Guard) String() string {
	switch g {
	case GuardAccess:
		return "access"
	case GuardRefresh:
		return "refresh"
	default:
		return "none"
	}
}

// Route is one entry of the /auth route table. Paths are relative to /auth.
// Permissions, when non-empty, are checked after the guard; holding any one
// of them is enough.
type Route struct {
	Method      string
	Path        string
	Guard       Guard
	Permissions []string
	Handler     http.HandlerFunc
}

// Routes returns the /auth route table.
func Routes(a *AuthHandler, u *UserHandler) []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/register", Handler: a.Register},
		{Method: http.MethodPost, Path: "/login", Handler: a.Login},
		{Method: http.MethodPost, Path: "/refresh", Guard: GuardRefresh, Handler: a.Refresh},
		{Method: http.MethodPost, Path: "/logout", Guard: GuardRefresh, Handler: a.Logout},
		{Method: http.MethodPost, Path: "/logout-all", Guard: GuardAccess, Handler: a.LogoutAll},
		{Method: http.MethodGet, Path: "/profile", Guard: GuardAccess, Handler: a.Profile},
		{Method: http.MethodGet, Path: "/validate", Guard: GuardAccess, Handler: a.Validate},
		{Method: http.MethodGet, Path: "/health", Handler: a.Health},
		{
			Method:      http.MethodGet,
			Path:        "/users",
			Guard:       GuardAccess,
			Permissions: []string{domain.PermUsersRead},
			Handler:     u.ListUsers,
		},
		{
			Method:      http.MethodGet,
			Path:        "/users/{id}",
			Guard:       GuardAccess,
			Permissions: []string{domain.PermUsersRead},
			Handler:     u.GetUser,
		},
		{
			Method:      http.MethodPost,
			Path:        "/tokens/cleanup",
			Guard:       GuardAccess,
			Permissions: []string{domain.PermTokensCleanup},
			Handler:     a.CleanupTokens,
		},
	}
}
