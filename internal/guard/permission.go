package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/authservice/internal/domain"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/httputil"
)

// UserLookup loads a user with live roles and permissions, or nil.
type UserLookup interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
}

// PermissionGuard authorizes authenticated callers by permission name.
type PermissionGuard struct {
	users      UserLookup
	fromClaims bool
	logger     *slog.Logger
}

// NewPermissionGuard creates a guard. With fromClaims set, permissions are
// read from the access token; otherwise they are reloaded from users on every
// request, so revoked grants take effect before the token expires.
func NewPermissionGuard(users UserLookup, fromClaims bool, logger *slog.Logger) *PermissionGuard {
	return &PermissionGuard{users: users, fromClaims: fromClaims, logger: logger}
}

// Require admits callers holding at least one of perms. It must run after
// Access. An empty perms list admits everyone.
func (g *PermissionGuard) Require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(perms) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			granted, ok, err := g.permissions(r)
			if err != nil {
				httputil.WriteError(w, r, err, g.logger)
				return
			}
			if !ok || !domain.HasAnyPermission(granted, perms) {
				httputil.WriteError(w, r, apperrors.Forbidden("access denied"), g.logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// permissions returns the caller's permission names. ok is false when the
// request carries no usable identity.
func (g *PermissionGuard) permissions(r *http.Request) (granted []string, ok bool, err error) {
	claims, found := ClaimsFromContext(r.Context())
	if !found {
		return nil, false, nil
	}
	if g.fromClaims {
		return claims.Permissions, true, nil
	}

	id, err := claims.UserID()
	if err != nil {
		return nil, false, nil
	}
	user, err := g.users.FindByID(r.Context(), id)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, nil
	}
	return user.PermissionNames(), true, nil
}
