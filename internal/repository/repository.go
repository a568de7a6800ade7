package repository

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/authservice/internal/domain"
)

// ErrRefreshTokenExpired is returned by Rotate when the presented token was
// found but had already expired. The stale row is deleted regardless.
var ErrRefreshTokenExpired = errors.New("refresh token expired")

// UserRepository defines the interface for user persistence operations.
// Lookups return apperrors.ErrNotFound when no user matches.
type UserRepository interface {
	// Create inserts user, assigns it the named role when that role exists and
	// fills in the generated id, timestamps and roles. A taken email yields
	// apperrors.ErrAlreadyExists.
	Create(ctx context.Context, user *domain.User, role string) error

	// GetByID loads a user with roles and permissions. The password hash is
	// not selected.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail loads a user with roles, permissions and the password hash.
	// The match is exact and case-sensitive.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// List returns users ordered by id, with roles but without password
	// hashes, plus the total user count.
	List(ctx context.Context, limit, offset int) ([]domain.User, int64, error)
}

// RefreshTokenRepository defines the interface for refresh token persistence.
// Tokens are addressed by their SHA-256 hex digest.
type RefreshTokenRepository interface {
	// Create stores token. With replace set, every other token of the user
	// is deleted in the same transaction.
	Create(ctx context.Context, token *domain.RefreshToken, replace bool) error

	// Rotate atomically consumes the token with oldHash for userID and stores
	// next in its place. A missing row yields apperrors.ErrNotFound and an
	// expired one ErrRefreshTokenExpired; in both cases next is not stored.
	// Of two concurrent rotations of the same token exactly one succeeds.
	Rotate(ctx context.Context, userID int64, oldHash string, next *domain.RefreshToken, now time.Time) error

	// DeleteByUserAndHash deletes a single token and reports whether it existed.
	DeleteByUserAndHash(ctx context.Context, userID int64, tokenHash string) (bool, error)

	// DeleteByUser deletes every token of the user and returns how many.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	// DeleteExpired deletes tokens whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
