package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/repository"
	"github.com/utafrali/authservice/pkg/database"
	apperrors "github.com/utafrali/authservice/pkg/errors"
)

const (
	queryInsertRefreshToken = `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	queryConsumeRefreshToken = `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND token_hash = $2
		RETURNING expires_at`

	queryDeleteRefreshToken         = `DELETE FROM refresh_tokens WHERE user_id = $1 AND token_hash = $2`
	queryDeleteRefreshTokensByUser  = `DELETE FROM refresh_tokens WHERE user_id = $1`
	queryDeleteExpiredRefreshTokens = `DELETE FROM refresh_tokens WHERE expires_at < $1`
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token, first deleting the user's other tokens
// when replace is set.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken, replace bool) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateRefreshToken", queryInsertRefreshToken)
	defer func() { end(err) }()

	if !replace {
		if err := insertRefreshToken(ctx, r.db, t); err != nil {
			return fmt.Errorf("insert refresh token: %w", err)
		}
		return nil
	}

	err = database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, queryDeleteRefreshTokensByUser, t.UserID); err != nil {
			return fmt.Errorf("delete previous refresh tokens: %w", err)
		}
		return insertRefreshToken(ctx, tx, t)
	})
	if err != nil {
		return fmt.Errorf("replace refresh tokens: %w", err)
	}
	return nil
}

// Rotate deletes the presented token and inserts its successor in a single
// transaction. The conditional DELETE locks the row, so a concurrent rotation
// of the same token finds nothing to delete.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, userID int64, oldHash string, next *domain.RefreshToken, now time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "RotateRefreshToken", queryConsumeRefreshToken)
	defer func() { end(ignoreNotFound(err)) }()

	expired := false
	err = database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var expiresAt time.Time
		if err := tx.QueryRow(ctx, queryConsumeRefreshToken, userID, oldHash).Scan(&expiresAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("consume refresh token: %w", err)
		}

		// The stale row stays deleted.
		if !now.Before(expiresAt) {
			expired = true
			return nil
		}
		return insertRefreshToken(ctx, tx, next)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if expired {
		return repository.ErrRefreshTokenExpired
	}
	return nil
}

// DeleteByUserAndHash deletes a single refresh token of the user.
func (r *RefreshTokenRepository) DeleteByUserAndHash(ctx context.Context, userID int64, tokenHash string) (found bool, err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteRefreshToken", queryDeleteRefreshToken)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, queryDeleteRefreshToken, userID, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// DeleteByUser deletes every refresh token of the user.
func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID int64) (n int64, err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteRefreshTokensByUser", queryDeleteRefreshTokensByUser)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, queryDeleteRefreshTokensByUser, userID)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens by user: %w", err)
	}
	return ct.RowsAffected(), nil
}

// DeleteExpired deletes refresh tokens that expired before now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (n int64, err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteExpiredRefreshTokens", queryDeleteExpiredRefreshTokens)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, queryDeleteExpiredRefreshTokens, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertRefreshToken(ctx context.Context, q rowQuerier, t *domain.RefreshToken) error {
	return q.QueryRow(ctx, queryInsertRefreshToken, t.UserID, t.TokenHash, t.ExpiresAt).
		Scan(&t.ID, &t.CreatedAt)
}
