package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/repository"
	apperrors "github.com/utafrali/authservice/pkg/errors"
)

func newRefreshTokenTestFixture(t *testing.T) (*RefreshTokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewRefreshTokenRepository(mock), mock
}

func sampleRefreshToken(userID int64, token string, expiresAt time.Time) *domain.RefreshToken {
	return &domain.RefreshToken{
		UserID:    userID,
		TokenHash: domain.HashToken(token),
		ExpiresAt: expiresAt,
	}
}

func insertedRow(id int64, at time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "created_at"}).AddRow(id, at)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Create_Appends(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	rt := sampleRefreshToken(1, "r1", now.Add(time.Hour))

	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(int64(1), rt.TokenHash, rt.ExpiresAt).
		WillReturnRows(insertedRow(10, now))

	require.NoError(t, repo.Create(context.Background(), rt, false))
	assert.Equal(t, int64(10), rt.ID)
	assert.Equal(t, now, rt.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Create_ReplacesInTransaction(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	rt := sampleRefreshToken(1, "r1", now.Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id =").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(int64(1), rt.TokenHash, rt.ExpiresAt).
		WillReturnRows(insertedRow(11, now))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), rt, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Create_ReplaceRollsBackOnInsertError(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	rt := sampleRefreshToken(1, "r1", time.Now().Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id =").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), rt, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace refresh tokens")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Rotate
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_Rotate_Success(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	oldHash := domain.HashToken("r1")
	next := sampleRefreshToken(1, "r2", now.Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM refresh_tokens .+ RETURNING expires_at").
		WithArgs(int64(1), oldHash).
		WillReturnRows(pgxmock.NewRows([]string{"expires_at"}).AddRow(now.Add(time.Minute)))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(int64(1), next.TokenHash, next.ExpiresAt).
		WillReturnRows(insertedRow(12, now))
	mock.ExpectCommit()

	require.NoError(t, repo.Rotate(context.Background(), 1, oldHash, next, now))
	assert.Equal(t, int64(12), next.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_NotFound(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	oldHash := domain.HashToken("already-used")

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM refresh_tokens .+ RETURNING expires_at").
		WithArgs(int64(1), oldHash).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), 1, oldHash, sampleRefreshToken(1, "r2", now.Add(time.Hour)), now)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_ExpiredCommitsDelete(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	oldHash := domain.HashToken("r1")

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM refresh_tokens .+ RETURNING expires_at").
		WithArgs(int64(1), oldHash).
		WillReturnRows(pgxmock.NewRows([]string{"expires_at"}).AddRow(now.Add(-time.Second)))
	mock.ExpectCommit()

	err := repo.Rotate(context.Background(), 1, oldHash, sampleRefreshToken(1, "r2", now.Add(time.Hour)), now)
	assert.ErrorIs(t, err, repository.ErrRefreshTokenExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_DatabaseError(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM refresh_tokens .+ RETURNING expires_at").
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), 1, "h", sampleRefreshToken(1, "r2", now.Add(time.Hour)), now)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), "rotate refresh token")
}

// ---------------------------------------------------------------------------
// Deletes
// ---------------------------------------------------------------------------

func TestRefreshTokenRepository_DeleteByUserAndHash(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"found", 1, true},
		{"missing", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRefreshTokenTestFixture(t)
			defer mock.Close()

			hash := domain.HashToken("r1")
			mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id = .+ AND token_hash =").
				WithArgs(int64(1), hash).
				WillReturnResult(pgxmock.NewResult("DELETE", tt.affected))

			found, err := repo.DeleteByUserAndHash(context.Background(), 1, hash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, found)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRefreshTokenRepository_DeleteByUser(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE user_id =").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := repo.DeleteByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteExpired(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE expires_at <").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteExpired_Error(t *testing.T) {
	repo, mock := newRefreshTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE expires_at <").
		WillReturnError(fmt.Errorf("timeout"))

	_, err := repo.DeleteExpired(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete expired refresh tokens")
}
