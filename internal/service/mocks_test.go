package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/domain"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User, role string) error {
	args := m.Called(ctx, user, role)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) List(ctx context.Context, limit, offset int) ([]domain.User, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.User), args.Get(1).(int64), args.Error(2)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken, replace bool) error {
	args := m.Called(ctx, token, replace)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) Rotate(ctx context.Context, userID int64, oldHash string, next *domain.RefreshToken, now time.Time) error {
	args := m.Called(ctx, userID, oldHash, next, now)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) DeleteByUserAndHash(ctx context.Context, userID int64, tokenHash string) (bool, error) {
	args := m.Called(ctx, userID, tokenHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Event Publisher ---

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishSessionsRevoked(ctx context.Context, userID, revoked int64) error {
	args := m.Called(ctx, userID, revoked)
	return args.Error(0)
}

// --- Mock Login Throttle ---

type mockThrottle struct {
	mock.Mock
}

func (m *mockThrottle) Check(ctx context.Context, email, ip string) error {
	return m.Called(ctx, email, ip).Error(0)
}

func (m *mockThrottle) Fail(ctx context.Context, email, ip string) error {
	return m.Called(ctx, email, ip).Error(0)
}

func (m *mockThrottle) Reset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// --- Test Helpers ---

const testSecret = "test-secret-that-is-at-least-32-bytes!"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenManager() *auth.TokenManager {
	return auth.NewTokenManager(auth.Config{
		Issuer:       "authservice",
		AccessSecret: testSecret,
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   7 * 24 * time.Hour,
	})
}

func newTestUserService(t *testing.T, repo *mockUserRepository) *UserService {
	t.Helper()
	svc, err := NewUserService(repo, domain.RoleUser, bcrypt.MinCost, newTestLogger())
	require.NoError(t, err)
	return svc
}

type authFixture struct {
	svc      *AuthService
	users    *mockUserRepository
	tokens   *mockRefreshTokenRepository
	events   *mockEventPublisher
	throttle *mockThrottle
	manager  *auth.TokenManager
	registry *prometheus.Registry
}

func newAuthFixture(t *testing.T, opts ...AuthOption) *authFixture {
	t.Helper()
	f := &authFixture{
		users:    &mockUserRepository{},
		tokens:   &mockRefreshTokenRepository{},
		events:   &mockEventPublisher{},
		throttle: &mockThrottle{},
		manager:  newTestTokenManager(),
		registry: prometheus.NewRegistry(),
	}
	opts = append([]AuthOption{WithMetrics(NewMetrics(f.registry))}, opts...)
	f.svc = NewAuthService(newTestUserService(t, f.users), f.tokens, f.manager, f.events, newTestLogger(), opts...)
	return f
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func aliceWithHash(t *testing.T, password string) *domain.User {
	t.Helper()
	return &domain.User{
		ID:           1,
		FirstName:    "Alice",
		LastName:     "Liddell",
		Email:        "alice@example.com",
		PasswordHash: hashPassword(t, password),
		IsActive:     true,
		Roles: []domain.Role{{
			ID:          1,
			Name:        domain.RoleUser,
			Permissions: []domain.Permission{{Name: domain.PermProfileRead}},
		}},
	}
}
