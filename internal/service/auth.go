package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/ratelimit"
	"github.com/utafrali/authservice/internal/repository"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/pagination"
)

// LoginInput holds the parameters for user login. IP is optional and only
// feeds the login throttle.
type LoginInput struct {
	Email    string
	Password string
	IP       string
}

// EventPublisher publishes auth domain events. Failures are logged by the
// caller and never fail the request.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishSessionsRevoked(ctx context.Context, userID, revoked int64) error
}

// LoginThrottle limits failed logins. Errors other than
// ratelimit.ErrRateLimited are treated as the throttle being unavailable.
type LoginThrottle interface {
	Check(ctx context.Context, email, ip string) error
	Fail(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email string) error
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithLoginThrottle enables login throttling.
func WithLoginThrottle(t LoginThrottle) AuthOption {
	return func(s *AuthService) { s.throttle = t }
}

// WithSingleSession makes every token issuance revoke the user's other
// refresh tokens, leaving one live session per user.
func WithSingleSession() AuthOption {
	return func(s *AuthService) { s.singleSession = true }
}

// WithMetrics records auth outcomes.
func WithMetrics(m *Metrics) AuthOption {
	return func(s *AuthService) { s.metrics = m }
}

// AuthService issues, rotates and revokes token pairs.
type AuthService struct {
	users         *UserService
	refreshTokens repository.RefreshTokenRepository
	tokens        *auth.TokenManager
	events        EventPublisher
	throttle      LoginThrottle
	metrics       *Metrics
	singleSession bool
	now           func() time.Time
	logger        *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users *UserService,
	refreshTokens repository.RefreshTokenRepository,
	tokens *auth.TokenManager,
	events EventPublisher,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:         users,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		events:        events,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the user and issues its first token pair.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.TokenPair, error) {
	user, err := s.users.Create(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := s.IssueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered", slog.Int64("user_id", user.ID))
	return user, tokens, nil
}

// Login authenticates by email and password. Every failure mode returns the
// same InvalidCredentials error.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	if s.throttle != nil {
		if err := s.throttle.Check(ctx, input.Email, input.IP); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimited) {
				s.metrics.login(outcomeThrottled)
				return nil, nil, apperrors.TooManyRequests("too many failed login attempts, try again later")
			}
			s.logger.WarnContext(ctx, "login throttle unavailable", slog.String("error", err.Error()))
		}
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		s.metrics.login(outcomeError)
		return nil, nil, err
	}

	if !s.users.VerifyPassword(user, input.Password) || !user.IsActive {
		s.metrics.login(outcomeInvalidCredentials)
		if s.throttle != nil {
			if err := s.throttle.Fail(ctx, input.Email, input.IP); err != nil {
				s.logger.WarnContext(ctx, "failed to record login failure", slog.String("error", err.Error()))
			}
		}
		return nil, nil, apperrors.InvalidCredentials()
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, input.Email); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login throttle", slog.String("error", err.Error()))
		}
	}

	tokens, err := s.IssueTokens(ctx, user)
	if err != nil {
		s.metrics.login(outcomeError)
		return nil, nil, err
	}

	s.metrics.login(outcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in", slog.Int64("user_id", user.ID))
	return user.Sanitized(), tokens, nil
}

// IssueTokens signs a new pair for user and persists the refresh token.
func (s *AuthService) IssueTokens(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	pair, row, err := s.signPair(user)
	if err != nil {
		return nil, err
	}
	if err := s.refreshTokens.Create(ctx, row, s.singleSession); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	s.metrics.issued()
	return pair, nil
}

// Refresh rotates presented into a new pair. The user is reloaded so the new
// tokens carry current roles and permissions.
func (s *AuthService) Refresh(ctx context.Context, userID int64, presented string) (*domain.TokenPair, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.metrics.refresh(outcomeError)
		return nil, err
	}
	if user == nil {
		s.metrics.refresh(outcomeUserNotFound)
		return nil, apperrors.NotFoundMessage("user not found")
	}

	pair, row, err := s.signPair(user)
	if err != nil {
		s.metrics.refresh(outcomeError)
		return nil, err
	}

	err = s.refreshTokens.Rotate(ctx, userID, domain.HashToken(presented), row, s.now())
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		s.metrics.refresh(outcomeInvalid)
		return nil, apperrors.InvalidToken("invalid refresh token")
	case errors.Is(err, repository.ErrRefreshTokenExpired):
		s.metrics.refresh(outcomeExpired)
		return nil, apperrors.InvalidToken("refresh token expired")
	default:
		s.metrics.refresh(outcomeError)
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.metrics.refresh(outcomeSuccess)
	s.metrics.issued()
	s.logger.InfoContext(ctx, "tokens refreshed", slog.Int64("user_id", userID))
	return pair, nil
}

// Logout revokes a single refresh token of the user.
func (s *AuthService) Logout(ctx context.Context, userID int64, presented string) error {
	found, err := s.refreshTokens.DeleteByUserAndHash(ctx, userID, domain.HashToken(presented))
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if !found {
		return apperrors.NotFoundMessage("refresh token not found")
	}
	s.logger.InfoContext(ctx, "user logged out", slog.Int64("user_id", userID))
	return nil
}

// LogoutAll revokes every refresh token of the user and returns how many
// were revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.refreshTokens.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("logout all: %w", err)
	}

	if err := s.events.PublishSessionsRevoked(ctx, userID, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish sessions.revoked event",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged out from all devices",
		slog.Int64("user_id", userID),
		slog.Int64("revoked", n),
	)
	return n, nil
}

// CleanupExpiredTokens deletes refresh tokens past their expiry.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.refreshTokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired tokens: %w", err)
	}
	s.logger.InfoContext(ctx, "expired refresh tokens removed", slog.Int64("deleted", n))
	return n, nil
}

// ValidateUserByID returns the user without password hash, or nil.
func (s *AuthService) ValidateUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// ListUsers returns one page of users.
func (s *AuthService) ListUsers(ctx context.Context, p pagination.Params) (pagination.Page[domain.User], error) {
	return s.users.List(ctx, p)
}

// signPair signs an access and a refresh token for user and returns the
// refresh row to persist.
func (s *AuthService) signPair(user *domain.User) (*domain.TokenPair, *domain.RefreshToken, error) {
	access, _, err := s.tokens.Sign(auth.KindAccess, user)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshExp, err := s.tokens.Sign(auth.KindRefresh, user)
	if err != nil {
		return nil, nil, err
	}
	row := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: domain.HashToken(refresh),
		ExpiresAt: refreshExp,
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, row, nil
}
