package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/repository"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/pagination"
)

// maxPasswordBytes is the bcrypt input limit. Longer passwords are rejected
// rather than silently truncated.
const maxPasswordBytes = 72

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UserService is the credential store: user lookup, creation and password
// verification.
type UserService struct {
	repo        repository.UserRepository
	defaultRole string
	bcryptCost  int
	// dummyHash is compared against when no user matches, so an unknown email
	// costs the same bcrypt work as a wrong password.
	dummyHash []byte
	logger    *slog.Logger
}

// NewUserService creates a new user service. New users get defaultRole when
// a role of that name exists.
func NewUserService(repo repository.UserRepository, defaultRole string, bcryptCost int, logger *slog.Logger) (*UserService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}
	return &UserService{
		repo:        repo,
		defaultRole: defaultRole,
		bcryptCost:  bcryptCost,
		dummyHash:   dummy,
		logger:      logger,
	}, nil
}

// FindByEmail returns the user with the exact email, including roles,
// permissions and the password hash, or nil when there is none.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// FindByID returns the user with roles and permissions but without the
// password hash, or nil when there is none.
func (s *UserService) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

// List returns one page of users.
func (s *UserService) List(ctx context.Context, p pagination.Params) (pagination.Page[domain.User], error) {
	users, total, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return pagination.Page[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	return pagination.NewPage(users, total, p), nil
}

// Create registers a new user with a bcrypt-hashed password. The returned
// user carries its roles and no password hash.
func (s *UserService) Create(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if len(input.Password) > maxPasswordBytes {
		return nil, apperrors.InvalidInput("password must be at most 72 bytes")
	}

	existing, err := s.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("user", "email", input.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        input.Email,
		PasswordHash: string(hash),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     true,
	}
	// A concurrent registration that slipped past the pre-check surfaces
	// here as AlreadyExists from the unique index.
	if err := s.repo.Create(ctx, user, s.defaultRole); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.defaultRole != "" && len(user.Roles) == 0 {
		s.logger.WarnContext(ctx, "default role not found, user created without roles",
			slog.String("role", s.defaultRole),
			slog.Int64("user_id", user.ID),
		)
	}

	user.PasswordHash = ""
	return user, nil
}

// VerifyPassword reports whether password matches user's hash. A nil user or
// missing hash never matches but still pays for one bcrypt comparison.
func (s *UserService) VerifyPassword(user *domain.User, password string) bool {
	if user == nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}
