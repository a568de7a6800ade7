package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/authservice/internal/domain"
)

// Kind distinguishes access from refresh tokens. Each kind has its own
// audience so one can never be presented in place of the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const audiencePrefix = "authservice:"

func (k Kind) audience() string { return audiencePrefix + string(k) }

var (
	// ErrInvalidToken is returned for malformed, mis-signed, wrong-audience
	// or otherwise unacceptable tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for tokens past their exp claim.
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the JWT payload for both token kinds.
type Claims struct {
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// Identity is the caller view of a token's claims returned by the profile
// and validate endpoints.
type Identity struct {
	Sub         int64     `json:"sub"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// Identity converts validated claims to their caller view.
func (c *Claims) Identity() Identity {
	id, _ := c.UserID()
	ident := Identity{
		Sub:         id,
		Email:       c.Email,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}
	if c.IssuedAt != nil {
		ident.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		ident.ExpiresAt = c.ExpiresAt.Time
	}
	return ident
}

// Config holds signing keys and lifetimes.
type Config struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string // defaults to AccessSecret when empty
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenManager signs and validates HS256 tokens.
type TokenManager struct {
	issuer  string
	secrets map[Kind][]byte
	ttls    map[Kind]time.Duration
	now     func() time.Time
}

// NewTokenManager creates a TokenManager from cfg.
func NewTokenManager(cfg Config) *TokenManager {
	refreshSecret := cfg.RefreshSecret
	if refreshSecret == "" {
		refreshSecret = cfg.AccessSecret
	}
	return &TokenManager{
		issuer: cfg.Issuer,
		secrets: map[Kind][]byte{
			KindAccess:  []byte(cfg.AccessSecret),
			KindRefresh: []byte(refreshSecret),
		},
		ttls: map[Kind]time.Duration{
			KindAccess:  cfg.AccessTTL,
			KindRefresh: cfg.RefreshTTL,
		},
		now: time.Now,
	}
}

// Sign issues a token of the given kind for user and returns it with its
// expiry. Every token carries a random jti, so two tokens signed in the same
// second for the same user still differ.
func (m *TokenManager) Sign(kind Kind, user *domain.User) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.ttls[kind])

	claims := &Claims{
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Roles:       user.RoleNames(),
		Permissions: user.PermissionNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Subject(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{kind.audience()},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secrets[kind])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

// Parse validates signature, algorithm, issuer, audience and expiry for the
// given kind and returns the claims.
func (m *TokenManager) Parse(kind Kind, token string) (*Claims, error) {
	secret := m.secrets[kind]
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(kind.audience()),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
