package http

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/guard"
	"github.com/utafrali/authservice/internal/service"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/httputil"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger, now: time.Now}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,max=72"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// AuthResponse is the data of register and login responses.
type AuthResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// ProfileResponse is the data of the profile response.
type ProfileResponse struct {
	User auth.Identity `json:"user"`
}

// ValidateResponse is the data of the validate response.
type ValidateResponse struct {
	Valid bool          `json:"valid"`
	User  auth.Identity `json:"user"`
}

// HealthResponse is the data of the service health response.
type HealthResponse struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// --- Handlers ---

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, "User registered successfully", AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		IP:       clientIP(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "Login successful", AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

// Refresh handles POST /auth/refresh. Requires the refresh guard.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, presented, ok := h.caller(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), userID, presented)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "Tokens refreshed successfully", tokens)
}

// Logout handles POST /auth/logout. Requires the refresh guard.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, presented, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), userID, presented); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// LogoutAll handles POST /auth/logout-all. Requires the access guard.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.caller(w, r)
	if !ok {
		return
	}

	if _, err := h.service.LogoutAll(r.Context(), userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "Logged out from all devices successfully", nil)
}

// Profile handles GET /auth/profile. It echoes the access token's identity.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := guard.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "Profile retrieved successfully", ProfileResponse{User: claims.Identity()})
}

// Validate handles GET /auth/validate.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims, ok := guard.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "Token is valid", ValidateResponse{Valid: true, User: claims.Identity()})
}

// Health handles GET /auth/health. It reports liveness only; dependency
// checks live under /health/ready.
func (h *AuthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteSuccess(w, http.StatusOK, "Authentication service is running", HealthResponse{
		Service:   "auth",
		Status:    "healthy",
		Timestamp: h.now().UTC(),
	})
}

// CleanupTokens handles POST /auth/tokens/cleanup.
func (h *AuthHandler) CleanupTokens(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.CleanupExpiredTokens(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "Expired tokens removed", map[string]int64{"deleted": n})
}

// caller returns the authenticated user id and raw token stored by a guard,
// writing a 401 when there is none.
func (h *AuthHandler) caller(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	claims, ok := guard.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return 0, "", false
	}
	id, err := claims.UserID()
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidToken("invalid token subject"), h.logger)
		return 0, "", false
	}
	return id, guard.RawTokenFromContext(r.Context()), true
}

// clientIP returns the peer address without port. Forwarding headers are not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
