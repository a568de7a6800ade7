package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/service"
	apperrors "github.com/utafrali/authservice/pkg/errors"
	"github.com/utafrali/authservice/pkg/httputil"
	"github.com/utafrali/authservice/pkg/pagination"
)

// UserHandler serves user lookups for privileged callers.
type UserHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// UserResponse is the data of the user lookup response.
type UserResponse struct {
	User *domain.User `json:"user"`
}

// GetUser handles GET /auth/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, r, apperrors.InvalidInput("user id must be a positive integer"), h.logger)
		return
	}

	user, err := h.service.ValidateUserByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if user == nil {
		httputil.WriteError(w, r, apperrors.NotFoundMessage("user not found"), h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "User retrieved successfully", UserResponse{User: user})
}

// ListUsers handles GET /auth/users?page=&per_page=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.FromQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	page, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "Users retrieved successfully", page)
}
