package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/bankcards-api/internal/api/shared"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/logger"
	"github.com/phrazzld/bankcards-api/internal/service"
)

// UserHandler serves the administrative user directory routes.
type UserHandler struct {
	userService service.UserService
	logger      *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService service.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for UserHandler")
	}

	return &UserHandler{
		userService: userService,
		logger:      logger.With(slog.String("component", "user_handler")),
	}
}

// CreateUser handles POST /api/admin/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	roles, err := parseRoles(req.Roles)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.userService.CreateUser(r.Context(), req.Username, req.Password, roles)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create user")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("user created",
		slog.String("user_id", user.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, userToResponse(user))
}

// ListUsers handles GET /api/admin/users with optional search and role filters.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter := domain.UserFilter{
		UsernameFragment: strings.TrimSpace(r.URL.Query().Get("search")),
		PageRequest:      pageRequest(r),
	}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			HandleAPIError(w, r, domain.NewValidationError("role", "invalid value", err), "")
			return
		}
		filter.Role = &role
	}

	page, err := h.userService.ListUsers(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list users")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, toPageResponse(page, userToResponse))
}

// GetUser handles GET /api/admin/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get user")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// UpdateUser handles PUT /api/admin/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	roles, err := parseRoles(req.Roles)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.userService.UpdateUser(r.Context(), userID, service.UpdateUserInput{
		Password: req.Password,
		Roles:    roles,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update user")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, userToResponse(user))
}

// UserStats handles GET /api/admin/users/{id}/stats
func (h *UserHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	stats, err := h.userService.UserStats(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get user statistics")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, statsToResponse(stats))
}

// DeleteUser handles DELETE /api/admin/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requirePathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(r.Context(), userID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete user")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("user deleted",
		slog.String("user_id", userID.String()))
	w.WriteHeader(http.StatusNoContent)
}
