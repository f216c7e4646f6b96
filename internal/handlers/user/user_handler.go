// internal/handlers/user/user_handler.go
package user

import (
	"errors"
	"net/http"
	"strconv"

	"simcomps-service/internal/domain/user"
	"simcomps-service/internal/middleware"
	xerrors "simcomps-service/internal/pkg/errors"
	"simcomps-service/internal/pkg/response"
	userService "simcomps-service/internal/service/user"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler serves the admin-gated user management and presence routes.
type UserHandler struct {
	users  *userService.UserService
	logger *zap.Logger
}

func NewUserHandler(users *userService.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, "invalid user id")
		return 0, false
	}
	return id, true
}

// ListUsers returns every account.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		response.Internal(c, "failed to list users", response.CodeInternalError)
		return
	}
	response.Success(c, http.StatusOK, "ok", users)
}

// GetUser returns one account.
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("failed to get user", zap.Int64("user_id", id), zap.Error(err))
		response.Internal(c, "failed to get user", response.CodeInternalError)
		return
	}
	response.Success(c, http.StatusOK, "ok", u)
}

// SetLock locks or unlocks an account. Admins cannot lock themselves out.
func (h *UserHandler) SetLock(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req user.SetLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid lock payload")
		return
	}

	if caller := middleware.MustCurrentUser(c); caller.ID == id && req.Locked {
		response.ValidationError(c, "cannot lock your own account")
		return
	}

	if err := h.users.SetLock(c.Request.Context(), id, req.Locked); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("failed to set lock", zap.Int64("user_id", id), zap.Error(err))
		response.Internal(c, "failed to update lock", response.CodeInternalError)
		return
	}

	response.Success(c, http.StatusOK, "lock updated", gin.H{"locked": req.Locked})
}

// UpdatePermission replaces a user's permission rule and nodes.
func (h *UserHandler) UpdatePermission(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req user.UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid permission payload")
		return
	}

	if err := h.users.UpdatePermission(c.Request.Context(), id, req.PermissionRule, req.PermissionList); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("failed to update permission", zap.Int64("user_id", id), zap.Error(err))
		response.Internal(c, "failed to update permission", response.CodeInternalError)
		return
	}

	response.Success(c, http.StatusOK, "permission updated", nil)
}

// DeleteUser removes an account and its sessions/presence.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if caller := middleware.MustCurrentUser(c); caller.ID == id {
		response.ValidationError(c, "cannot delete your own account")
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("failed to delete user", zap.Int64("user_id", id), zap.Error(err))
		response.Internal(c, "failed to delete user", response.CodeInternalError)
		return
	}

	response.Success(c, http.StatusOK, "user deleted", nil)
}

// ==================== Presence ====================

// ListOnline reconciles and returns the online users.
func (h *UserHandler) ListOnline(c *gin.Context) {
	response.Success(c, http.StatusOK, "ok", h.users.OnlineList())
}

// PresenceStats returns the aggregate presence/session view.
func (h *UserHandler) PresenceStats(c *gin.Context) {
	response.Success(c, http.StatusOK, "ok", h.users.PresenceStats())
}

// ReconcilePresence runs one reconciliation pass.
func (h *UserHandler) ReconcilePresence(c *gin.Context) {
	removed := h.users.ReconcilePresence()
	response.Success(c, http.StatusOK, "reconciled", gin.H{"removed": removed})
}

// ClearPresence empties the registry.
func (h *UserHandler) ClearPresence(c *gin.Context) {
	h.users.ClearPresence()
	response.Success(c, http.StatusOK, "presence cleared", nil)
}
