// internal/handlers/auth/auth_handler.go
package auth

import (
	"errors"
	"net/http"
	"time"

	"simcomps-service/internal/domain/user"
	"simcomps-service/internal/middleware"
	xerrors "simcomps-service/internal/pkg/errors"
	"simcomps-service/internal/pkg/response"
	authService "simcomps-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	auth   *authService.AuthService
	cookie middleware.CookieConfig
	logger *zap.Logger
}

func NewAuthHandler(auth *authService.AuthService, cookie middleware.CookieConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		cookie: cookie,
		logger: logger,
	}
}

// Login handles user login (public endpoint).
func (h *AuthHandler) Login(c *gin.Context) {
	var req user.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "name and password are required")
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	resp, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrRateLimited):
			response.Error(c, http.StatusTooManyRequests, "too many login attempts, try again later", response.CodeRateLimited)
		case errors.Is(err, xerrors.ErrAccountLocked):
			response.Forbidden(c, "this account is locked", response.CodeAccountLocked)
		case errors.Is(err, xerrors.ErrBadCredentials):
			response.Unauthorized(c, "invalid username or password", response.CodeBadCredentials)
		default:
			h.logger.Error("login failed",
				zap.String("name", req.Name),
				zap.Error(err),
			)
			response.Internal(c, "login failed", response.CodeInternalError)
		}
		return
	}

	maxAge := int(time.Until(resp.ExpiresAt) / time.Second)
	middleware.SetSessionCookie(c, h.cookie, resp.Token, maxAge)

	response.Success(c, http.StatusOK, "login successful", resp)
}

// Register handles account creation (public endpoint).
func (h *AuthHandler) Register(c *gin.Context) {
	var req user.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid registration payload")
		return
	}

	req.IPAddress = c.ClientIP()

	u, err := h.auth.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			response.Error(c, http.StatusConflict, "username already taken", response.CodeConflict)
			return
		}
		h.logger.Error("registration failed",
			zap.String("name", req.Name),
			zap.Error(err),
		)
		response.Internal(c, "registration failed", response.CodeInternalError)
		return
	}

	response.Success(c, http.StatusCreated, "registration successful", u)
}

// Logout destroys the caller's current session (requires auth).
func (h *AuthHandler) Logout(c *gin.Context) {
	u := middleware.MustCurrentUser(c)
	sess := middleware.MustCurrentSession(c)

	h.auth.Logout(u.ID, sess.Token)
	middleware.ClearSessionCookie(c, h.cookie)

	response.Success(c, http.StatusOK, "logged out", nil)
}

// LogoutAll destroys every session the caller holds (requires auth).
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	u := middleware.MustCurrentUser(c)

	deleted := h.auth.LogoutAll(u.ID)
	middleware.ClearSessionCookie(c, h.cookie)

	response.Success(c, http.StatusOK, "logged out everywhere", gin.H{"sessions_revoked": deleted})
}

// GetMe echoes the attached identity (requires auth).
func (h *AuthHandler) GetMe(c *gin.Context) {
	u := middleware.MustCurrentUser(c)
	sess := middleware.MustCurrentSession(c)

	response.Success(c, http.StatusOK, "ok", gin.H{
		"user":            u.Public(),
		"permission_list": u.Permissions(),
		"session": gin.H{
			"created_at":     sess.CreatedAt,
			"last_active_at": sess.LastActiveAt,
			"expires_at":     sess.ExpiresAt,
			"ip_address":     sess.IPAddress,
		},
	})
}

// GetActiveSessions lists the caller's live sessions (requires auth).
func (h *AuthHandler) GetActiveSessions(c *gin.Context) {
	u := middleware.MustCurrentUser(c)
	response.Success(c, http.StatusOK, "ok", h.auth.ActiveSessions(u.ID))
}

// RevokeSession deletes one of the caller's own sessions (requires auth).
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	u := middleware.MustCurrentUser(c)
	token := c.Param("token")

	if err := h.auth.RevokeSession(u.ID, token); err != nil {
		response.NotFound(c, "no such session")
		return
	}

	response.Success(c, http.StatusOK, "session revoked", nil)
}
