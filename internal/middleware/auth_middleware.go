package middleware

import (
	"context"
	"errors"
	"net/http"

	"simcomps-service/internal/domain/user"
	xerrors "simcomps-service/internal/pkg/errors"
	"simcomps-service/internal/pkg/presence"
	"simcomps-service/internal/pkg/response"
	"simcomps-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HeaderSessionID is the alternate token transport for non-cookie clients.
const HeaderSessionID = "X-Session-Id"

// UserDirectory resolves a session's user id to an account.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
}

// CookieConfig describes how the session cookie is written and cleared.
type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthMiddleware struct {
	sessions *session.Store
	presence *presence.Registry
	users    UserDirectory
	cookie   CookieConfig
	logger   *zap.Logger
}

func NewAuthMiddleware(
	sessions *session.Store,
	registry *presence.Registry,
	users UserDirectory,
	cookie CookieConfig,
	logger *zap.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		presence: registry,
		users:    users,
		cookie:   cookie,
		logger:   logger,
	}
}

// Mount authenticates the request if it carries a session token and
// attaches (user, session) to the context. It aborts only when a token is
// present but dead; everything else falls through anonymous so public
// routes keep working.
//
// Locked accounts are silently de-authenticated here: their sessions are
// destroyed and the pipeline continues without an identity. Only login
// itself reports the lock explicitly.
func (m *AuthMiddleware) Mount() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("authentication panicked",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
				)
				response.Internal(c, "authentication failed", response.CodeAuthError)
			}
		}()

		token := m.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		sess, ok := m.sessions.Validate(token)
		if !ok {
			m.logger.Info("stale session token presented", zap.String("ip", c.ClientIP()))
			m.clearCookie(c)
			response.Unauthorized(c, "session expired, please sign in again", response.CodeSessionExpired)
			return
		}

		// The directory lookup happens outside any store lock.
		u, err := m.users.FindByID(c.Request.Context(), sess.UserID)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				// Account vanished; drop the dangling session and continue
				// anonymous.
				m.logger.Warn("session user no longer exists",
					zap.Int64("user_id", sess.UserID),
				)
				m.sessions.Delete(token)
				m.clearCookie(c)
				c.Next()
				return
			}

			m.logger.Error("user directory lookup failed",
				zap.Int64("user_id", sess.UserID),
				zap.Error(err),
			)
			response.Internal(c, "authentication failed", response.CodeAuthError)
			return
		}

		if u.Locked {
			m.logger.Warn("locked user attempted access",
				zap.String("user_name", u.Name),
				zap.Int64("user_id", u.ID),
			)
			m.sessions.DeleteAllForUser(u.ID)
			m.presence.MarkOffline(u.ID)
			m.clearCookie(c)
			c.Next()
			return
		}

		setCurrentUser(c, u, sess)

		if !m.presence.IsOnline(u.ID) {
			m.presence.MarkOnline(u, sess, "")
		}

		c.Next()
	}
}

// RequireAuth aborts with 401 when no identity is attached.
// MUST be used after Mount().
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			response.Unauthorized(c, "please sign in first", response.CodeLoginRequired)
			return
		}
		c.Next()
	}
}

// RequireAdmin aborts with 401/403 unless the attached user is an admin.
// MUST be used after Mount().
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			response.Unauthorized(c, "please sign in first", response.CodeLoginRequired)
			return
		}
		if !u.IsAdmin() {
			response.Forbidden(c, "administrator access required", response.CodeAdminRequired)
			return
		}
		c.Next()
	}
}

// RequirePermission aborts unless the attached user carries the permission
// node. MUST be used after Mount().
func (m *AuthMiddleware) RequirePermission(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			response.Unauthorized(c, "please sign in first", response.CodeLoginRequired)
			return
		}
		if !u.HasPermission(key) {
			response.Forbidden(c, "missing permission: "+key, response.CodePermissionDenied)
			return
		}
		c.Next()
	}
}

// extractToken reads the session token from the cookie, falling back to
// the X-Session-Id header.
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	if token, err := c.Cookie(m.cookie.Name); err == nil && token != "" {
		return token
	}
	return c.GetHeader(HeaderSessionID)
}

func (m *AuthMiddleware) clearCookie(c *gin.Context) {
	ClearSessionCookie(c, m.cookie)
}

// SetSessionCookie writes the session cookie with a max-age matching the
// session's TTL class.
func SetSessionCookie(c *gin.Context, cfg CookieConfig, token string, maxAgeSeconds int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cfg.Name, token, maxAgeSeconds, "/", "", cfg.Secure, true)
}

// ClearSessionCookie removes the client-side token marker.
func ClearSessionCookie(c *gin.Context, cfg CookieConfig) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cfg.Name, "", -1, "/", "", cfg.Secure, true)
}
