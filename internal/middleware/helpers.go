package middleware

import (
	"simcomps-service/internal/domain/user"
	"simcomps-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserKey    = "auth_user"
	ctxSessionKey = "auth_session"
)

func setCurrentUser(c *gin.Context, u *user.User, sess *session.Session) {
	c.Set(ctxUserKey, u)
	c.Set(ctxSessionKey, sess)
}

// CurrentUser returns the authenticated user attached to the request.
func CurrentUser(c *gin.Context) (*user.User, bool) {
	v, exists := c.Get(ctxUserKey)
	if !exists {
		return nil, false
	}
	u, ok := v.(*user.User)
	return u, ok
}

// CurrentSession returns the session the request authenticated with.
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	v, exists := c.Get(ctxSessionKey)
	if !exists {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok
}

// MustCurrentUser gets the authenticated user or panics. Only for handlers
// behind RequireAuth.
func MustCurrentUser(c *gin.Context) *user.User {
	u, ok := CurrentUser(c)
	if !ok {
		panic("auth_user not found in context")
	}
	return u
}

// MustCurrentSession gets the request session or panics. Only for handlers
// behind RequireAuth.
func MustCurrentSession(c *gin.Context) *session.Session {
	sess, ok := CurrentSession(c)
	if !ok {
		panic("auth_session not found in context")
	}
	return sess
}

// IsAuthenticated checks if request is authenticated.
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ctxUserKey)
	return exists
}

// IsAdmin checks if the attached user is an administrator.
func IsAdmin(c *gin.Context) bool {
	u, ok := CurrentUser(c)
	return ok && u.IsAdmin()
}
