// internal/service/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"

	"simcomps-service/internal/domain/user"
	xerrors "simcomps-service/internal/pkg/errors"
	"simcomps-service/internal/pkg/presence"
	"simcomps-service/internal/pkg/session"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository is the slice of the user directory the auth flows need.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
	FindByName(ctx context.Context, name string) (*user.User, error)
	Create(ctx context.Context, u *user.User) error
	UpdateLastLogin(ctx context.Context, id int64, ip string) error
}

type AuthService struct {
	users    UserRepository
	sessions *session.Store
	presence *presence.Registry
	limiter  *session.RateLimiter
	logger   *zap.Logger
}

func NewAuthService(
	users UserRepository,
	sessions *session.Store,
	registry *presence.Registry,
	limiter *session.RateLimiter,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		presence: registry,
		limiter:  limiter,
		logger:   logger,
	}
}

// Login validates credentials and issues a session. Unknown names and
// wrong passwords collapse into ErrBadCredentials; only the lock flag is
// reported distinctly, and only here. Authenticated requests from a
// locked account are silently de-authenticated by the middleware instead.
func (s *AuthService) Login(ctx context.Context, req *user.LoginRequest) (*user.LoginResponse, error) {
	allowed, _, err := s.limiter.CheckLoginAttempt(ctx, req.IPAddress, req.Name)
	if err != nil {
		// A broken limiter must not take logins down with it.
		s.logger.Warn("login rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		s.logger.Warn("login rate limited",
			zap.String("name", req.Name),
			zap.String("ip", req.IPAddress),
		)
		return nil, xerrors.ErrRateLimited
	}

	u, err := s.users.FindByName(ctx, req.Name)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Info("login failed: unknown user", zap.String("name", req.Name))
			return nil, xerrors.ErrBadCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if u.Locked {
		s.logger.Warn("login attempt on locked account",
			zap.String("name", u.Name),
			zap.Int64("user_id", u.ID),
		)
		return nil, xerrors.ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Info("login failed: bad password",
			zap.String("name", u.Name),
			zap.String("ip", req.IPAddress),
		)
		return nil, xerrors.ErrBadCredentials
	}

	if err := s.limiter.ResetLoginAttempts(ctx, req.IPAddress, req.Name); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}

	sess := s.sessions.Create(u.ID, u.Name, req.IPAddress, req.UserAgent, req.RememberMe)
	s.presence.MarkOnline(u, sess, "")

	if err := s.users.UpdateLastLogin(ctx, u.ID, req.IPAddress); err != nil {
		s.logger.Warn("failed to update last login",
			zap.Int64("user_id", u.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("user logged in",
		zap.String("name", u.Name),
		zap.Int64("user_id", u.ID),
		zap.Bool("remember_me", req.RememberMe),
	)

	return &user.LoginResponse{
		User:      u.Public(),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Register creates a new account with the default permission rule.
func (s *AuthService) Register(ctx context.Context, req *user.RegisterRequest) (*user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &user.User{
		Name:           req.Name,
		PasswordHash:   string(hash),
		RegisterIP:     req.IPAddress,
		PermissionRule: user.RuleUser,
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return nil, xerrors.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("name", u.Name),
		zap.Int64("user_id", u.ID),
	)
	return u.Public(), nil
}

// Logout destroys the presented session. The user only goes offline once
// no other live session remains.
func (s *AuthService) Logout(userID int64, token string) {
	s.sessions.Delete(token)

	if len(s.sessions.ListForUser(userID)) == 0 {
		s.presence.MarkOffline(userID)
	}
}

// LogoutAll destroys every session the user holds and marks them offline.
func (s *AuthService) LogoutAll(userID int64) int {
	deleted := s.sessions.DeleteAllForUser(userID)
	s.presence.MarkOffline(userID)
	return deleted
}

// ActiveSessions lists the caller's live sessions, oldest first.
func (s *AuthService) ActiveSessions(userID int64) []*session.Session {
	return s.sessions.ListForUser(userID)
}

// RevokeSession deletes one of the caller's own sessions. A token that
// belongs to someone else is reported as not found.
func (s *AuthService) RevokeSession(userID int64, token string) error {
	for _, sess := range s.sessions.ListForUser(userID) {
		if sess.Token == token {
			s.Logout(userID, token)
			return nil
		}
	}
	return xerrors.ErrNotFound
}
