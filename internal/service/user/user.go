// internal/service/user/user.go
package user

import (
	"context"
	"fmt"

	"simcomps-service/internal/domain/user"
	"simcomps-service/internal/pkg/presence"
	"simcomps-service/internal/pkg/session"

	"go.uber.org/zap"
)

// UserRepository is the directory surface the admin flows need.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
	List(ctx context.Context) ([]*user.User, error)
	SetLock(ctx context.Context, id int64, locked bool) error
	UpdatePermission(ctx context.Context, id int64, rule string, nodes []user.PermissionNode) error
	Delete(ctx context.Context, id int64) error
}

// UserService covers administrative user management and the presence
// surface exposed to admins.
type UserService struct {
	users    UserRepository
	sessions *session.Store
	presence *presence.Registry
	logger   *zap.Logger
}

func NewUserService(
	users UserRepository,
	sessions *session.Store,
	registry *presence.Registry,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		presence: registry,
		logger:   logger,
	}
}

// List returns every account, secrets stripped.
func (s *UserService) List(ctx context.Context) ([]*user.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*user.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// Get returns one account, secrets stripped.
func (s *UserService) Get(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

// SetLock flips the account lock. Locking also force-logs the user out
// everywhere and drops their presence entry, so the lock takes effect
// immediately rather than on their next request.
func (s *UserService) SetLock(ctx context.Context, id int64, locked bool) error {
	if err := s.users.SetLock(ctx, id, locked); err != nil {
		return err
	}

	if locked {
		deleted := s.sessions.DeleteAllForUser(id)
		s.presence.MarkOffline(id)
		s.logger.Info("user locked",
			zap.Int64("user_id", id),
			zap.Int("sessions_revoked", deleted),
		)
	} else {
		s.logger.Info("user unlocked", zap.Int64("user_id", id))
	}
	return nil
}

// UpdatePermission replaces a user's rule and permission nodes.
func (s *UserService) UpdatePermission(ctx context.Context, id int64, rule string, nodes []user.PermissionNode) error {
	if rule != user.RuleAdmin && rule != user.RuleUser {
		return fmt.Errorf("unknown permission rule %q", rule)
	}
	return s.users.UpdatePermission(ctx, id, rule, nodes)
}

// Delete removes the account and everything hanging off it: sessions and
// presence.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.sessions.DeleteAllForUser(id)
	s.presence.MarkOffline(id)

	s.logger.Info("user deleted", zap.Int64("user_id", id))
	return nil
}

// OnlineList reconciles the registry against the session store and then
// returns the surviving entries. Reconciling first keeps expired sessions
// from showing up as online users.
func (s *UserService) OnlineList() []*presence.OnlineEntry {
	s.presence.Reconcile()
	return s.presence.ListAll()
}

// PresenceStats returns the read-only aggregate view.
func (s *UserService) PresenceStats() presence.Stats {
	return s.presence.StatsSnapshot()
}

// ReconcilePresence runs one reconciliation pass and reports removals.
func (s *UserService) ReconcilePresence() int {
	return s.presence.Reconcile()
}

// ClearPresence empties the registry.
func (s *UserService) ClearPresence() {
	s.presence.ClearAll()
}
