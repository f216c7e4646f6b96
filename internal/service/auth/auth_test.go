package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"simcomps-service/internal/domain/user"
	xerrors "simcomps-service/internal/pkg/errors"
	"simcomps-service/internal/pkg/presence"
	"simcomps-service/internal/pkg/session"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	byName    map[string]*user.User
	byID      map[int64]*user.User
	nextID    int64
	lookupErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byName: make(map[string]*user.User),
		byID:   make(map[int64]*user.User),
		nextID: 1,
	}
}

func (r *fakeRepo) add(u *user.User) *user.User {
	if u.ID == 0 {
		u.ID = r.nextID
		r.nextID++
	}
	r.byName[u.Name] = u
	r.byID[u.ID] = u
	return u
}

func (r *fakeRepo) FindByID(_ context.Context, id int64) (*user.User, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) FindByName(_ context.Context, name string) (*user.User, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	u, ok := r.byName[name]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) Create(_ context.Context, u *user.User) error {
	if _, exists := r.byName[u.Name]; exists {
		return xerrors.ErrDuplicateEntry
	}
	r.add(u)
	return nil
}

func (r *fakeRepo) UpdateLastLogin(_ context.Context, id int64, ip string) error {
	u, ok := r.byID[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	now := time.Now()
	u.LastLoginIP = ip
	u.LastLoginTime = &now
	return nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func newService(t *testing.T) (*AuthService, *fakeRepo, *session.Store, *presence.Registry) {
	t.Helper()

	repo := newFakeRepo()
	store := session.NewStore(time.Hour, 24*time.Hour, zap.NewNop())
	registry := presence.NewRegistry(store, zap.NewNop())
	limiter := session.NewRateLimiter(nil)
	svc := NewAuthService(repo, store, registry, limiter, zap.NewNop())
	return svc, repo, store, registry
}

func TestLoginSuccess(t *testing.T) {
	svc, repo, store, registry := newService(t)
	repo.add(&user.User{Name: "alice", PasswordHash: hash(t, "hunter22")})

	resp, err := svc.Login(context.Background(), &user.LoginRequest{
		Name: "alice", Password: "hunter22", IPAddress: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a session token")
	}
	if resp.User.PasswordHash != "" {
		t.Error("response must not leak the password hash")
	}

	if _, ok := store.Validate(resp.Token); !ok {
		t.Error("issued token should validate")
	}
	if !registry.IsOnline(resp.User.ID) {
		t.Error("user should be online after login")
	}
	if repo.byName["alice"].LastLoginIP != "10.0.0.1" {
		t.Error("last login ip should be stamped")
	}
}

func TestLoginRememberMe(t *testing.T) {
	svc, repo, _, _ := newService(t)
	repo.add(&user.User{Name: "alice", PasswordHash: hash(t, "hunter22")})

	resp, err := svc.Login(context.Background(), &user.LoginRequest{
		Name: "alice", Password: "hunter22", RememberMe: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if until := time.Until(resp.ExpiresAt); until < 23*time.Hour {
		// short TTL is 1h in this fixture; remember-me is 24h
		t.Errorf("remember-me session expires too soon: %v", until)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	svc, repo, store, _ := newService(t)
	repo.add(&user.User{Name: "alice", PasswordHash: hash(t, "hunter22")})

	for _, req := range []*user.LoginRequest{
		{Name: "alice", Password: "wrong"},
		{Name: "nobody", Password: "hunter22"},
	} {
		if _, err := svc.Login(context.Background(), req); !errors.Is(err, xerrors.ErrBadCredentials) {
			t.Errorf("Login(%q) err = %v, want ErrBadCredentials", req.Name, err)
		}
	}
	if store.CountLiveSessions() != 0 {
		t.Error("failed logins must not leave sessions behind")
	}
}

func TestLoginLockedAccount(t *testing.T) {
	svc, repo, _, _ := newService(t)
	repo.add(&user.User{Name: "mallory", PasswordHash: hash(t, "hunter22"), Locked: true})

	_, err := svc.Login(context.Background(), &user.LoginRequest{Name: "mallory", Password: "hunter22"})
	if !errors.Is(err, xerrors.ErrAccountLocked) {
		t.Errorf("err = %v, want ErrAccountLocked", err)
	}
}

func TestRegister(t *testing.T) {
	svc, _, _, _ := newService(t)

	u, err := svc.Register(context.Background(), &user.RegisterRequest{
		Name: "newbie", Password: "secret123", IPAddress: "10.0.0.5",
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.PermissionRule != user.RuleUser {
		t.Errorf("rule = %q, want user", u.PermissionRule)
	}
	if u.PasswordHash != "" {
		t.Error("register response must not leak the hash")
	}

	if _, err := svc.Register(context.Background(), &user.RegisterRequest{
		Name: "newbie", Password: "secret123",
	}); !errors.Is(err, xerrors.ErrDuplicateEntry) {
		t.Errorf("duplicate register err = %v, want ErrDuplicateEntry", err)
	}
}

func TestLogoutKeepsPresenceWhileSessionsRemain(t *testing.T) {
	svc, repo, store, registry := newService(t)
	alice := repo.add(&user.User{Name: "alice", PasswordHash: hash(t, "hunter22")})

	first, _ := svc.Login(context.Background(), &user.LoginRequest{Name: "alice", Password: "hunter22"})
	second, _ := svc.Login(context.Background(), &user.LoginRequest{Name: "alice", Password: "hunter22"})

	svc.Logout(alice.ID, first.Token)
	if !registry.IsOnline(alice.ID) {
		t.Error("user still holds a session; presence should survive")
	}

	svc.Logout(alice.ID, second.Token)
	if registry.IsOnline(alice.ID) {
		t.Error("last logout should take the user offline")
	}
	if store.CountLiveSessions() != 0 {
		t.Error("no sessions should remain")
	}
}

func TestLogoutAll(t *testing.T) {
	svc, repo, store, registry := newService(t)
	alice := repo.add(&user.User{Name: "alice", PasswordHash: hash(t, "hunter22")})

	svc.Login(context.Background(), &user.LoginRequest{Name: "alice", Password: "hunter22"})
	svc.Login(context.Background(), &user.LoginRequest{Name: "alice", Password: "hunter22"})

	if deleted := svc.LogoutAll(alice.ID); deleted != 2 {
		t.Errorf("LogoutAll = %d, want 2", deleted)
	}
	if registry.IsOnline(alice.ID) {
		t.Error("user should be offline")
	}
	if store.CountLiveSessions() != 0 {
		t.Error("no sessions should remain")
	}
}

func TestRevokeSessionOwnershipCheck(t *testing.T) {
	svc, repo, _, _ := newService(t)
	repo.add(&user.User{Name: "alice", PasswordHash: hash(t, "hunter22")})
	bob := repo.add(&user.User{Name: "bob", PasswordHash: hash(t, "hunter22")})

	aliceResp, _ := svc.Login(context.Background(), &user.LoginRequest{Name: "alice", Password: "hunter22"})

	if err := svc.RevokeSession(bob.ID, aliceResp.Token); !errors.Is(err, xerrors.ErrNotFound) {
		t.Errorf("revoking someone else's token err = %v, want ErrNotFound", err)
	}

	alice, _ := repo.FindByName(context.Background(), "alice")
	if err := svc.RevokeSession(alice.ID, aliceResp.Token); err != nil {
		t.Errorf("revoking own token: %v", err)
	}
	if got := len(svc.ActiveSessions(alice.ID)); got != 0 {
		t.Errorf("ActiveSessions = %d, want 0", got)
	}
}
