package user

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
)

type fakeRepo struct {
	users map[int64]*user.User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[int64]*user.User)}
}

func (r *fakeRepo) FindByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) List(_ context.Context) ([]*user.User, error) {
	out := make([]*user.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeRepo) SetLock(_ context.Context, id int64, locked bool) error {
	u, ok := r.users[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	u.Locked = locked
	return nil
}

func (r *fakeRepo) UpdatePermission(_ context.Context, id int64, rule string, nodes []user.PermissionNode) error {
	u, ok := r.users[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	u.PermissionRule = rule
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.users[id]; !ok {
		return xerrors.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func newService(t *testing.T) (*UserService, *fakeRepo, *session.Store, *presence.Registry) {
	t.Helper()

	repo := newFakeRepo()
	store := session.NewStore(time.Hour, 24*time.Hour, zap.NewNop())
	registry := presence.NewRegistry(store, zap.NewNop())
	svc := NewUserService(repo, store, registry, zap.NewNop())
	return svc, repo, store, registry
}

func signIn(store *session.Store, registry *presence.Registry, u *user.User) *session.Session {
	sess := store.Create(u.ID, u.Name, "10.0.0.1", "", false)
	registry.MarkOnline(u, sess, "")
	return sess
}

func TestListStripsSecrets(t *testing.T) {
	svc, repo, _, _ := newService(t)
	repo.users[1] = &user.User{ID: 1, Name: "alice", PasswordHash: "hash"}

	users, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].PasswordHash != "" {
		t.Error("listed users must not carry password hashes")
	}
	if repo.users[1].PasswordHash == "" {
		t.Error("repository copy must stay intact")
	}
}

func TestLockForcesLogout(t *testing.T) {
	svc, repo, store, registry := newService(t)
	mallory := &user.User{ID: 7, Name: "mallory"}
	repo.users[7] = mallory

	signIn(store, registry, mallory)
	store.Create(7, "mallory", "10.0.0.2", "", false)

	if err := svc.SetLock(context.Background(), 7, true); err != nil {
		t.Fatal(err)
	}

	if !repo.users[7].Locked {
		t.Error("lock flag should be set")
	}
	if got := len(store.ListForUser(7)); got != 0 {
		t.Errorf("live sessions after lock = %d, want 0", got)
	}
	if registry.IsOnline(7) {
		t.Error("locked user should be offline")
	}
}

func TestUnlockLeavesSessionsAlone(t *testing.T) {
	svc, repo, store, registry := newService(t)
	alice := &user.User{ID: 1, Name: "alice", Locked: true}
	repo.users[1] = alice
	signIn(store, registry, alice)

	if err := svc.SetLock(context.Background(), 1, false); err != nil {
		t.Fatal(err)
	}
	if repo.users[1].Locked {
		t.Error("lock flag should be cleared")
	}
	if got := len(store.ListForUser(1)); got != 1 {
		t.Errorf("live sessions after unlock = %d, want 1", got)
	}
	if !registry.IsOnline(1) {
		t.Error("unlock must not touch presence")
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, repo, store, registry := newService(t)
	bob := &user.User{ID: 2, Name: "bob"}
	repo.users[2] = bob
	signIn(store, registry, bob)

	if err := svc.Delete(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.users[2]; ok {
		t.Error("user row should be gone")
	}
	if got := len(store.ListForUser(2)); got != 0 {
		t.Error("sessions should be gone")
	}
	if registry.IsOnline(2) {
		t.Error("presence should be gone")
	}

	if err := svc.Delete(context.Background(), 2); !errors.Is(err, xerrors.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestUpdatePermissionRejectsUnknownRule(t *testing.T) {
	svc, repo, _, _ := newService(t)
	repo.users[1] = &user.User{ID: 1, Name: "alice"}

	if err := svc.UpdatePermission(context.Background(), 1, "superuser", nil); err == nil {
		t.Error("unknown rule should be rejected")
	}
	if err := svc.UpdatePermission(context.Background(), 1, user.RuleAdmin, nil); err != nil {
		t.Errorf("valid rule: %v", err)
	}
}

func TestOnlineListReconcilesFirst(t *testing.T) {
	svc, repo, store, registry := newService(t)
	ghost := &user.User{ID: 9, Name: "ghost"}
	repo.users[9] = ghost

	sess := signIn(store, registry, ghost)
	store.Delete(sess.Token)

	if got := svc.OnlineList(); len(got) != 0 {
		t.Errorf("OnlineList returned %d entries, want 0 after reconciliation", len(got))
	}
}
