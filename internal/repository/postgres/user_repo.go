package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"simcomps-service/internal/domain/user"
	xerrors "simcomps-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureSchema creates the users table if it does not exist yet.
func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id              BIGSERIAL PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE,
			password_hash   TEXT NOT NULL,
			register_ip     TEXT NOT NULL DEFAULT '',
			register_time   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			locked          BOOLEAN NOT NULL DEFAULT FALSE,
			permission_rule TEXT NOT NULL DEFAULT 'user',
			permission_node TEXT NOT NULL DEFAULT '[]',
			last_login_ip   TEXT NOT NULL DEFAULT '',
			last_login_time TIMESTAMPTZ
		)
	`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure users schema: %w", err)
	}
	return nil
}

const userColumns = `
	id, name, password_hash, register_ip, register_time,
	locked, permission_rule, permission_node, last_login_ip, last_login_time
`

func (r *UserRepository) scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Name, &u.PasswordHash, &u.RegisterIP, &u.RegisterTime,
		&u.Locked, &u.PermissionRule, &u.PermissionNode,
		&u.LastLoginIP, &u.LastLoginTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// FindByID looks a user up by id.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

// FindByName looks a user up by name.
func (r *UserRepository) FindByName(ctx context.Context, name string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE name = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, name))
}

// Create inserts a new user. Returns xerrors.ErrDuplicateEntry when the
// name is already taken.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (name, password_hash, register_ip, register_time, locked, permission_rule, permission_node)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, register_time
	`
	if u.PermissionNode == "" {
		u.PermissionNode = "[]"
	}
	if u.PermissionRule == "" {
		u.PermissionRule = user.RuleUser
	}

	err := r.db.QueryRow(
		ctx, query,
		u.Name, u.PasswordHash, u.RegisterIP, time.Now(),
		u.Locked, u.PermissionRule, u.PermissionNode,
	).Scan(&u.ID, &u.RegisterTime)

	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// List returns all users ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateLastLogin stamps the user's last login time and ip.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, ip string) error {
	query := `UPDATE users SET last_login_time = $1, last_login_ip = $2 WHERE id = $3`
	_, err := r.db.Exec(ctx, query, time.Now(), ip, id)
	return err
}

// SetLock flips the lock flag.
func (r *UserRepository) SetLock(ctx context.Context, id int64, locked bool) error {
	query := `UPDATE users SET locked = $1 WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, locked, id)
	if err != nil {
		return fmt.Errorf("failed to set user lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdatePermission replaces the user's rule and permission node list.
func (r *UserRepository) UpdatePermission(ctx context.Context, id int64, rule string, nodes []user.PermissionNode) error {
	nodeJSON, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal permission nodes: %w", err)
	}
	if nodes == nil {
		nodeJSON = []byte("[]")
	}

	query := `UPDATE users SET permission_rule = $1, permission_node = $2 WHERE id = $3`

	tag, err := r.db.Exec(ctx, query, rule, string(nodeJSON), id)
	if err != nil {
		return fmt.Errorf("failed to update user permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1 WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// Delete removes a user row.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
