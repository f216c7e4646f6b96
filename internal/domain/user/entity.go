package user

import (
	"encoding/json"
	"time"
)

// Permission rules. Rule is the coarse class; nodes refine it per feature.
const (
	RuleAdmin = "admin"
	RuleUser  = "user"
)

// PermissionNode is a single feature toggle attached to a user.
type PermissionNode struct {
	Key      string `json:"key"`
	Value    bool   `json:"value"`
	Describe string `json:"describe,omitempty"`
}

// User is an account row from the user directory.
type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"-"`
	RegisterIP     string    `json:"register_ip"`
	RegisterTime   time.Time `json:"register_time"`
	Locked         bool      `json:"locked"`
	PermissionRule string    `json:"permission_rule"`
	PermissionNode string    `json:"-"`

	LastLoginIP   string     `json:"last_login_ip,omitempty"`
	LastLoginTime *time.Time `json:"last_login_time,omitempty"`
}

// IsAdmin reports whether the user's rule grants administrative access.
func (u *User) IsAdmin() bool {
	return u.PermissionRule == RuleAdmin
}

// Permissions parses the stored permission node JSON. A malformed or empty
// column yields an empty list, never an error.
func (u *User) Permissions() []PermissionNode {
	if u.PermissionNode == "" {
		return nil
	}
	var nodes []PermissionNode
	if err := json.Unmarshal([]byte(u.PermissionNode), &nodes); err != nil {
		return nil
	}
	return nodes
}

// HasPermission reports whether the user carries an explicitly granted
// permission node. Admins pass every check.
func (u *User) HasPermission(key string) bool {
	if u.IsAdmin() {
		return true
	}
	for _, node := range u.Permissions() {
		if node.Key == key {
			return node.Value
		}
	}
	return false
}

// Public returns a copy safe to hand to clients and to the presence
// registry: identity only, secret material stripped.
func (u *User) Public() *User {
	clone := *u
	clone.PasswordHash = ""
	return &clone
}
