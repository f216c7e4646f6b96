package user

import "time"

type LoginRequest struct {
	Name       string `json:"name" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`

	// Filled by the handler, not the client.
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=32"`
	Password string `json:"password" binding:"required,min=6"`

	IPAddress string `json:"-"`
}

type LoginResponse struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UpdatePermissionRequest struct {
	PermissionRule string           `json:"permission_rule" binding:"required,oneof=admin user"`
	PermissionList []PermissionNode `json:"permission_list"`
}

type SetLockRequest struct {
	Locked bool `json:"locked"`
}
