package session

import "time"

// Session binds an opaque token to an authenticated user for a bounded
// time window. The deadline is fixed at creation; only LastActiveAt moves
// as the session is used.
type Session struct {
	Token        string    `json:"token"`
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Remember     bool      `json:"remember"`
}

// TTL returns the lifetime the session was issued with.
func (s *Session) TTL() time.Duration {
	return s.ExpiresAt.Sub(s.CreatedAt)
}
