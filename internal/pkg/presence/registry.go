package presence

import (
	"sync"
	"time"

	"simcomps-service/internal/domain/user"
	"simcomps-service/internal/pkg/session"

	"go.uber.org/zap"
)

// OnlineEntry is the presence snapshot for one user. The referenced
// session is a weak back-reference into the session store: consulted
// during reconciliation, never mutated here.
type OnlineEntry struct {
	User            *user.User       `json:"user"`
	Session         *session.Session `json:"session"`
	TransportHandle string           `json:"transport_handle,omitempty"`
}

// UserSummary is one row of Stats.
type UserSummary struct {
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name"`
	LoginTime    time.Time `json:"login_time"`
	LastActive   time.Time `json:"last_active"`
	IPAddress    string    `json:"ip_address"`
	HasTransport bool      `json:"has_transport"`
}

// Stats aggregates the registry and the session store.
type Stats struct {
	OnlineCount  int           `json:"online_count"`
	SessionCount int           `json:"session_count"`
	PerUser      []UserSummary `json:"per_user"`
}

// SessionSource is the slice of the session store the registry consults.
type SessionSource interface {
	Validate(token string) (*session.Session, bool)
	CountLiveSessions() int
}

// Registry tracks which users currently hold a valid session. Presence is
// derived state: the session store stays authoritative, and Reconcile is
// what turns "session expired" into "user offline".
//
// Keyed by user id. A user signed in from two devices collapses to a
// single entry; the second MarkOnline replaces the first.
type Registry struct {
	mu     sync.RWMutex
	online map[int64]*OnlineEntry

	sessions SessionSource
	logger   *zap.Logger
}

func NewRegistry(sessions SessionSource, logger *zap.Logger) *Registry {
	return &Registry{
		online:   make(map[int64]*OnlineEntry),
		sessions: sessions,
		logger:   logger,
	}
}

// MarkOnline inserts or replaces the entry for the user. Idempotent.
// Secret material is stripped from the stored identity.
func (r *Registry) MarkOnline(u *user.User, sess *session.Session, transportHandle string) {
	entry := &OnlineEntry{
		User:            u.Public(),
		Session:         sess,
		TransportHandle: transportHandle,
	}

	r.mu.Lock()
	r.online[u.ID] = entry
	r.mu.Unlock()

	r.logger.Info("user online",
		zap.String("user_name", u.Name),
		zap.Int64("user_id", u.ID),
	)
}

// MarkOffline removes the entry if present.
func (r *Registry) MarkOffline(userID int64) bool {
	r.mu.Lock()
	entry, ok := r.online[userID]
	if ok {
		delete(r.online, userID)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("user offline",
			zap.String("user_name", entry.User.Name),
			zap.Int64("user_id", userID),
		)
	}
	return ok
}

// IsOnline reports whether the user has an entry.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[userID]
	return ok
}

// Get returns the user's entry, if any.
func (r *Registry) Get(userID int64) (*OnlineEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.online[userID]
	return entry, ok
}

// ListAll returns a snapshot of every entry. Order is unspecified.
func (r *Registry) ListAll() []*OnlineEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*OnlineEntry, 0, len(r.online))
	for _, entry := range r.online {
		out = append(out, entry)
	}
	return out
}

// Count returns the number of users currently marked online.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

// FindByTransportHandle scans entries for the one bound to the handle.
// Linear; the online population is small.
func (r *Registry) FindByTransportHandle(handle string) (*OnlineEntry, bool) {
	if handle == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.online {
		if entry.TransportHandle == handle {
			return entry, true
		}
	}
	return nil, false
}

// UpdateTransportHandle rebinds the user's push-channel handle, e.g. when
// a websocket connects or drops. Returns false if the user is not online.
func (r *Registry) UpdateTransportHandle(userID int64, handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.online[userID]
	if !ok {
		return false
	}
	entry.TransportHandle = handle
	return true
}

// Reconcile validates every entry's backing session and drops entries
// whose session is gone. Returns the number removed.
//
// The session store is never called while the registry lock is held: the
// entries are snapshotted first, validated unlocked, and stale ids removed
// in a second pass. An entry re-created in between (user logged back in)
// is left alone.
func (r *Registry) Reconcile() int {
	type candidate struct {
		userID int64
		token  string
	}

	r.mu.RLock()
	candidates := make([]candidate, 0, len(r.online))
	for userID, entry := range r.online {
		candidates = append(candidates, candidate{userID: userID, token: entry.Session.Token})
	}
	r.mu.RUnlock()

	removed := 0
	for _, c := range candidates {
		if _, ok := r.sessions.Validate(c.token); ok {
			continue
		}

		r.mu.Lock()
		entry, ok := r.online[c.userID]
		if ok && entry.Session.Token == c.token {
			delete(r.online, c.userID)
			removed++
		}
		r.mu.Unlock()
	}

	if removed > 0 {
		r.logger.Info("stale presence entries removed", zap.Int("count", removed))
	}
	return removed
}

// StatsSnapshot aggregates the registry and the session store. Read-only.
func (r *Registry) StatsSnapshot() Stats {
	entries := r.ListAll()

	perUser := make([]UserSummary, 0, len(entries))
	for _, entry := range entries {
		perUser = append(perUser, UserSummary{
			UserID:       entry.User.ID,
			UserName:     entry.User.Name,
			LoginTime:    entry.Session.CreatedAt,
			LastActive:   entry.Session.LastActiveAt,
			IPAddress:    entry.Session.IPAddress,
			HasTransport: entry.TransportHandle != "",
		})
	}

	return Stats{
		OnlineCount:  len(entries),
		SessionCount: r.sessions.CountLiveSessions(),
		PerUser:      perUser,
	}
}

// ClearAll empties the registry. Administrative reset only.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	r.online = make(map[int64]*OnlineEntry)
	r.mu.Unlock()

	r.logger.Info("presence registry cleared")
}
