package session

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store holds every live session in memory, keyed by token. Sessions do
// not survive a restart and are not shared between nodes.
//
// All read-modify-write sequences run under a single mutex so that a
// concurrent validator can never observe a session the sweeper has already
// deleted, and a token can never be issued twice.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl         time.Duration
	rememberTTL time.Duration

	now      func() time.Time
	newToken func() string

	logger *zap.Logger

	stopSweep chan struct{}
	sweepOnce sync.Once
	wg        sync.WaitGroup
}

// Option overrides a Store primitive, mainly so tests can drive the clock.
type Option func(*Store)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTokenSource replaces the token generator.
func WithTokenSource(gen func() string) Option {
	return func(s *Store) { s.newToken = gen }
}

// NewStore builds an empty store. ttl applies to ordinary logins,
// rememberTTL to "remember me" logins; both are fixed per session at
// creation and never renegotiated.
func NewStore(ttl, rememberTTL time.Duration, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*Session),
		ttl:         ttl,
		rememberTTL: rememberTTL,
		now:         time.Now,
		newToken:    generateToken,
		logger:      logger,
		stopSweep:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// generateToken returns 32 random bytes, hex encoded. Unguessable; never
// derived from user data.
func generateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process has no usable entropy
		// source; nothing sensible can be issued.
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Create issues a fresh session for the user. Token collisions are
// vanishingly unlikely at 256 bits but are still detected and retried
// rather than overwriting a live session.
func (s *Store) Create(userID int64, userName, ip, userAgent string, remember bool) *Session {
	now := s.now()

	ttl := s.ttl
	if remember {
		ttl = s.rememberTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.newToken()
	for _, exists := s.sessions[token]; exists; _, exists = s.sessions[token] {
		token = s.newToken()
	}

	sess := &Session{
		Token:        token,
		UserID:       userID,
		UserName:     userName,
		CreatedAt:    now,
		LastActiveAt: now,
		IPAddress:    ip,
		UserAgent:    userAgent,
		ExpiresAt:    now.Add(ttl),
		Remember:     remember,
	}
	s.sessions[token] = sess

	s.logger.Info("session created",
		zap.String("user_name", userName),
		zap.Int64("user_id", userID),
		zap.Time("expires_at", sess.ExpiresAt),
	)

	return snapshot(sess)
}

// Validate looks a session up by token. A missing token and an expired one
// are indistinguishable to the caller: both return ok=false, and an
// expired entry is deleted on the spot. On success LastActiveAt is bumped
// and a copy of the session is returned; the expiry deadline itself never
// moves.
func (s *Store) Validate(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}

	now := s.now()
	if now.After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return nil, false
	}

	sess.LastActiveAt = now
	return snapshot(sess), true
}

// Delete removes a session if present. Idempotent.
func (s *Store) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return false
	}
	delete(s.sessions, token)

	s.logger.Info("session deleted",
		zap.String("user_name", sess.UserName),
		zap.Int64("user_id", sess.UserID),
	)
	return true
}

// DeleteAllForUser removes every live session belonging to the user and
// returns how many were removed. Used for forced logout (account lock,
// password change). Runs under the store lock, so no session for the user
// can be validated as live once this returns.
func (s *Store) DeleteAllForUser(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Info("user sessions deleted",
			zap.Int64("user_id", userID),
			zap.Int("count", deleted),
		)
	}
	return deleted
}

// ListForUser returns the user's live sessions ordered by creation time.
func (s *Store) ListForUser(userID int64) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, snapshot(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountLiveSessions returns the number of sessions physically present,
// including any expired entries the sweeper has not reached yet.
func (s *Store) CountLiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CountDistinctUsers returns how many distinct users hold at least one
// session.
func (s *Store) CountDistinctUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make(map[int64]struct{}, len(s.sessions))
	for _, sess := range s.sessions {
		users[sess.UserID] = struct{}{}
	}
	return len(users)
}

// SweepExpired deletes every entry past its deadline and returns the count.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	swept := 0
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			swept++
		}
	}
	return swept
}

// StartSweeper runs SweepExpired on a fixed interval until Close is
// called. A panic inside one pass is logged and the next tick proceeds.
func (s *Store) StartSweeper(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopSweep:
				return
			case <-ticker.C:
				s.runSweep()
			}
		}
	}()
}

func (s *Store) runSweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session sweep panicked", zap.Any("panic", r))
		}
	}()

	if swept := s.SweepExpired(); swept > 0 {
		s.logger.Info("expired sessions swept", zap.Int("count", swept))
	}
}

// Close stops the sweeper and waits for it to exit. Session state is
// memory-only, so there is nothing to flush.
func (s *Store) Close() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
	s.wg.Wait()
}

func snapshot(sess *Session) *Session {
	clone := *sess
	return &clone
}
