package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession mints a session token for the user.
func (s *Store) CreateSession(userID uuid.UUID) (string, error) {
	rec, err := s.record(userID)
	if err != nil {
		return "", err
	}
	for range maxMintAttempts {
		token, key, err := s.sessionCodec.Generate(userID)
		if err != nil {
			return "", fmt.Errorf("generating session token: %w", err)
		}
		now := s.now()
		sess := &ActiveSession{
			DisplayID:         s.displayIDs.Next(),
			CreatedAt:         now,
			IdleExpiresAt:     now.Add(s.idleTimeout),
			AbsoluteExpiresAt: now.Add(s.absoluteTimeout),
		}
		inserted, err := lockedInsert(rec, func() bool { return rec.sessions.insert(key, sess) })
		if err != nil {
			return "", err
		}
		if inserted {
			return token, nil
		}
	}
	return "", fmt.Errorf("allocating session key: %w", ErrConflict)
}

func lockedInsert(rec *userRecord, insert func() bool) (bool, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return false, ErrUserNotFound
	}
	return insert(), nil
}

// AuthenticateSession validates a session token and slides its idle
// expiry. An expired session is evicted.
func (s *Store) AuthenticateSession(token string) AuthorizationResult {
	return s.checkSession(token, nil)
}

// AuthorizeSession is AuthenticateSession followed by a check that the
// session's owner holds p.
func (s *Store) AuthorizeSession(token string, p Permission) AuthorizationResult {
	return s.checkSession(token, &p)
}

func (s *Store) checkSession(token string, p *Permission) AuthorizationResult {
	rec, key, ok := s.sessionRecord(token)
	if !ok {
		return Failed()
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return Failed()
	}
	if err := rec.sessions.touch(key, s.now(), s.clockSkew, s.idleTimeout); err != nil {
		return Failed()
	}
	res := Authenticated(rec.id, rec.username)
	if p != nil {
		res = res.authorize(*p, rec.permissions)
	}
	return res
}

// AuthenticateStrictSession validates a session and additionally
// verifies the owner's password. A wrong password revokes the session.
func (s *Store) AuthenticateStrictSession(token, password string) AuthorizationResult {
	return s.checkStrictSession(token, password, nil)
}

// AuthorizeStrictSession is AuthenticateStrictSession followed by a check
// that the owner holds p.
func (s *Store) AuthorizeStrictSession(token, password string, p Permission) AuthorizationResult {
	return s.checkStrictSession(token, password, &p)
}

func (s *Store) checkStrictSession(token, password string, p *Permission) AuthorizationResult {
	rec, key, ok := s.sessionRecord(token)
	if !ok {
		return Failed()
	}

	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return Failed()
	}
	if err := rec.sessions.touch(key, s.now(), s.clockSkew, s.idleTimeout); err != nil {
		rec.mu.Unlock()
		return Failed()
	}
	name, hash := rec.username, rec.passwordHash
	rec.mu.Unlock()

	if !s.hasher.Verify(password, hash) {
		rec.mu.Lock()
		rec.sessions.remove(key)
		rec.mu.Unlock()
		s.logger.Info("session revoked after failed password check", "user_id", rec.id.String())
		return Failed()
	}

	res := Authenticated(rec.id, name)
	if p == nil {
		return res
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return Failed()
	}
	return res.authorize(*p, rec.permissions)
}

func (s *Store) sessionRecord(token string) (*userRecord, StorageKey, bool) {
	userID, key, err := s.sessionCodec.Parse(token)
	if err != nil {
		return nil, "", false
	}
	rec, err := s.record(userID)
	if err != nil {
		return nil, "", false
	}
	return rec, key, true
}

// parseSession resolves a token to its owner for revocation.
func (s *Store) parseSession(token string) (*userRecord, StorageKey, error) {
	userID, key, err := s.sessionCodec.Parse(token)
	if err != nil {
		return nil, "", err
	}
	rec, err := s.record(userID)
	if err != nil {
		return nil, "", err
	}
	return rec, key, nil
}

// RevokeSession removes the session identified by token.
func (s *Store) RevokeSession(token string) error {
	rec, key, err := s.parseSession(token)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return ErrUserNotFound
	}
	if !rec.sessions.remove(key) {
		return ErrNotFound
	}
	return nil
}

// RevokeSessionByDisplayID removes one of the user's sessions by its
// display id. When several sessions share the id only one is removed.
func (s *Store) RevokeSessionByDisplayID(userID uuid.UUID, displayID int32) error {
	return s.withRecord(userID, func(rec *userRecord) error {
		if !rec.sessions.removeDisplayID(displayID) {
			return ErrNotFound
		}
		return nil
	})
}

// RevokeAllSessions removes every session the user holds and returns how
// many there were.
func (s *Store) RevokeAllSessions(userID uuid.UUID) (int, error) {
	var n int
	err := s.withRecord(userID, func(rec *userRecord) error {
		n = rec.sessions.clear()
		return nil
	})
	return n, err
}

// RevokeOtherSessions removes every session of the token's owner except
// the one token identifies.
func (s *Store) RevokeOtherSessions(token string) (int, error) {
	rec, key, err := s.parseSession(token)
	if err != nil {
		return 0, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return 0, ErrUserNotFound
	}
	if _, ok := rec.sessions.get(key); !ok {
		return 0, ErrNotFound
	}
	return rec.sessions.removeExcept(key), nil
}

// ListSessions returns the user's live sessions, oldest first. Expired
// sessions are evicted before listing.
func (s *Store) ListSessions(userID uuid.UUID) ([]ActiveSession, error) {
	var out []ActiveSession
	err := s.withRecord(userID, func(rec *userRecord) error {
		rec.sessions.prune(s.now().Add(s.clockSkew))
		out = rec.sessions.snapshot()
		return nil
	})
	return out, err
}

// Sweep evicts expired sessions across all users and returns the number
// removed.
func (s *Store) Sweep() int {
	t := s.now().Add(s.clockSkew)
	n := 0
	for _, rec := range s.records() {
		rec.mu.Lock()
		if !rec.deleted {
			n += rec.sessions.prune(t)
		}
		rec.mu.Unlock()
	}
	if n > 0 {
		s.logger.Debug("swept expired sessions", "evicted", n)
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done. A
// non-positive interval uses the store's configured sweep interval.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.sweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
