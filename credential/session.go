package credential

import (
	"sort"
	"time"
)

// ActiveSession is the listing view of a session. DisplayID is a
// non-secret handle for revoking the session from a UI; it is not
// guaranteed unique.
type ActiveSession struct {
	DisplayID         int32     `json:"display_id"`
	CreatedAt         time.Time `json:"created_at"`
	IdleExpiresAt     time.Time `json:"idle_expires_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
}

// expired reports whether the session is dead at t, where t already
// includes any clock skew allowance.
func (s *ActiveSession) expired(t time.Time) bool {
	return t.After(s.IdleExpiresAt) || t.After(s.AbsoluteExpiresAt)
}

type sessionLedger struct {
	ledger[*ActiveSession]
}

// touch validates the session stored under k at now. A live session has
// its idle expiry pushed to now+idle; an expired one is evicted. The
// absolute expiry never moves.
func (l *sessionLedger) touch(k StorageKey, now time.Time, skew, idle time.Duration) error {
	s, ok := l.get(k)
	if !ok {
		return ErrNotFound
	}
	if s.expired(now.Add(skew)) {
		l.remove(k)
		return ErrExpired
	}
	s.IdleExpiresAt = now.Add(idle)
	return nil
}

// prune evicts every session expired at t.
func (l *sessionLedger) prune(t time.Time) int {
	return l.removeFunc(false, func(_ StorageKey, s *ActiveSession) bool {
		return s.expired(t)
	})
}

func (l *sessionLedger) removeDisplayID(id int32) bool {
	return l.removeFunc(true, func(_ StorageKey, s *ActiveSession) bool {
		return s.DisplayID == id
	}) > 0
}

// removeExcept drops every session but the one stored under keep.
func (l *sessionLedger) removeExcept(keep StorageKey) int {
	return l.removeFunc(false, func(k StorageKey, _ *ActiveSession) bool {
		return k != keep
	})
}

// snapshot returns copies ordered by creation time.
func (l *sessionLedger) snapshot() []ActiveSession {
	out := make([]ActiveSession, 0, l.len())
	for _, s := range l.values() {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
