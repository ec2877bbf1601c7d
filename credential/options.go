package credential

import (
	"log/slog"
	"time"
)

const (
	DefaultSessionIdleTimeout     = 20 * time.Minute
	DefaultSessionAbsoluteTimeout = 24 * time.Hour
	DefaultSweepInterval          = 10 * time.Minute
	DefaultSessionSecretLen       = 16
	DefaultAPIKeySecretLen        = 12
)

// DefaultPermissions is the set granted to every new user unless
// WithDefaultPermissions overrides it.
func DefaultPermissions() Permissions {
	return NewPermissions(Permission{Service: "cam", Name: "login"})
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. If not set, a default JSON
// logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock replaces time.Now as the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithSessionIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.idleTimeout = d
	}
}

func WithSessionAbsoluteTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.absoluteTimeout = d
	}
}

// WithClockSkew is added to the current time before expiry checks, so a
// positive skew expires sessions early.
func WithClockSkew(d time.Duration) Option {
	return func(s *Store) {
		s.clockSkew = d
	}
}

func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *Store) {
		s.hasher = h
	}
}

// WithSessionCodec sets the codec used to mint and parse session tokens.
func WithSessionCodec(c *TokenCodec) Option {
	return func(s *Store) {
		s.sessionCodec = c
	}
}

// WithAPIKeyCodec sets the codec used to mint and parse API keys.
func WithAPIKeyCodec(c *TokenCodec) Option {
	return func(s *Store) {
		s.apiKeyCodec = c
	}
}

// WithDefaultPermissions sets the permissions each new user starts with.
// Every user receives an independent copy.
func WithDefaultPermissions(p Permissions) Option {
	return func(s *Store) {
		s.defaults = p.Duplicate()
	}
}

// WithSweepInterval sets the interval RunSweeper uses when called with a
// non-positive interval.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		s.sweepInterval = d
	}
}
