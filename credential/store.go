package credential

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmcleod/gatekeeper/internal/util"
)

// dummyPassword is hashed once per store so that credential checks for
// unknown usernames cost the same as checks for known ones.
const dummyPassword = "gatekeeper-dummy-password"

// Store is the in-memory credential authority. It owns every user record
// and answers create, authenticate, authorize, revoke and list requests.
// All methods are safe for concurrent use.
//
// Locking: mu guards users and names. Each record has its own mutex.
// When both are needed, mu is acquired first. Password verification
// runs outside both locks on a copied hash.
type Store struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*userRecord
	names map[string]uuid.UUID

	hasher          PasswordHasher
	sessionCodec    *TokenCodec
	apiKeyCodec     *TokenCodec
	idleTimeout     time.Duration
	absoluteTimeout time.Duration
	clockSkew       time.Duration
	sweepInterval   time.Duration
	defaults        Permissions
	now             func() time.Time
	displayIDs      *util.DisplayIDSource
	logger          *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewStore returns an empty store. Without options it uses the default
// hasher, 16-byte identity-keyed session tokens, 12-byte SHA-256-keyed
// API keys, a 20 minute idle and 24 hour absolute session lifetime, and
// grants new users cam:login.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		users:           make(map[uuid.UUID]*userRecord),
		names:           make(map[string]uuid.UUID),
		idleTimeout:     DefaultSessionIdleTimeout,
		absoluteTimeout: DefaultSessionAbsoluteTimeout,
		sweepInterval:   DefaultSweepInterval,
		defaults:        DefaultPermissions(),
		now:             time.Now,
		displayIDs:      util.NewDisplayIDSource(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idleTimeout <= 0 || s.absoluteTimeout <= 0 {
		return nil, fmt.Errorf("session timeouts must be positive: %w", ErrInvalidArgument)
	}
	if s.sweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive: %w", ErrInvalidArgument)
	}
	if s.clockSkew < 0 {
		return nil, fmt.Errorf("clock skew %s must not be negative: %w", s.clockSkew, ErrInvalidArgument)
	}
	if s.hasher == nil {
		h, err := NewKDFHasher(DefaultHasherConfig())
		if err != nil {
			return nil, err
		}
		s.hasher = h
	}
	if s.sessionCodec == nil {
		s.sessionCodec = mustTokenCodec(DefaultSessionSecretLen, IdentityKey)
	}
	if s.apiKeyCodec == nil {
		s.apiKeyCodec = mustTokenCodec(DefaultAPIKeySecretLen, SHA256Key)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.logger = s.logger.With("component", "credential")
	return s, nil
}

// CreateUser registers username with password and the default
// permissions. It returns ErrConflict if the case-folded username is
// already taken.
func (s *Store) CreateUser(username, password string) (uuid.UUID, error) {
	key, err := usernameKey(username)
	if err != nil {
		return uuid.Nil, err
	}
	if password == "" {
		return uuid.Nil, fmt.Errorf("password is required: %w", ErrInvalidArgument)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.names[key]; taken {
		return uuid.Nil, fmt.Errorf("creating user %q: %w", username, ErrConflict)
	}
	id, err := s.newUserIDLocked()
	if err != nil {
		return uuid.Nil, err
	}
	s.names[key] = id
	s.users[id] = &userRecord{
		id:           id,
		username:     username,
		passwordHash: hash,
		permissions:  s.defaults.Duplicate(),
	}
	s.logger.Info("user created", "user_id", id.String())
	return id, nil
}

func (s *Store) newUserIDLocked() (uuid.UUID, error) {
	for {
		id, err := uuid.NewRandom()
		if err != nil {
			return uuid.Nil, fmt.Errorf("generating user id: %w", err)
		}
		if _, exists := s.users[id]; !exists {
			return id, nil
		}
	}
}

// DeleteUser removes the user along with every session and API key.
func (s *Store) DeleteUser(userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	key, _ := usernameKey(rec.username)
	delete(s.names, key)
	delete(s.users, userID)
	rec.deleted = true
	rec.passwordHash = ""
	sessions := rec.sessions.clear()
	keys := rec.apiKeys.clear()
	s.logger.Info("user deleted", "user_id", userID.String(), "sessions", sessions, "api_keys", keys)
	return nil
}

// RenameUser changes the username. Renaming to a different case of the
// current name is allowed.
func (s *Store) RenameUser(userID uuid.UUID, username string) error {
	key, err := usernameKey(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if owner, taken := s.names[key]; taken && owner != userID {
		return fmt.Errorf("renaming user to %q: %w", username, ErrConflict)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	oldKey, _ := usernameKey(rec.username)
	delete(s.names, oldKey)
	s.names[key] = userID
	rec.username = username
	return nil
}

// ChangePassword replaces the user's password hash. Existing sessions and
// API keys are left alone.
func (s *Store) ChangePassword(userID uuid.UUID, password string) error {
	if password == "" {
		return fmt.Errorf("password is required: %w", ErrInvalidArgument)
	}
	rec, err := s.record(userID)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return ErrUserNotFound
	}
	rec.passwordHash = hash
	return nil
}

// AuthenticateCredentials checks a username and password. The username
// is matched case-insensitively; the result carries the username as
// registered.
func (s *Store) AuthenticateCredentials(username, password string) AuthorizationResult {
	res, _ := s.checkCredentials(username, password)
	return res
}

// AuthorizeCredentials is AuthenticateCredentials followed by a check
// that the user holds p.
func (s *Store) AuthorizeCredentials(username, password string, p Permission) AuthorizationResult {
	res, rec := s.checkCredentials(username, password)
	if !res.IsAuthenticated() {
		return res
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return Failed()
	}
	return res.authorize(p, rec.permissions)
}

func (s *Store) checkCredentials(username, password string) (AuthorizationResult, *userRecord) {
	rec := s.recordByName(username)
	if rec == nil {
		s.hasher.Verify(password, s.dummy())
		return Failed(), nil
	}
	name, hash, live := rec.identity()
	if !live {
		s.hasher.Verify(password, s.dummy())
		return Failed(), nil
	}
	if !s.hasher.Verify(password, hash) {
		return Failed(), nil
	}
	return Authenticated(rec.id, name), rec
}

func (s *Store) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Warn("hashing dummy password", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// GetUserIDFromUsername resolves a username case-insensitively.
func (s *Store) GetUserIDFromUsername(username string) (uuid.UUID, error) {
	key, err := usernameKey(username)
	if err != nil {
		return uuid.Nil, ErrUserNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.names[key]
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}
	return id, nil
}

// GetUsernameFromUserID returns the username as registered.
func (s *Store) GetUsernameFromUserID(userID uuid.UUID) (string, error) {
	rec, err := s.record(userID)
	if err != nil {
		return "", err
	}
	name, _, live := rec.identity()
	if !live {
		return "", ErrUserNotFound
	}
	return name, nil
}

// GetPermissions returns a copy of the user's permissions.
func (s *Store) GetPermissions(userID uuid.UUID) (Permissions, error) {
	var out Permissions
	err := s.withRecord(userID, func(rec *userRecord) error {
		out = rec.permissions.Duplicate()
		return nil
	})
	return out, err
}

// GrantPermission adds p to the user's permissions. Granting a held
// permission is a no-op.
func (s *Store) GrantPermission(userID uuid.UUID, p Permission) error {
	if !p.valid() {
		return fmt.Errorf("granting %q: %w", p, ErrInvalidArgument)
	}
	return s.withRecord(userID, func(rec *userRecord) error {
		rec.permissions.Add(p)
		return nil
	})
}

// RevokePermission removes p from the user's permissions. API keys keep
// their own copy but stop authorizing p because the owner no longer
// holds it.
func (s *Store) RevokePermission(userID uuid.UUID, p Permission) error {
	return s.withRecord(userID, func(rec *userRecord) error {
		if !rec.permissions.Remove(p) {
			return fmt.Errorf("revoking %q: %w", p, ErrNotFound)
		}
		return nil
	})
}

// Stats is a point-in-time count of the store's contents.
type Stats struct {
	Users    int `json:"users"`
	Sessions int `json:"sessions"`
	APIKeys  int `json:"api_keys"`
}

func (s *Store) Stats() Stats {
	var st Stats
	for _, rec := range s.records() {
		rec.mu.Lock()
		if !rec.deleted {
			st.Users++
			st.Sessions += rec.sessions.len()
			st.APIKeys += rec.apiKeys.len()
		}
		rec.mu.Unlock()
	}
	return st
}

func (s *Store) record(userID uuid.UUID) (*userRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return rec, nil
}

func (s *Store) recordByName(username string) *userRecord {
	key, err := usernameKey(username)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.names[key]
	if !ok {
		return nil
	}
	return s.users[id]
}

func (s *Store) records() []*userRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*userRecord, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec)
	}
	return out
}

// withRecord runs fn with the user's record locked.
func (s *Store) withRecord(userID uuid.UUID, fn func(*userRecord) error) error {
	rec, err := s.record(userID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return ErrUserNotFound
	}
	return fn(rec)
}

func usernameKey(username string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", fmt.Errorf("username is required: %w", ErrInvalidArgument)
	}
	return util.FoldUsername(username), nil
}
