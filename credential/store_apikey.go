package credential

import (
	"fmt"

	"github.com/google/uuid"
)

// maxMintAttempts bounds how many tokens CreateSession and CreateAPIKey
// mint looking for a storage key or display id the user does not hold.
const maxMintAttempts = 32

// CreateAPIKey mints an API key for the user scoped to perms. The key
// stores its own copy of perms; it authorizes a permission only while
// the owner also holds it. The returned APIKey is the listing view.
func (s *Store) CreateAPIKey(userID uuid.UUID, perms Permissions) (string, APIKey, error) {
	rec, err := s.record(userID)
	if err != nil {
		return "", APIKey{}, err
	}
	scoped := perms.Duplicate()
	for range maxMintAttempts {
		token, key, err := s.apiKeyCodec.Generate(userID)
		if err != nil {
			return "", APIKey{}, fmt.Errorf("generating api key: %w", err)
		}
		now := s.now()
		k := &APIKey{
			DisplayID:   apiKeyDisplayID(token),
			CreatedAt:   now,
			LastUsedAt:  now,
			Permissions: scoped,
		}
		inserted, err := lockedInsert(rec, func() bool {
			if rec.apiKeys.hasDisplayID(k.DisplayID) {
				return false
			}
			return rec.apiKeys.insert(key, k)
		})
		if err != nil {
			return "", APIKey{}, err
		}
		if inserted {
			s.logger.Info("api key created", "user_id", userID.String(), "display_id", k.DisplayID)
			return token, k.clone(), nil
		}
	}
	return "", APIKey{}, fmt.Errorf("allocating api key display id: %w", ErrConflict)
}

// AuthenticateAPIKey validates an API key and records its use.
func (s *Store) AuthenticateAPIKey(token string) AuthorizationResult {
	return s.checkAPIKey(token, nil)
}

// AuthorizeAPIKey validates an API key and checks that both the key and
// its owner hold p.
func (s *Store) AuthorizeAPIKey(token string, p Permission) AuthorizationResult {
	return s.checkAPIKey(token, &p)
}

func (s *Store) checkAPIKey(token string, p *Permission) AuthorizationResult {
	userID, key, err := s.apiKeyCodec.Parse(token)
	if err != nil {
		return Failed()
	}
	rec, err := s.record(userID)
	if err != nil {
		return Failed()
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return Failed()
	}
	k, ok := rec.apiKeys.get(key)
	if !ok {
		return Failed()
	}
	k.LastUsedAt = s.now()
	res := Authenticated(rec.id, rec.username)
	if p != nil {
		res = res.authorize(*p, k.Permissions, rec.permissions)
	}
	return res
}

// RevokeAPIKeyPermission removes p from the key with the given display
// id. The owner's own permissions are untouched.
func (s *Store) RevokeAPIKeyPermission(userID uuid.UUID, displayID string, p Permission) error {
	return s.withRecord(userID, func(rec *userRecord) error {
		k, ok := rec.apiKeys.byDisplayID(displayID)
		if !ok {
			return fmt.Errorf("api key %q: %w", displayID, ErrNotFound)
		}
		if !k.Permissions.Remove(p) {
			return fmt.Errorf("api key %q permission %q: %w", displayID, p, ErrNotFound)
		}
		return nil
	})
}

// GrantAPIKeyPermission adds p to the key with the given display id. The
// owner must currently hold p.
func (s *Store) GrantAPIKeyPermission(userID uuid.UUID, displayID string, p Permission) error {
	if !p.valid() {
		return fmt.Errorf("granting %q: %w", p, ErrInvalidArgument)
	}
	return s.withRecord(userID, func(rec *userRecord) error {
		k, ok := rec.apiKeys.byDisplayID(displayID)
		if !ok {
			return fmt.Errorf("api key %q: %w", displayID, ErrNotFound)
		}
		if !rec.permissions.Contains(p) {
			return fmt.Errorf("granting %q to api key: %w", p, ErrUnauthorized)
		}
		k.Permissions.Add(p)
		return nil
	})
}

// DeleteAPIKey removes the key with the given display id.
func (s *Store) DeleteAPIKey(userID uuid.UUID, displayID string) error {
	err := s.withRecord(userID, func(rec *userRecord) error {
		if !rec.apiKeys.removeDisplayID(displayID) {
			return fmt.Errorf("api key %q: %w", displayID, ErrNotFound)
		}
		return nil
	})
	if err == nil {
		s.logger.Info("api key deleted", "user_id", userID.String(), "display_id", displayID)
	}
	return err
}

// ListAPIKeys returns copies of the user's API keys, oldest first.
func (s *Store) ListAPIKeys(userID uuid.UUID) ([]APIKey, error) {
	var out []APIKey
	err := s.withRecord(userID, func(rec *userRecord) error {
		out = rec.apiKeys.snapshot()
		return nil
	})
	return out, err
}
