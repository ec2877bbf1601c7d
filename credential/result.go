package credential

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AuthState is the outcome of an authenticate or authorize call.
type AuthState int

const (
	// StateFailed means no identity was established.
	StateFailed AuthState = iota
	// StateAuthenticated means identity was confirmed and no permission asserted.
	StateAuthenticated
	// StateAuthorized means identity was confirmed and the permission is held.
	StateAuthorized
)

func (s AuthState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAuthorized:
		return "authorized"
	default:
		return "failed"
	}
}

// AuthorizationResult is an immutable tri-state authorization outcome.
// A Failed result carries no identity; an Authorized result carries the
// identity plus the permission that matched.
type AuthorizationResult struct {
	state      AuthState
	userID     uuid.UUID
	username   string
	permission Permission
}

func Failed() AuthorizationResult {
	return AuthorizationResult{}
}

func Authenticated(userID uuid.UUID, username string) AuthorizationResult {
	return AuthorizationResult{state: StateAuthenticated, userID: userID, username: username}
}

func Authorized(userID uuid.UUID, username string, p Permission) AuthorizationResult {
	return AuthorizationResult{state: StateAuthorized, userID: userID, username: username, permission: p}
}

func (r AuthorizationResult) State() AuthState { return r.state }

// IsAuthenticated is true for both Authenticated and Authorized results.
func (r AuthorizationResult) IsAuthenticated() bool { return r.state >= StateAuthenticated }

func (r AuthorizationResult) IsAuthorized() bool { return r.state == StateAuthorized }

// UserID returns uuid.Nil for a Failed result.
func (r AuthorizationResult) UserID() uuid.UUID { return r.userID }

func (r AuthorizationResult) Username() string { return r.username }

// Permission returns the matched permission of an Authorized result.
func (r AuthorizationResult) Permission() (Permission, bool) {
	return r.permission, r.state == StateAuthorized
}

// Err maps the result onto the error taxonomy: nil when authorized (or
// authenticated, if no permission was requested), ErrUnauthorized when
// only identity holds, and ErrUnauthenticated otherwise.
func (r AuthorizationResult) Err(permissionRequested bool) error {
	switch {
	case r.state == StateAuthorized:
		return nil
	case r.state == StateAuthenticated && !permissionRequested:
		return nil
	case r.state == StateAuthenticated:
		return ErrUnauthorized
	default:
		return ErrUnauthenticated
	}
}

// authorize upgrades an Authenticated result to Authorized when held
// contains p. Failed results pass through unchanged.
func (r AuthorizationResult) authorize(p Permission, held ...Permissions) AuthorizationResult {
	if r.state != StateAuthenticated {
		return r
	}
	for _, s := range held {
		if !s.Contains(p) {
			return r
		}
	}
	return Authorized(r.userID, r.username, p)
}

type resultJSON struct {
	State      string      `json:"state"`
	UserID     *uuid.UUID  `json:"user_id,omitempty"`
	Username   string      `json:"username,omitempty"`
	Permission *Permission `json:"permission,omitempty"`
}

func (r AuthorizationResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{State: r.state.String()}
	if r.IsAuthenticated() {
		id := r.userID
		out.UserID = &id
		out.Username = r.username
	}
	if p, ok := r.Permission(); ok {
		out.Permission = &p
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form MarshalJSON writes. Anything that is not
// a complete Authenticated or Authorized result is rejected.
func (r *AuthorizationResult) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.State {
	case StateFailed.String():
		*r = Failed()
		return nil
	case StateAuthenticated.String(), StateAuthorized.String():
	default:
		return fmt.Errorf("unknown result state %q: %w", in.State, ErrMalformed)
	}
	if in.UserID == nil || *in.UserID == uuid.Nil {
		return fmt.Errorf("%s result without user id: %w", in.State, ErrMalformed)
	}
	if in.State == StateAuthenticated.String() {
		*r = Authenticated(*in.UserID, in.Username)
		return nil
	}
	if in.Permission == nil || !in.Permission.valid() {
		return fmt.Errorf("authorized result without permission: %w", ErrMalformed)
	}
	*r = Authorized(*in.UserID, in.Username, *in.Permission)
	return nil
}
