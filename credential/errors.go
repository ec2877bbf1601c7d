package credential

import "errors"

var (
	// ErrUserNotFound indicates no user exists for the given id or username.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotFound indicates the user exists but the session, API key or
	// permission addressed does not.
	ErrNotFound = errors.New("not found")
	// ErrMalformed indicates a token could not be parsed.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired indicates a session is past its idle or absolute expiry.
	ErrExpired = errors.New("session expired")
	// ErrUnauthenticated indicates the presented credentials did not prove identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized indicates identity was proven but the permission is not held.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict indicates the username is already taken.
	ErrConflict = errors.New("username already exists")
	// ErrInvalidArgument indicates a caller-supplied value was rejected.
	ErrInvalidArgument = errors.New("invalid argument")
)
