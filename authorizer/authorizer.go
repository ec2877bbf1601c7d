// Package authorizer decides whether a request's credential material
// proves identity and, optionally, a permission. Each Authorizer variant
// checks one kind of material against a Backend; Chain composes two.
package authorizer

import (
	"github.com/jmcleod/gatekeeper/credential"
)

// Kind names the credential an Authorizer checks.
type Kind string

const (
	KindCredential    Kind = "credential"
	KindSession       Kind = "session"
	KindStrictSession Kind = "strict_session"
	KindAPIKey        Kind = "api_key"
	KindChain         Kind = "chain"
)

// Backend is the credential authority the authorizers consult.
// *credential.Store satisfies it.
type Backend interface {
	AuthenticateCredentials(username, password string) credential.AuthorizationResult
	AuthorizeCredentials(username, password string, p credential.Permission) credential.AuthorizationResult
	AuthenticateSession(token string) credential.AuthorizationResult
	AuthorizeSession(token string, p credential.Permission) credential.AuthorizationResult
	AuthenticateStrictSession(token, password string) credential.AuthorizationResult
	AuthorizeStrictSession(token, password string, p credential.Permission) credential.AuthorizationResult
	AuthenticateAPIKey(token string) credential.AuthorizationResult
	AuthorizeAPIKey(token string, p credential.Permission) credential.AuthorizationResult
}

var _ Backend = (*credential.Store)(nil)

// Authorizer checks request material.
type Authorizer interface {
	Kind() Kind
	Authenticate(m Material) Outcome
	Authorize(m Material, p credential.Permission) Outcome
}

// Outcome is an authorization result plus the facts a transport layer
// needs to act on it.
type Outcome struct {
	Result credential.AuthorizationResult
	// Kind is the variant that produced Result.
	Kind Kind
	// SessionToken is set when a session authenticated the request.
	SessionToken string
	// APIKey is set when an API key authenticated the request.
	APIKey string
}

func failed(k Kind) Outcome {
	return Outcome{Result: credential.Failed(), Kind: k}
}

type credentialAuthorizer struct{ b Backend }

// Credential checks X-Auth-User and X-Auth-Pass.
func Credential(b Backend) Authorizer { return credentialAuthorizer{b} }

func (credentialAuthorizer) Kind() Kind { return KindCredential }

func (a credentialAuthorizer) Authenticate(m Material) Outcome {
	if m.Username == "" || m.Password == "" {
		return failed(KindCredential)
	}
	return Outcome{Result: a.b.AuthenticateCredentials(m.Username, m.Password), Kind: KindCredential}
}

func (a credentialAuthorizer) Authorize(m Material, p credential.Permission) Outcome {
	if m.Username == "" || m.Password == "" {
		return failed(KindCredential)
	}
	return Outcome{Result: a.b.AuthorizeCredentials(m.Username, m.Password, p), Kind: KindCredential}
}

type sessionAuthorizer struct{ b Backend }

// Session checks the session cookie.
func Session(b Backend) Authorizer { return sessionAuthorizer{b} }

func (sessionAuthorizer) Kind() Kind { return KindSession }

func (a sessionAuthorizer) Authenticate(m Material) Outcome {
	if m.SessionToken == "" {
		return failed(KindSession)
	}
	return sessionOutcome(KindSession, m, a.b.AuthenticateSession(m.SessionToken))
}

func (a sessionAuthorizer) Authorize(m Material, p credential.Permission) Outcome {
	if m.SessionToken == "" {
		return failed(KindSession)
	}
	return sessionOutcome(KindSession, m, a.b.AuthorizeSession(m.SessionToken, p))
}

func sessionOutcome(k Kind, m Material, res credential.AuthorizationResult) Outcome {
	o := Outcome{Result: res, Kind: k}
	if res.IsAuthenticated() {
		o.SessionToken = m.SessionToken
	}
	return o
}

type strictSessionAuthorizer struct {
	b    Backend
	csrf *CSRFSigner
}

// StrictSession checks the session cookie, the X-Auth-CSRF token bound
// to it, and the password in X-Auth-Pass. A CSRF mismatch fails before
// the backend is consulted, so it never costs the caller their session.
func StrictSession(b Backend, csrf *CSRFSigner) Authorizer {
	return strictSessionAuthorizer{b: b, csrf: csrf}
}

func (strictSessionAuthorizer) Kind() Kind { return KindStrictSession }

func (a strictSessionAuthorizer) ready(m Material) bool {
	return m.SessionToken != "" && m.Password != "" && a.csrf.Verify(m.SessionToken, m.CSRFToken)
}

func (a strictSessionAuthorizer) Authenticate(m Material) Outcome {
	if !a.ready(m) {
		return failed(KindStrictSession)
	}
	return sessionOutcome(KindStrictSession, m, a.b.AuthenticateStrictSession(m.SessionToken, m.Password))
}

func (a strictSessionAuthorizer) Authorize(m Material, p credential.Permission) Outcome {
	if !a.ready(m) {
		return failed(KindStrictSession)
	}
	return sessionOutcome(KindStrictSession, m, a.b.AuthorizeStrictSession(m.SessionToken, m.Password, p))
}

type apiKeyAuthorizer struct{ b Backend }

// APIKey checks X-Api-Key.
func APIKey(b Backend) Authorizer { return apiKeyAuthorizer{b} }

func (apiKeyAuthorizer) Kind() Kind { return KindAPIKey }

func (a apiKeyAuthorizer) Authenticate(m Material) Outcome {
	if m.APIKey == "" {
		return failed(KindAPIKey)
	}
	return apiKeyOutcome(m, a.b.AuthenticateAPIKey(m.APIKey))
}

func (a apiKeyAuthorizer) Authorize(m Material, p credential.Permission) Outcome {
	if m.APIKey == "" {
		return failed(KindAPIKey)
	}
	return apiKeyOutcome(m, a.b.AuthorizeAPIKey(m.APIKey, p))
}

func apiKeyOutcome(m Material, res credential.AuthorizationResult) Outcome {
	o := Outcome{Result: res, Kind: KindAPIKey}
	if res.IsAuthenticated() {
		o.APIKey = m.APIKey
	}
	return o
}

type chain struct {
	primary, secondary Authorizer
}

// Chain tries primary first and returns its outcome if it fully
// succeeds. Otherwise secondary is tried and the stronger of the two
// outcomes is returned, preferring primary on a tie.
func Chain(primary, secondary Authorizer) Authorizer {
	return chain{primary: primary, secondary: secondary}
}

// Standard accepts a session cookie or, failing that, an API key.
func Standard(b Backend) Authorizer {
	return Chain(Session(b), APIKey(b))
}

func (chain) Kind() Kind { return KindChain }

func (c chain) Authenticate(m Material) Outcome {
	first := c.primary.Authenticate(m)
	if first.Result.IsAuthenticated() {
		return first
	}
	return stronger(first, c.secondary.Authenticate(m))
}

func (c chain) Authorize(m Material, p credential.Permission) Outcome {
	first := c.primary.Authorize(m, p)
	if first.Result.IsAuthorized() {
		return first
	}
	return stronger(first, c.secondary.Authorize(m, p))
}

func stronger(a, b Outcome) Outcome {
	if b.Result.State() > a.Result.State() {
		return b
	}
	return a
}
