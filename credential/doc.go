// Package credential implements an in-memory credential access store.
//
// A Store creates users, verifies passwords, issues opaque bearer tokens
// for sessions and API keys, and answers tri-state authorization
// queries: Failed, Authenticated, or Authorized for a (service,
// permission) pair.
//
// Tokens are base64(userID || secret). Only a storage key derived from
// the secret is retained, keyed inside the owning user's record, so a
// token resolves in O(1) without scanning. Every authenticate and
// authorize call collapses unknown, malformed, expired and wrong-secret
// inputs into the same Failed result.
//
// All Store methods are safe for concurrent use. The user maps are
// guarded by a store-level lock and each user's record, including its
// sessions and API keys, by a lock of its own.
package credential
