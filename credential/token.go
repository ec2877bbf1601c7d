package credential

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/jmcleod/gatekeeper/internal/util"
)

const userIDLen = 16

// StorageKey is the value a session or API key is stored under. It is
// derived from the token's secret by a KeyHashFunc and never reversed.
type StorageKey string

// KeyHashFunc derives a storage key from a token secret.
type KeyHashFunc func(secret []byte) []byte

// IdentityKey stores the secret as-is.
func IdentityKey(secret []byte) []byte {
	return util.CopyBytes(secret)
}

func SHA256Key(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	return sum[:]
}

func BLAKE3Key(secret []byte) []byte {
	sum := blake3.Sum256(secret)
	return sum[:]
}

// KeyHashByName resolves the names accepted in configuration:
// "identity" (or ""), "sha256" and "blake3".
func KeyHashByName(name string) (KeyHashFunc, error) {
	switch name {
	case "", "identity":
		return IdentityKey, nil
	case "sha256":
		return SHA256Key, nil
	case "blake3":
		return BLAKE3Key, nil
	default:
		return nil, fmt.Errorf("unknown key hash %q: %w", name, ErrInvalidArgument)
	}
}

// TokenCodec mints and parses opaque bearer tokens of the form
// base64(userID || secret).
type TokenCodec struct {
	secretLen int
	hash      KeyHashFunc
}

// MinSecretLen is the smallest secret NewTokenCodec accepts. Shorter
// secrets collide often enough to exhaust a user's key space.
const MinSecretLen = 8

// NewTokenCodec returns a codec drawing secretLen random bytes per token.
// A nil hash means IdentityKey.
func NewTokenCodec(secretLen int, hash KeyHashFunc) (*TokenCodec, error) {
	if secretLen < MinSecretLen {
		return nil, fmt.Errorf("secret length %d below minimum %d: %w", secretLen, MinSecretLen, ErrInvalidArgument)
	}
	if hash == nil {
		hash = IdentityKey
	}
	return &TokenCodec{secretLen: secretLen, hash: hash}, nil
}

func mustTokenCodec(secretLen int, hash KeyHashFunc) *TokenCodec {
	c, err := NewTokenCodec(secretLen, hash)
	if err != nil {
		panic(err)
	}
	return c
}

// SecretLen is the number of random bytes in each token.
func (c *TokenCodec) SecretLen() int { return c.secretLen }

// Generate mints a token for userID and returns it with its storage key.
func (c *TokenCodec) Generate(userID uuid.UUID) (string, StorageKey, error) {
	secret, err := util.RandomBytes(c.secretLen)
	if err != nil {
		return "", "", err
	}
	defer util.WipeBytes(secret)

	raw := make([]byte, 0, userIDLen+c.secretLen)
	raw = append(raw, userID[:]...)
	raw = append(raw, secret...)
	defer util.WipeBytes(raw)

	return base64.StdEncoding.EncodeToString(raw), StorageKey(c.hash(secret)), nil
}

// Parse recovers the user id and storage key from a token. Any decoding
// or length problem yields ErrMalformed.
func (c *TokenCodec) Parse(token string) (uuid.UUID, StorageKey, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return uuid.Nil, "", ErrMalformed
	}
	defer util.WipeBytes(raw)
	if len(raw) != userIDLen+c.secretLen {
		return uuid.Nil, "", ErrMalformed
	}
	userID, err := uuid.FromBytes(raw[:userIDLen])
	if err != nil {
		return uuid.Nil, "", ErrMalformed
	}
	return userID, StorageKey(c.hash(raw[userIDLen:])), nil
}
