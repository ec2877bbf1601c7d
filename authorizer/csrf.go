package authorizer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/awnumar/memguard"
)

const csrfKeySize = 32

// CSRFSigner binds CSRF tokens to session tokens with an HMAC whose key
// lives in a memguard enclave.
type CSRFSigner struct {
	key *memguard.Enclave
}

// NewCSRFSigner returns a signer with a fresh random key. Tokens do not
// survive a restart, and neither do sessions.
func NewCSRFSigner() *CSRFSigner {
	return &CSRFSigner{key: memguard.NewEnclaveRandom(csrfKeySize)}
}

// NewCSRFSignerFromKey seals key into an enclave. key is wiped.
func NewCSRFSignerFromKey(key []byte) (*CSRFSigner, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("csrf key must be at least 16 bytes, got %d", len(key))
	}
	return &CSRFSigner{key: memguard.NewEnclave(key)}, nil
}

// Token returns base64(HMAC-SHA256(key, sessionToken)).
func (s *CSRFSigner) Token(sessionToken string) (string, error) {
	buf, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening csrf key enclave: %w", err)
	}
	defer buf.Destroy()

	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write([]byte(sessionToken))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether token is the CSRF token for sessionToken.
func (s *CSRFSigner) Verify(sessionToken, token string) bool {
	if s == nil || sessionToken == "" || token == "" {
		return false
	}
	want, err := s.Token(sessionToken)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(token))
}
