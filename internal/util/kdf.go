package util

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Argon2id memory and lane parameters. The time cost travels with each
// stored hash; these do not.
const (
	Argon2idMemoryKiB   = 64 * 1024
	Argon2idParallelism = 4
)

// Upper bounds on the work a stored hash may ask of Verify. For ARGON2ID
// the iteration count is the time cost.
const (
	MaxKDFIterations = 10_000_000
	MaxArgon2idTime  = 64
)

// DeriveKey runs the named key-derivation function over password and salt.
// Supported algorithms are SHA512 and SHA256 (PBKDF2-HMAC) and ARGON2ID.
func DeriveKey(algorithm string, password, salt []byte, iterations, keyLen int) ([]byte, error) {
	maxIter, ok := KDFIterationRange(algorithm)
	if !ok {
		return nil, fmt.Errorf("unsupported kdf algorithm %q", algorithm)
	}
	if iterations <= 0 || iterations > maxIter {
		return nil, fmt.Errorf("%s iteration count %d outside 1..%d", algorithm, iterations, maxIter)
	}
	if keyLen <= 0 {
		return nil, fmt.Errorf("key length must be positive, got %d", keyLen)
	}
	switch algorithm {
	case "SHA512":
		return pbkdf2.Key(password, salt, iterations, keyLen, sha512.New), nil
	case "SHA256":
		return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New), nil
	default:
		return argon2.IDKey(password, salt, uint32(iterations), Argon2idMemoryKiB, Argon2idParallelism, uint32(keyLen)), nil
	}
}

// KDFIterationRange returns the largest iteration count DeriveKey accepts
// for algorithm, and false when the algorithm is unknown.
func KDFIterationRange(algorithm string) (maxIterations int, ok bool) {
	switch algorithm {
	case "SHA512", "SHA256":
		return MaxKDFIterations, true
	case "ARGON2ID":
		return MaxArgon2idTime, true
	}
	return 0, false
}
