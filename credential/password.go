package credential

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/jmcleod/gatekeeper/internal/util"
)

// PasswordHasher derives and verifies salted password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded. Malformed encodings
	// never match.
	Verify(password, encoded string) bool
}

// HasherConfig controls new hashes. Existing hashes carry their own
// iteration count and algorithm, so changing these does not invalidate
// them.
type HasherConfig struct {
	SaltSize   int    `yaml:"salt_size"`
	KeySize    int    `yaml:"key_size"`
	Iterations int    `yaml:"iterations"`
	Algorithm  string `yaml:"algorithm"`
	Delimiter  string `yaml:"delimiter"`
}

func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		SaltSize:   16,
		KeySize:    32,
		Iterations: 25000,
		Algorithm:  "SHA512",
		Delimiter:  ":",
	}
}

// Validate checks that the configuration produces verifiable hashes.
func (c HasherConfig) Validate() error {
	maxIter, known := util.KDFIterationRange(c.Algorithm)
	switch {
	case c.SaltSize < 8:
		return fmt.Errorf("salt size %d below minimum 8: %w", c.SaltSize, ErrInvalidArgument)
	case c.KeySize < 16:
		return fmt.Errorf("key size %d below minimum 16: %w", c.KeySize, ErrInvalidArgument)
	case !known:
		return fmt.Errorf("unknown algorithm %q: %w", c.Algorithm, ErrInvalidArgument)
	case c.Iterations <= 0 || c.Iterations > maxIter:
		return fmt.Errorf("iterations %d outside 1..%d for %s: %w", c.Iterations, maxIter, c.Algorithm, ErrInvalidArgument)
	case c.Delimiter == "" || strings.IndexFunc(c.Delimiter, isAlnum) >= 0:
		return fmt.Errorf("delimiter %q collides with hash encoding: %w", c.Delimiter, ErrInvalidArgument)
	}
	return nil
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// KDFHasher encodes hashes as hex(key):hex(salt):iterations:algorithm.
type KDFHasher struct {
	cfg HasherConfig
}

var _ PasswordHasher = (*KDFHasher)(nil)

func NewKDFHasher(cfg HasherConfig) (*KDFHasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &KDFHasher{cfg: cfg}, nil
}

func (h *KDFHasher) Hash(password string) (string, error) {
	salt, err := util.RandomBytes(h.cfg.SaltSize)
	if err != nil {
		return "", err
	}
	key, err := util.DeriveKey(h.cfg.Algorithm, []byte(password), salt, h.cfg.Iterations, h.cfg.KeySize)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}
	defer util.WipeBytes(key)
	return strings.Join([]string{
		util.HexEncode(key),
		util.HexEncode(salt),
		strconv.Itoa(h.cfg.Iterations),
		h.cfg.Algorithm,
	}, h.cfg.Delimiter), nil
}

func (h *KDFHasher) Verify(password, encoded string) bool {
	segments := strings.Split(encoded, h.cfg.Delimiter)
	if len(segments) != 4 {
		return false
	}
	want, err := util.HexDecode(segments[0])
	if err != nil || len(want) == 0 {
		return false
	}
	salt, err := util.HexDecode(segments[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	iterations, err := strconv.Atoi(segments[2])
	if err != nil {
		return false
	}
	got, err := util.DeriveKey(segments[3], []byte(password), salt, iterations, len(want))
	if err != nil {
		return false
	}
	defer util.WipeBytes(got)
	return subtle.ConstantTimeCompare(got, want) == 1
}
