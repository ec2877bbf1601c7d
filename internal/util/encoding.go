package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

func Normalize(s string) string {
	return norm.NFKC.String(s)
}

// FoldUsername returns the key under which a username is indexed. Two
// usernames that differ only in case or Unicode compatibility form fold
// to the same key.
func FoldUsername(s string) string {
	// cases.Caser is stateful; Fold on a shared caser is not safe for
	// concurrent use, so take a fresh one per call.
	return cases.Fold().String(Normalize(s))
}

// HexEncode returns upper-case hex.
func HexEncode(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
