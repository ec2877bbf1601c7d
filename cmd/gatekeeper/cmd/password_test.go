package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/gatekeeper/credential"
)

func testHasherConfig() credential.HasherConfig {
	hc := credential.DefaultHasherConfig()
	hc.Iterations = 1000
	return hc
}

func TestHashThenVerifyPassword(t *testing.T) {
	hc := testHasherConfig()

	var hashed bytes.Buffer
	require.NoError(t, hashPassword(hc, strings.NewReader("hunter2-hunter2\n"), &hashed))
	encoded := strings.TrimSpace(hashed.String())
	assert.Len(t, strings.Split(encoded, hc.Delimiter), 4)

	var out bytes.Buffer
	require.NoError(t, verifyPassword(hc, encoded, strings.NewReader("hunter2-hunter2\n"), &out))
	assert.Equal(t, "match\n", out.String())

	out.Reset()
	err := verifyPassword(hc, encoded, strings.NewReader("something-else"), &out)
	assert.ErrorIs(t, err, errNoMatch)
	assert.Equal(t, "no match\n", out.String())
}

func TestHashPassword_Errors(t *testing.T) {
	var out bytes.Buffer
	err := hashPassword(testHasherConfig(), strings.NewReader(""), &out)
	assert.Error(t, err, "empty stdin")

	bad := testHasherConfig()
	bad.Algorithm = "MD5"
	err = hashPassword(bad, strings.NewReader("pw\n"), &out)
	assert.ErrorIs(t, err, credential.ErrInvalidArgument)
	assert.Empty(t, out.String())
}

func TestReadPassword_StripsLineEnding(t *testing.T) {
	pw, err := readPassword(strings.NewReader("secret\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)
}
