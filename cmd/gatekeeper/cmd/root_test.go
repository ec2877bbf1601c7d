package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/gatekeeper/internal/config"
)

func withConfigPath(t *testing.T, path string) {
	t.Helper()
	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })
}

func serverFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.String("listen", "", "")
	fs.String("tls-cert", "", "")
	fs.String("tls-key", "", "")
	fs.String("audit-db", "", "")
	return fs
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\naudit_db: /tmp/a.db\n"), 0o600))
	withConfigPath(t, path)

	fs := serverFlags()
	require.NoError(t, fs.Parse([]string{"--audit-db", "/tmp/b.db"}))

	cfg, err := loadConfig(fs)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen, "unset flag keeps the file value")
	assert.Equal(t, "/tmp/b.db", cfg.AuditDB)
}

func TestLoadConfig_OverridesAreValidated(t *testing.T) {
	withConfigPath(t, "")
	t.Setenv(config.EnvVar, "")

	fs := serverFlags()
	require.NoError(t, fs.Parse([]string{"--tls-cert", "cert.pem"}))

	_, err := loadConfig(fs)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadConfig_IgnoresUndefinedFlags(t *testing.T) {
	withConfigPath(t, "")
	t.Setenv(config.EnvVar, "")

	cfg, err := loadConfig(pflag.NewFlagSet("empty", pflag.ContinueOnError))
	require.NoError(t, err)
	assert.Equal(t, config.Default().Listen, cfg.Listen)
}
