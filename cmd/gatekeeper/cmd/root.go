package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmcleod/gatekeeper/internal/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper is a credential access service",
	Long: `Gatekeeper keeps user accounts, password logins, sessions, API keys and
permissions, and answers "who is this and may they do that" over HTTP.

The configuration file is read from --config or $` + config.EnvVar + `.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
}

// loadConfig reads the configuration and applies any of the listen,
// tls-cert, tls-key and audit-db flags that fs defines and the user set.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"listen":   &cfg.Listen,
		"tls-cert": &cfg.TLS.CertFile,
		"tls-key":  &cfg.TLS.KeyFile,
		"audit-db": &cfg.AuditDB,
	}
	changed := false
	for name, dst := range overrides {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		*dst = f.Value.String()
		changed = true
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("after flag overrides: %w", err)
		}
	}
	return cfg, nil
}
