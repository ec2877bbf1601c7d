package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/gatekeeper/credential"
)

// errNoMatch is returned by verify-password when the password does not
// match; the command exits non-zero without printing usage.
var errNoMatch = errors.New("password does not match")

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password read from stdin with the configured parameters",
	Long: `Reads one line from stdin and prints its encoded hash, using the
password section of the configuration. Useful for checking that a
configuration's hasher parameters are accepted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return hashPassword(cfg.Password, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var verifyPasswordCmd = &cobra.Command{
	Use:   "verify-password <encoded-hash>",
	Short: "Check a password read from stdin against an encoded hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return verifyPassword(cfg.Password, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(verifyPasswordCmd)
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("no password on stdin")
	}
	return pw, nil
}

func hashPassword(hc credential.HasherConfig, in io.Reader, out io.Writer) error {
	h, err := credential.NewKDFHasher(hc)
	if err != nil {
		return err
	}
	pw, err := readPassword(in)
	if err != nil {
		return err
	}
	encoded, err := h.Hash(pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, encoded)
	return err
}

func verifyPassword(hc credential.HasherConfig, encoded string, in io.Reader, out io.Writer) error {
	h, err := credential.NewKDFHasher(hc)
	if err != nil {
		return err
	}
	pw, err := readPassword(in)
	if err != nil {
		return err
	}
	if !h.Verify(pw, encoded) {
		fmt.Fprintln(out, "no match")
		return errNoMatch
	}
	_, err = fmt.Fprintln(out, "match")
	return err
}
