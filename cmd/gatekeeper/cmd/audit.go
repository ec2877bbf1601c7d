package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/gatekeeper/api"
	bboltstorage "github.com/jmcleod/gatekeeper/storage/bbolt"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail inspection tools",
	Long:  `Commands for reading and verifying the persisted audit trail.`,
}

// auditExport is the JSON form written by "audit list --json" and read by
// "audit verify".
type auditExport struct {
	Entries []api.AuditEntryResponse `json:"entries"`
}

var (
	listJSONOutput bool
	listEvent      string
	listUserID     string
	listLimit      int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the persisted audit trail, newest first",
	Long: `Opens the audit database read-only and prints its entries. The
database is locked while the server runs, so stop it first or copy the
file.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(listCmd)
	listCmd.Flags().String("audit-db", "", "Path to the audit trail database (overrides config)")
	listCmd.Flags().BoolVar(&listJSONOutput, "json", false, "Output entries as JSON")
	listCmd.Flags().StringVar(&listEvent, "event", "", "Only show this event type")
	listCmd.Flags().StringVar(&listUserID, "user-id", "", "Only show events for this user id")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Show at most this many entries (0 for all)")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.AuditDB == "" {
		return errors.New("no audit database configured; set audit_db or --audit-db")
	}
	repo, err := bboltstorage.NewRepositoryFromFile(cfg.AuditDB, &bbolt.Options{ReadOnly: true, Timeout: 2 * time.Second})
	if err != nil {
		return err
	}
	defer repo.Close()

	entries, err := api.ListAuditEntries(repo)
	if err != nil {
		return fmt.Errorf("reading audit trail: %w", err)
	}
	entries = filterEntries(entries, listEvent, listUserID, listLimit)

	if listJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(auditExport{Entries: entries})
	}
	return printEntries(cmd.OutOrStdout(), entries)
}

func filterEntries(entries []api.AuditEntryResponse, event, userID string, limit int) []api.AuditEntryResponse {
	out := make([]api.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		if event != "" && e.Event != event {
			continue
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func printEntries(w io.Writer, entries []api.AuditEntryResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tUSERNAME\tCLIENT IP\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt, e.Event, orDash(e.Username), orDash(e.ClientIP), formatAttrs(e.Attrs))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}
