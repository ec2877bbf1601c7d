package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type verifyResult struct {
	File       string        `json:"file"`
	EntryCount int           `json:"entry_count"`
	Valid      bool          `json:"valid"`
	Checks     []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

func (r *verifyResult) pass(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "pass", Detail: detail})
}

func (r *verifyResult) warn(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "warn", Detail: detail})
}

func (r *verifyResult) fail(name, detail string) {
	r.Valid = false
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "fail", Detail: detail})
}

// verifyAuditTrail checks an exported trail for the properties the server
// guarantees when writing it: UUIDv7 entry ids, unique ids, parseable
// timestamps in newest-first order and well-formed user ids.
func verifyAuditTrail(export auditExport) verifyResult {
	result := verifyResult{
		EntryCount: len(export.Entries),
		Valid:      true,
	}

	if len(export.Entries) == 0 {
		result.pass("empty_trail", "no entries to verify")
		return result
	}

	// 1. Entry ids.
	idsOK, nonV7 := true, 0
	var idDetail string
	for i, e := range export.Entries {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			idsOK = false
			idDetail = fmt.Sprintf("entry %d has malformed id %q", i, e.ID)
			break
		}
		if id.Version() != 7 {
			nonV7++
		}
	}
	switch {
	case !idsOK:
		result.fail("entry_ids", idDetail)
	case nonV7 > 0:
		// Random ids are the fallback when a time-ordered one cannot be made.
		result.warn("entry_ids", fmt.Sprintf("%d entries do not carry time-ordered ids", nonV7))
	default:
		result.pass("entry_ids", "")
	}

	// 2. No duplicate ids.
	seen := make(map[string]int, len(export.Entries))
	dupDetail := ""
	for i, e := range export.Entries {
		if prev, ok := seen[e.ID]; ok {
			dupDetail = fmt.Sprintf("entry %d and entry %d share id=%s", prev, i, e.ID)
			break
		}
		seen[e.ID] = i
	}
	if dupDetail == "" {
		result.pass("no_duplicate_ids", "")
	} else {
		result.fail("no_duplicate_ids", dupDetail)
	}

	// 3. Timestamps parse and run newest first.
	parseDetail, orderDetail := "", ""
	var prevTime time.Time
	for i, e := range export.Entries {
		t, err := parseTimestamp(e.CreatedAt)
		if err != nil {
			parseDetail = fmt.Sprintf("entry %d has unparseable created_at %q", i, e.CreatedAt)
			break
		}
		if orderDetail == "" && i > 0 && t.After(prevTime) {
			orderDetail = fmt.Sprintf("entry %d (created_at=%s) is newer than entry %d", i, e.CreatedAt, i-1)
		}
		prevTime = t
	}
	switch {
	case parseDetail != "":
		result.fail("timestamps", parseDetail)
	case orderDetail != "":
		// Clock steps on the server can reorder entries legitimately.
		result.warn("timestamps", orderDetail)
	default:
		result.pass("timestamps", "")
	}

	// 4. User ids.
	userDetail := ""
	for i, e := range export.Entries {
		if e.UserID == "" {
			continue
		}
		if _, err := uuid.Parse(e.UserID); err != nil {
			userDetail = fmt.Sprintf("entry %d has malformed user_id %q", i, e.UserID)
			break
		}
	}
	if userDetail == "" {
		result.pass("user_ids", "")
	} else {
		result.fail("user_ids", userDetail)
	}

	return result
}

// parseTimestamp parses RFC3339Nano, falling back to RFC3339.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

func printHumanResult(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Audit trail verification: %s\n", result.File)
	fmt.Fprintf(w, "Entries: %d\n\n", result.EntryCount)

	failures, warnings := 0, 0
	for _, c := range result.Checks {
		tag := "[PASS]"
		switch c.Status {
		case "fail":
			tag = "[FAIL]"
			failures++
		case "warn":
			tag = "[WARN]"
			warnings++
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
	} else {
		fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
	}
}

func printJSONResult(w io.Writer, result verifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var verifyJSONOutput bool

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify an exported audit trail",
	Long: `Reads an audit trail exported with "gatekeeper audit list --json" and
checks entry ids, duplicate ids, timestamp ordering and user ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	auditCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read file: %v\n", err)
		os.Exit(2)
	}

	var export auditExport
	if err := json.Unmarshal(data, &export); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid JSON: %v\n", err)
		os.Exit(2)
	}

	result := verifyAuditTrail(export)
	result.File = filePath

	out := cmd.OutOrStdout()
	if verifyJSONOutput {
		if err := printJSONResult(out, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanResult(out, result)
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}
