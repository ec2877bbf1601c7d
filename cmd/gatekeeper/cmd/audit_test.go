package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmcleod/gatekeeper/api"
)

func sampleEntries() []api.AuditEntryResponse {
	return []api.AuditEntryResponse{
		{ID: "3", Event: "logout", UserID: "u1", Username: "alice", CreatedAt: "2026-01-01T00:00:03Z"},
		{ID: "2", Event: "login_failure", ClientIP: "192.0.2.7", Attrs: map[string]string{"username": "bob", "reason": "invalid credentials"}, CreatedAt: "2026-01-01T00:00:02Z"},
		{ID: "1", Event: "login_success", UserID: "u1", Username: "alice", CreatedAt: "2026-01-01T00:00:01Z"},
	}
}

func TestFilterEntries(t *testing.T) {
	ids := func(es []api.AuditEntryResponse) []string {
		out := []string{}
		for _, e := range es {
			out = append(out, e.ID)
		}
		return out
	}
	tests := []struct {
		name   string
		event  string
		userID string
		limit  int
		want   []string
	}{
		{"all", "", "", 0, []string{"3", "2", "1"}},
		{"by event", "login_failure", "", 0, []string{"2"}},
		{"by user", "", "u1", 0, []string{"3", "1"}},
		{"limit", "", "", 2, []string{"3", "2"}},
		{"no match", "user_deleted", "", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(filterEntries(sampleEntries(), tt.event, tt.userID, tt.limit)))
		})
	}
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, printEntries(&buf, sampleEntries()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.Contains(t, lines[2], "reason=invalid credentials username=bob")
	assert.Contains(t, lines[2], "192.0.2.7")
	assert.Contains(t, lines[1], "alice")
}

func TestFormatAttrs(t *testing.T) {
	assert.Equal(t, "-", formatAttrs(nil))
	assert.Equal(t, "a=1 b=2", formatAttrs(map[string]string{"b": "2", "a": "1"}))
}
