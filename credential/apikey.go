package credential

import (
	"sort"
	"strings"
	"time"
)

// APIKey is the listing view of an API key. Keys never expire on their
// own; they live until deleted. DisplayID identifies the key to its
// owner without revealing the secret.
type APIKey struct {
	DisplayID   string      `json:"display_id"`
	CreatedAt   time.Time   `json:"created_at"`
	LastUsedAt  time.Time   `json:"last_used_at,omitzero"`
	Permissions Permissions `json:"permissions"`
}

func (k *APIKey) clone() APIKey {
	c := *k
	c.Permissions = k.Permissions.Duplicate()
	return c
}

// apiKeyDisplayID returns the last four significant characters of a
// base64 token followed by its padding.
func apiKeyDisplayID(token string) string {
	trimmed := strings.TrimRight(token, "=")
	padding := token[len(trimmed):]
	if len(trimmed) > 4 {
		trimmed = trimmed[len(trimmed)-4:]
	}
	return trimmed + padding
}

type apiKeyLedger struct {
	ledger[*APIKey]
}

func (l *apiKeyLedger) byDisplayID(id string) (*APIKey, bool) {
	return l.find(func(k *APIKey) bool { return k.DisplayID == id })
}

func (l *apiKeyLedger) hasDisplayID(id string) bool {
	_, ok := l.byDisplayID(id)
	return ok
}

func (l *apiKeyLedger) removeDisplayID(id string) bool {
	return l.removeFunc(true, func(_ StorageKey, k *APIKey) bool {
		return k.DisplayID == id
	}) > 0
}

func (l *apiKeyLedger) snapshot() []APIKey {
	out := make([]APIKey, 0, l.len())
	for _, k := range l.values() {
		out = append(out, k.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DisplayID < out[j].DisplayID
	})
	return out
}
