package api

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmcleod/gatekeeper/storage"
)

const (
	auditNamespace  = "audit"
	auditRecordType = "EVENT"
	// auditRetentionThreshold is how many appends pass between retention
	// sweeps.
	auditRetentionThreshold = 50
)

type auditEntry struct {
	ID        string            `json:"id"`
	Event     AuditEvent        `json:"event"`
	UserID    string            `json:"user_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	CreatedAt string            `json:"created_at"`

	createdAtTime time.Time
}

func (e *auditEntry) parseCreatedAt() {
	if t, err := time.Parse(time.RFC3339Nano, e.CreatedAt); err == nil {
		e.createdAtTime = t
		return
	}
	if t, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
		e.createdAtTime = t
	}
}

// auditTrail persists audit entries as CBOR envelopes and enforces an
// optional age and count retention.
type auditTrail struct {
	repo       storage.Repository
	maxAge     time.Duration
	maxEntries int
	now        func() time.Time

	mu         sync.Mutex
	sinceCheck int
}

func newAuditTrail(repo storage.Repository, maxAge time.Duration, maxEntries int) *auditTrail {
	return &auditTrail{repo: repo, maxAge: maxAge, maxEntries: maxEntries, now: time.Now}
}

func (t *auditTrail) retentionEnabled() bool {
	return t.maxAge > 0 || t.maxEntries > 0
}

// checkThreshold is how many appends pass between sweeps. Small count
// caps are checked more often so the trail never grows far past them.
func (t *auditTrail) checkThreshold() int {
	if t.maxEntries <= 0 || t.maxEntries >= 2*auditRetentionThreshold {
		return auditRetentionThreshold
	}
	return max(t.maxEntries/2, 1)
}

func (t *auditTrail) append(e auditEntry) error {
	env, err := storage.SealRecord(e)
	if err != nil {
		return err
	}
	if err := t.repo.Put(auditNamespace, auditRecordType, e.ID, env); err != nil {
		return fmt.Errorf("storing audit entry: %w", err)
	}
	if !t.retentionEnabled() {
		return nil
	}
	t.mu.Lock()
	t.sinceCheck++
	due := t.sinceCheck >= t.checkThreshold()
	if due {
		t.sinceCheck = 0
	}
	t.mu.Unlock()
	if due {
		_, err = t.prune()
	}
	return err
}

// prune deletes entries older than maxAge and then the oldest entries
// beyond maxEntries. It returns the number deleted.
func (t *auditTrail) prune() (int, error) {
	entries, err := t.list()
	if err != nil {
		return 0, err
	}
	// entries are newest first.
	keep := len(entries)
	if t.maxAge > 0 {
		cutoff := t.now().Add(-t.maxAge)
		for keep > 0 && entries[keep-1].createdAtTime.Before(cutoff) {
			keep--
		}
	}
	if t.maxEntries > 0 && keep > t.maxEntries {
		keep = t.maxEntries
	}
	deleted := 0
	for _, e := range entries[keep:] {
		if err := t.repo.Delete(auditNamespace, auditRecordType, e.ID); err != nil {
			return deleted, fmt.Errorf("pruning audit entry %s: %w", e.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// list returns every stored entry, newest first. Undecodable records are
// skipped.
func (t *auditTrail) list() ([]auditEntry, error) {
	ids, err := t.repo.List(auditNamespace, auditRecordType)
	if err != nil {
		return nil, err
	}
	entries := make([]auditEntry, 0, len(ids))
	for _, id := range ids {
		env, err := t.repo.Get(auditNamespace, auditRecordType, id)
		if err != nil || env == nil {
			continue
		}
		var entry auditEntry
		if err := storage.OpenRecord(env, &entry); err != nil {
			continue
		}
		entry.parseCreatedAt()
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].createdAtTime.After(entries[j].createdAtTime)
	})
	return entries, nil
}

func (e auditEntry) response() AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		Event:     string(e.Event),
		UserID:    e.UserID,
		Username:  e.Username,
		ClientIP:  e.ClientIP,
		Attrs:     e.Attrs,
		CreatedAt: e.CreatedAt,
	}
}

// ListAuditEntries reads the audit trail persisted in repo, newest first.
func ListAuditEntries(repo storage.Repository) ([]AuditEntryResponse, error) {
	entries, err := newAuditTrail(repo, 0, 0).list()
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.response())
	}
	return out, nil
}
