package credential

import (
	"sync"

	"github.com/google/uuid"
)

// userRecord is the per-user aggregate. mu guards every field and both
// ledgers; id is immutable.
type userRecord struct {
	id uuid.UUID

	mu           sync.Mutex
	username     string
	passwordHash string
	permissions  Permissions
	sessions     sessionLedger
	apiKeys      apiKeyLedger
	deleted      bool
}

// identity returns the fields needed to build a result and verify a
// password outside the lock.
func (r *userRecord) identity() (username, passwordHash string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.username, r.passwordHash, !r.deleted
}
