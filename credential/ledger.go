package credential

// ledger is a per-user collection of credentials keyed by storage key.
// The backing map exists only while the ledger holds entries so users
// without sessions or keys cost nothing. The owning record's lock guards
// every call.
type ledger[V any] struct {
	entries map[StorageKey]V
}

func (l *ledger[V]) len() int { return len(l.entries) }

func (l *ledger[V]) get(k StorageKey) (V, bool) {
	v, ok := l.entries[k]
	return v, ok
}

// insert adds v under k unless k is already present.
func (l *ledger[V]) insert(k StorageKey, v V) bool {
	if _, ok := l.entries[k]; ok {
		return false
	}
	if l.entries == nil {
		l.entries = make(map[StorageKey]V)
	}
	l.entries[k] = v
	return true
}

func (l *ledger[V]) remove(k StorageKey) bool {
	if _, ok := l.entries[k]; !ok {
		return false
	}
	delete(l.entries, k)
	l.compact()
	return true
}

// removeFunc deletes every entry for which match returns true, or only
// the first one when first is set. It returns the number removed.
func (l *ledger[V]) removeFunc(first bool, match func(StorageKey, V) bool) int {
	n := 0
	for k, v := range l.entries {
		if match(k, v) {
			delete(l.entries, k)
			n++
			if first {
				break
			}
		}
	}
	l.compact()
	return n
}

func (l *ledger[V]) find(match func(V) bool) (V, bool) {
	for _, v := range l.entries {
		if match(v) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (l *ledger[V]) clear() int {
	n := len(l.entries)
	l.entries = nil
	return n
}

func (l *ledger[V]) values() []V {
	out := make([]V, 0, len(l.entries))
	for _, v := range l.entries {
		out = append(out, v)
	}
	return out
}

func (l *ledger[V]) compact() {
	if len(l.entries) == 0 {
		l.entries = nil
	}
}
