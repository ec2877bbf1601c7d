// Package storage provides the record storage abstraction behind the
// audit trail.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when a namespace has never been written.
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// Repository stores envelopes addressed by namespace, record type and
// record id.
type Repository interface {
	Put(namespace, recordType, recordID string, envelope *Envelope) error
	Get(namespace, recordType, recordID string) (*Envelope, error)
	// List returns the ids of every record of recordType in namespace in
	// ascending byte order. An unknown namespace yields no ids.
	List(namespace, recordType string) ([]string, error)
	Delete(namespace, recordType, recordID string) error
}
