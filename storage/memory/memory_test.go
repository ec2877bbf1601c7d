package memory

import (
	"errors"
	"testing"

	"github.com/jmcleod/gatekeeper/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	namespace := "audit"
	recordType := "ENTRY"
	env := &storage.Envelope{Ver: 1, Scheme: storage.SchemeCBOR, Payload: []byte("payload")}

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put(namespace, recordType, "id1", env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(namespace, recordType, "id1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Ver != env.Ver || got.Scheme != env.Scheme || string(got.Payload) != "payload" {
			t.Errorf("Get returned wrong envelope: %+v", got)
		}

		// Test isolation (cloning)
		got.Payload[0] = 'X'
		got2, _ := repo.Get(namespace, recordType, "id1")
		if got2.Payload[0] == 'X' {
			t.Error("Memory repository should return clones of envelopes")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", recordType, "id1")
		if !errors.Is(err, storage.ErrNamespaceNotFound) {
			t.Errorf("expected ErrNamespaceNotFound, got %v", err)
		}
		_, err = repo.Get(namespace, recordType, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		repo.Put(namespace, recordType, "id3", env)
		repo.Put(namespace, recordType, "id2", env)
		repo.Put(namespace, "OTHER", "id9", env)
		ids, err := repo.List(namespace, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"id1", "id2", "id3"}
		if len(ids) != len(want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
			}
		}
		ids, _ = repo.List("nonexistent", recordType)
		if len(ids) != 0 {
			t.Errorf("expected no ids for unknown namespace, got %v", ids)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(namespace, recordType, "id2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(namespace, recordType, "id2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(namespace, recordType, "id2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})
}
