package storage

import (
	"fmt"
	"sync"

	"lwwdict/internal/lww"
)

// Stats summarizes the size of a replica.
type Stats struct {
	AddSet    int
	RemoveSet int
	Visible   int
}

// Store defines the interface for the local replica.
type Store interface {
	// Add offers rec as the value of key. Returns an error only for invalid records.
	Add(key string, rec lww.Record) error
	// Update is Add.
	Update(key string, rec lww.Record) error
	// Remove hides key as of ts if key is visible and ts is newer than its add record.
	Remove(key string, ts lww.Timestamp) error
	// Lookup reports whether key is visible.
	Lookup(key string) bool
	// Get returns a copy of the visible record of key.
	Get(key string) (lww.Record, bool)
	// Merge folds a replica into the store as one atomic step.
	Merge(replica *lww.Dictionary) lww.MergeStats
	// Snapshot returns a deep copy of the replica state.
	Snapshot() *lww.Dictionary
	// Stats returns set sizes.
	Stats() Stats
}

// InMemoryStore is an in-memory implementation of Store.
// A single RWMutex guards the whole dictionary, so a merge is never
// observable half applied.
type InMemoryStore struct {
	mu   sync.RWMutex
	dict *lww.Dictionary
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreFrom(lww.New())
}

// NewInMemoryStoreFrom creates a store that takes ownership of d.
func NewInMemoryStoreFrom(d *lww.Dictionary) *InMemoryStore {
	if d == nil {
		d = lww.New()
	}
	return &InMemoryStore{dict: d}
}

// Add stores rec under key if it is the newest record for key.
func (s *InMemoryStore) Add(key string, rec lww.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("add %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dict.Add(key, rec)
	return nil
}

// Update is Add.
func (s *InMemoryStore) Update(key string, rec lww.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("update %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dict.Update(key, rec)
	return nil
}

// Remove tombstones key as of ts. Removals of invisible keys or with stale
// timestamps are dropped without error.
func (s *InMemoryStore) Remove(key string, ts lww.Timestamp) error {
	if err := lww.ValidateTimestamp(ts); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dict.Remove(key, ts)
	return nil
}

// Lookup reports whether key is visible.
func (s *InMemoryStore) Lookup(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dict.Lookup(key)
}

// Get returns a copy of the visible record of key.
func (s *InMemoryStore) Get(key string) (lww.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dict.Get(key)
}

// Merge unions replica into the store under the write lock.
func (s *InMemoryStore) Merge(replica *lww.Dictionary) lww.MergeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dict.Merge(replica)
}

// Snapshot returns a deep copy of the dictionary.
func (s *InMemoryStore) Snapshot() *lww.Dictionary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dict.Clone()
}

// Stats returns set sizes.
func (s *InMemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adds, removes := s.dict.Sizes()
	return Stats{
		AddSet:    adds,
		RemoveSet: removes,
		Visible:   s.dict.Len(),
	}
}
